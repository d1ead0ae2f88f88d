package query

import "sync"

const subscriberBuffer = 16

type subscriber struct {
	ch   chan State
	once sync.Once
}

// deliver never blocks the notifier: when the buffer is full the oldest
// pending state is dropped so the newest one always gets through.
func (s *subscriber) deliver(st State) {
	for {
		select {
		case s.ch <- st:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (c *Client) notifyLocked(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	st := e.snapshot()
	for s := range e.subs {
		s.deliver(st)
	}
}

// Subscribe streams the state transitions of key. If the key already has a
// state it is delivered first. The returned func releases the subscription and
// closes the channel; calling it more than once is safe.
func (c *Client) Subscribe(key Key) (<-chan State, func()) {
	s := &subscriber{ch: make(chan State, subscriberBuffer)}

	c.mu.Lock()
	e := c.entryLocked(Query{Key: key})
	e.subs[s] = struct{}{}
	if e.hasData || e.err != nil {
		s.deliver(e.snapshot())
	}
	c.mu.Unlock()

	unsubscribe := func() {
		s.once.Do(func() {
			c.mu.Lock()
			delete(e.subs, s)
			close(s.ch)
			c.mu.Unlock()
		})
	}
	return s.ch, unsubscribe
}

// Subscribers returns the number of live subscriptions on key.
func (c *Client) Subscribers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.String()]; ok {
		return len(e.subs)
	}
	return 0
}
