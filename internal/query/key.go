package query

import (
	"fmt"
	"strings"
)

// Key identifies a logical resource: an ordered tuple of segments such as
// ("communityPost", "7"). Invalidation matches keys by segment prefix.
type Key []string

// NewKey builds a key from arbitrary segment values.
func NewKey(segments ...any) Key {
	k := make(Key, len(segments))
	for i, s := range segments {
		k[i] = fmt.Sprint(s)
	}
	return k
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) Key {
	if s == "" {
		return nil
	}
	return Key(strings.Split(s, ":"))
}

func (k Key) String() string {
	return strings.Join(k, ":")
}

// HasPrefix reports whether every segment of prefix equals the matching segment of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, s := range prefix {
		if k[i] != s {
			return false
		}
	}
	return true
}
