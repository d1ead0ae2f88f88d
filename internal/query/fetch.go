package query

import (
	"context"
	"encoding/json"
	"fmt"
)

// Fetch is the typed form of Client.Fetch. Results are also eligible for the
// second tier, decoded back into T.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, Typed(key, fn))
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query: key %s holds %T, not %T", key, v, zero)
	}
	return out, nil
}

// Typed builds a Query whose producer returns T and whose tier values decode into T.
func Typed[T any](key Key, fn func(context.Context) (T, error)) Query {
	return Query{
		Key: key,
		Fn: func(ctx context.Context) (any, error) {
			return fn(ctx)
		},
		Decode: func(raw []byte) (any, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}
