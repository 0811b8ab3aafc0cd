// Package convo turns logged chat records into labelled lines ready for reduction.
package convo

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/chatscribe/internal/reduce"
	"github.com/stellarlinkco/chatscribe/internal/store"
)

// ResolveFunc looks up the display name for a platform id.
type ResolveFunc func(ctx context.Context, id int64) (string, error)

// ResolutionError reports a failed name lookup. Formatting stops at the first one so
// that no line is attributed to a placeholder author.
type ResolutionError struct {
	Kind string
	ID   int64
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %d: %v", e.Kind, e.ID, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NameCache resolves each id at most once. Failed lookups are not cached.
type NameCache struct {
	kind    string
	resolve ResolveFunc
	names   map[int64]string
}

func NewNameCache(kind string, resolve ResolveFunc) *NameCache {
	return &NameCache{kind: kind, resolve: resolve, names: make(map[int64]string)}
}

func (c *NameCache) Lookup(ctx context.Context, id int64) (string, error) {
	if name, ok := c.names[id]; ok {
		return name, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := c.resolve(ctx, id)
	if err != nil {
		return "", &ResolutionError{Kind: c.kind, ID: id, Err: err}
	}
	c.names[id] = name
	return name, nil
}

// Line renders one record as "{user} ({server}): {text}\n".
func Line(user, server, text string) reduce.Fragment {
	return fmt.Sprintf("%s (%s): %s\n", user, server, text)
}

// Format renders records in order. Every unique user and server id is resolved at
// most once per call; any lookup failure aborts the whole call.
func Format(ctx context.Context, records []store.Record, users, servers ResolveFunc) ([]reduce.Fragment, error) {
	userNames := NewNameCache(store.KindUser, users)
	serverNames := NewNameCache(store.KindServer, servers)

	out := make([]reduce.Fragment, 0, len(records))
	for _, rec := range records {
		user, err := userNames.Lookup(ctx, rec.AuthorID)
		if err != nil {
			return nil, err
		}
		server, err := serverNames.Lookup(ctx, rec.ServerID)
		if err != nil {
			return nil, err
		}
		out = append(out, Line(user, server, rec.Text))
	}
	return out, nil
}

// FirstOf tries resolvers in order and returns the first name found. Nil resolvers
// are skipped.
func FirstOf(resolvers ...ResolveFunc) ResolveFunc {
	return func(ctx context.Context, id int64) (string, error) {
		var errs []error
		for _, resolve := range resolvers {
			if resolve == nil {
				continue
			}
			name, err := resolve(ctx, id)
			if err == nil {
				return name, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			errs = append(errs, err)
		}
		if len(errs) == 0 {
			return "", errors.New("no resolver configured")
		}
		return "", errors.Join(errs...)
	}
}
