package client

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/ValentinKolb/dTree/lib/store/protocol"
)

// Cursor is a server side iterator over a range of the map. Its position is part of the
// replicated state, so a cursor survives leader changes. Every Next is a command.
type Cursor[K any] struct {
	m      *TreeMap[K]
	id     int64
	done   atomic.Bool
	closed atomic.Bool
}

// ID returns the cursor id, which is the log index of the command that opened it
func (c *Cursor[K]) ID() int64 {
	return c.id
}

// Done reports whether the cursor returned its last entry
func (c *Cursor[K]) Done() bool {
	return c.done.Load()
}

// Next returns up to limit entries and advances the cursor. done is set once no entries are left,
// the server frees the cursor at that point. A limit of 0 uses protocol.DefaultBatchSize, larger
// limits than protocol.MaxBatchSize are capped and negative limits are rejected.
func (c *Cursor[K]) Next(ctx context.Context, limit int) (entries []Entry[K], done bool, err error) {
	if limit < 0 {
		return nil, false, fmt.Errorf("invalid cursor batch size %d", limit)
	}
	if c.done.Load() {
		return nil, true, nil
	}
	res, err := c.m.command(ctx, protocol.Command{Type: protocol.CommandTCursorNext, Cursor: c.id, Limit: uint32(limit)})
	if err != nil {
		return nil, false, err
	}
	entries = make([]Entry[K], 0, len(res.Entries))
	for _, raw := range res.Entries {
		e, err := c.m.decodeEntry(raw)
		if err != nil {
			return nil, false, err
		}
		entries = append(entries, e)
	}
	if res.Done {
		c.done.Store(true)
	}
	return entries, res.Done, nil
}

// Close removes the cursor from the map. Closing a cursor that was invalidated by Clear or
// already exhausted succeeds.
func (c *Cursor[K]) Close(ctx context.Context) error {
	if c.closed.Swap(true) || c.done.Load() {
		return nil
	}
	_, err := c.m.command(ctx, protocol.Command{Type: protocol.CommandTCursorClose, Cursor: c.id})
	if IsCursorNotFound(err) {
		return nil
	}
	return err
}

// Iterator returns the remaining entries fetched in batches of batchSize. The sequence stops
// at the first error, which is yielded with a zero entry. The cursor is closed afterwards.
func (c *Cursor[K]) Iterator(ctx context.Context, batchSize int) iter.Seq2[Entry[K], error] {
	return func(yield func(Entry[K], error) bool) {
		defer c.Close(context.WithoutCancel(ctx))
		for {
			entries, done, err := c.Next(ctx, batchSize)
			if err != nil {
				yield(Entry[K]{}, err)
				return
			}
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
			if done {
				return
			}
		}
	}
}
