package treemap

import "bytes"

// Cursor is the server-held state of a range iteration.
// Position is the last key handed out; Started is false until the first batch was taken.
type Cursor struct {
	ID         int64
	Range      Range
	Descending bool
	Position   []byte
	Started    bool
}

// remaining returns the part of the cursor range that was not handed out yet.
func (c *Cursor) remaining() Range {
	r := c.Range
	if !c.Started {
		return r
	}
	if c.Descending {
		r.To, r.ToInclusive, r.ToUnbounded = c.Position, false, false
	} else {
		r.From, r.FromInclusive, r.FromUnbounded = c.Position, false, false
	}
	return r
}

// Iterate opens a cursor with the given id over r. Ids must increase for the lifetime of the map,
// callers use the log index of the creating command. An id that is not higher than every id
// issued before is rejected, even if that cursor is gone.
func (m *TreeMap) Iterate(id int64, r Range, descending bool) error {
	if id <= m.lastCursor {
		return ErrCursorExists
	}
	m.lastCursor = id
	r.From, r.To = bytes.Clone(r.From), bytes.Clone(r.To)
	m.cursors.Store(id, &Cursor{ID: id, Range: r, Descending: descending})
	return nil
}

// CursorNext returns up to limit entries from the cursor position and advances it.
// done is true once the cursor has no entries left, the cursor is removed in the same call.
// A non-positive limit returns no entries.
func (m *TreeMap) CursorNext(id int64, limit int) (entries []Entry, done bool, err error) {
	c, ok := m.cursors.Load(id)
	if !ok {
		return nil, false, ErrCursorNotFound
	}
	if limit <= 0 {
		return nil, false, nil
	}

	// take one entry more than asked to find out if the cursor is exhausted
	done = true
	m.Scan(c.remaining(), c.Descending, func(e Entry) bool {
		if len(entries) == limit {
			done = false
			return false
		}
		entries = append(entries, e)
		return true
	})

	if done {
		m.cursors.Delete(id)
		return entries, true, nil
	}
	c.Position = entries[len(entries)-1].Key
	c.Started = true
	return entries, false, nil
}

// CursorClose removes the cursor.
func (m *TreeMap) CursorClose(id int64) error {
	if !m.cursors.Delete(id) {
		return ErrCursorNotFound
	}
	return nil
}

// Cursor returns a copy of the cursor state.
func (m *TreeMap) Cursor(id int64) (Cursor, bool) {
	c, ok := m.cursors.Load(id)
	if !ok {
		return Cursor{}, false
	}
	return *c, true
}

// Cursors returns the number of open cursors.
func (m *TreeMap) Cursors() int {
	return m.cursors.Len()
}
