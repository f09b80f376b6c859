package treemap

import (
	"bytes"
	"errors"

	"github.com/google/btree"
	"github.com/zhangyunhao116/skipmap"
)

// degree of the underlying b-tree
const degree = 32

var (
	// ErrVersionMismatch is returned by conditional mutations whose expected version does not match the stored one.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrCursorNotFound is returned for cursor ids that were never issued, were closed or were invalidated by a clear.
	ErrCursorNotFound = errors.New("cursor not found")
	// ErrCursorExists is returned if a cursor id is issued a second time or out of order.
	ErrCursorExists = errors.New("cursor id already in use")
)

// Versioned is a value together with the version of the mutation that wrote it.
type Versioned[T any] struct {
	Value   T
	Version int64
}

// Entry is a single key of the map with its versioned value.
type Entry struct {
	Key     []byte
	Value   []byte
	Version int64
}

// Versioned returns the value of the entry with its version.
func (e Entry) Versioned() Versioned[[]byte] {
	return Versioned[[]byte]{Value: e.Value, Version: e.Version}
}

func lessEntry(a, b Entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// TreeMap is an ordered map from byte keys to versioned values with server-held cursors.
//
// Thread-safety: TreeMap is not safe for concurrent use. It is built to be mutated from a single
// log application path. Entries returned by the map share memory with the map and must not be modified.
type TreeMap struct {
	tree    *btree.BTreeG[Entry]
	cursors *skipmap.FuncMap[int64, *Cursor]
	index   int64

	// highest cursor id issued so far
	lastCursor int64
}

// New creates an empty TreeMap.
func New() *TreeMap {
	return &TreeMap{
		tree:    btree.NewG[Entry](degree, lessEntry),
		cursors: newCursorArena(),
	}
}

func newCursorArena() *skipmap.FuncMap[int64, *Cursor] {
	return skipmap.NewFunc[int64, *Cursor](func(a, b int64) bool { return a < b })
}

// --------------------------------------------------------------------------
// Bookkeeping
// --------------------------------------------------------------------------

// Len returns the number of entries in the map.
func (m *TreeMap) Len() int {
	return m.tree.Len()
}

// Index returns the last applied log index.
func (m *TreeMap) Index() int64 {
	return m.index
}

// SetIndex records the last applied log index. Indexes never move backwards.
func (m *TreeMap) SetIndex(index int64) {
	if index > m.index {
		m.index = index
	}
}

// --------------------------------------------------------------------------
// Base map operations
// --------------------------------------------------------------------------

// Get returns the entry stored for key.
func (m *TreeMap) Get(key []byte) (Entry, bool) {
	return m.tree.Get(Entry{Key: key})
}

// Put stores value under key with the given version and returns the replaced entry if there was one.
func (m *TreeMap) Put(key, value []byte, version int64) (Entry, bool) {
	return m.tree.ReplaceOrInsert(Entry{
		Key:     bytes.Clone(key),
		Value:   bytes.Clone(value),
		Version: version,
	})
}

// PutIfAbsent stores value under key only if the key is not present.
// If the key exists, the existing entry is returned and loaded is true.
func (m *TreeMap) PutIfAbsent(key, value []byte, version int64) (existing Entry, loaded bool) {
	if e, ok := m.Get(key); ok {
		return e, true
	}
	m.Put(key, value, version)
	return Entry{}, false
}

// Replace stores value under key if the key is present with exactly the expected version.
// It returns the replaced entry or ErrVersionMismatch without changing the map.
func (m *TreeMap) Replace(key, value []byte, expected, version int64) (Entry, error) {
	e, ok := m.Get(key)
	if !ok || e.Version != expected {
		return Entry{}, ErrVersionMismatch
	}
	m.Put(key, value, version)
	return e, nil
}

// Remove deletes key and returns the removed entry.
func (m *TreeMap) Remove(key []byte) (Entry, bool) {
	return m.tree.Delete(Entry{Key: key})
}

// RemoveIfVersion deletes key if it is stored with exactly the expected version.
func (m *TreeMap) RemoveIfVersion(key []byte, expected int64) (Entry, error) {
	e, ok := m.Get(key)
	if !ok || e.Version != expected {
		return Entry{}, ErrVersionMismatch
	}
	m.tree.Delete(e)
	return e, nil
}

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

// first returns the first entry of r in the given direction.
func (m *TreeMap) first(r Range, descending bool) (found Entry, ok bool) {
	m.Scan(r, descending, func(e Entry) bool {
		found, ok = e, true
		return false
	})
	return
}

// First returns the entry with the lowest key.
func (m *TreeMap) First() (Entry, bool) {
	return m.tree.Min()
}

// Last returns the entry with the highest key.
func (m *TreeMap) Last() (Entry, bool) {
	return m.tree.Max()
}

// Ceiling returns the entry with the lowest key greater than or equal to key.
func (m *TreeMap) Ceiling(key []byte) (Entry, bool) {
	return m.first(AtLeast(key), false)
}

// Higher returns the entry with the lowest key strictly greater than key.
func (m *TreeMap) Higher(key []byte) (Entry, bool) {
	return m.first(Range{From: key, ToUnbounded: true}, false)
}

// Floor returns the entry with the highest key less than or equal to key.
func (m *TreeMap) Floor(key []byte) (Entry, bool) {
	return m.first(AtMost(key), true)
}

// Lower returns the entry with the highest key strictly less than key.
func (m *TreeMap) Lower(key []byte) (Entry, bool) {
	return m.first(Range{To: key, FromUnbounded: true}, true)
}

// PollFirst removes and returns the entry with the lowest key.
func (m *TreeMap) PollFirst() (Entry, bool) {
	return m.tree.DeleteMin()
}

// PollLast removes and returns the entry with the highest key.
func (m *TreeMap) PollLast() (Entry, bool) {
	return m.tree.DeleteMax()
}

// --------------------------------------------------------------------------
// Range operations
// --------------------------------------------------------------------------

// Scan calls fn for every entry in r, in ascending or descending key order, until fn returns false.
func (m *TreeMap) Scan(r Range, descending bool, fn func(Entry) bool) {
	if r.IsEmpty() {
		return
	}
	if !descending {
		visit := func(e Entry) bool {
			if !r.belowUpper(e.Key) {
				return false
			}
			if !r.aboveLower(e.Key) {
				return true
			}
			return fn(e)
		}
		if r.FromUnbounded {
			m.tree.Ascend(visit)
		} else {
			m.tree.AscendGreaterOrEqual(Entry{Key: r.From}, visit)
		}
		return
	}
	visit := func(e Entry) bool {
		if !r.aboveLower(e.Key) {
			return false
		}
		if !r.belowUpper(e.Key) {
			return true
		}
		return fn(e)
	}
	if r.ToUnbounded {
		m.tree.Descend(visit)
	} else {
		m.tree.DescendLessOrEqual(Entry{Key: r.To}, visit)
	}
}

// Size returns the number of entries in r.
func (m *TreeMap) Size(r Range) int {
	if r.FromUnbounded && r.ToUnbounded {
		return m.tree.Len()
	}
	n := 0
	m.Scan(r, false, func(Entry) bool {
		n++
		return true
	})
	return n
}

// Clear removes every entry in r and invalidates all cursors whose range intersects r.
// It returns the number of removed entries and the ids of the invalidated cursors in ascending order.
func (m *TreeMap) Clear(r Range) (removed int, invalidated []int64) {
	if r.FromUnbounded && r.ToUnbounded {
		removed = m.tree.Len()
		m.tree.Clear(false)
	} else {
		var doomed []Entry
		m.Scan(r, false, func(e Entry) bool {
			doomed = append(doomed, e)
			return true
		})
		for _, e := range doomed {
			m.tree.Delete(e)
		}
		removed = len(doomed)
	}

	m.cursors.Range(func(id int64, c *Cursor) bool {
		if c.Range.Intersects(r) {
			invalidated = append(invalidated, id)
		}
		return true
	})
	for _, id := range invalidated {
		m.cursors.Delete(id)
	}
	return removed, invalidated
}
