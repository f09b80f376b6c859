package client

import (
	"context"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/lib/treemap"
)

// Entry is a key of the map with its versioned value
type Entry[K any] struct {
	Key     K
	Value   []byte
	Version int64
}

// Versioned returns the value of the entry with its version
func (e Entry[K]) Versioned() treemap.Versioned[[]byte] {
	return treemap.Versioned[[]byte]{Value: e.Value, Version: e.Version}
}

// KeyRange is a range of application keys, see treemap.Range
type KeyRange[K any] struct {
	From, To                   K
	FromInclusive, ToInclusive bool
	FromUnbounded, ToUnbounded bool
}

// All is the range of all keys
func All[K any]() KeyRange[K] {
	return KeyRange[K]{FromUnbounded: true, ToUnbounded: true}
}

// Between is the range from..to with the given inclusivity at both ends
func Between[K any](from K, fromInclusive bool, to K, toInclusive bool) KeyRange[K] {
	return KeyRange[K]{From: from, To: to, FromInclusive: fromInclusive, ToInclusive: toInclusive}
}

// AtLeast is the range [from, +inf)
func AtLeast[K any](from K) KeyRange[K] {
	return KeyRange[K]{From: from, FromInclusive: true, ToUnbounded: true}
}

// AtMost is the range (-inf, to]
func AtMost[K any](to K) KeyRange[K] {
	return KeyRange[K]{To: to, ToInclusive: true, FromUnbounded: true}
}

// Info describes the state of the map
type Info struct {
	Entries int64
	Cursors int64
	Index   int64 // last applied log index
}

// TreeMap is the ordered map of a shard with typed keys. All methods block until the
// request completed or ctx ended.
type TreeMap[K any] struct {
	client      *RaftClient
	codec       KeyCodec[K]
	consistency store.ReadConsistency
}

// NewTreeMap creates a typed view of the map served by the client's shard.
// Queries use the given consistency.
func NewTreeMap[K any](client *RaftClient, codec KeyCodec[K], consistency store.ReadConsistency) *TreeMap[K] {
	return &TreeMap[K]{client: client, codec: codec, consistency: consistency}
}

// Client returns the session the map uses
func (m *TreeMap[K]) Client() *RaftClient {
	return m.client
}

// --------------------------------------------------------------------------
// Base map
// --------------------------------------------------------------------------

// Get returns the value stored under key
func (m *TreeMap[K]) Get(ctx context.Context, key K) (treemap.Versioned[[]byte], bool, error) {
	e, ok, err := m.queryEntry(ctx, protocol.QueryTGet, key)
	return e.Versioned(), ok, err
}

// ContainsKey reports whether key is present
func (m *TreeMap[K]) ContainsKey(ctx context.Context, key K) (bool, error) {
	res, err := m.query(ctx, protocol.Query{Type: protocol.QueryTContainsKey, Key: m.codec.Encode(key)})
	if err != nil {
		return false, err
	}
	return res.Found, nil
}

// Put stores value under key and returns the new version
func (m *TreeMap[K]) Put(ctx context.Context, key K, value []byte) (int64, error) {
	res, err := m.command(ctx, protocol.Command{Type: protocol.CommandTPut, Key: m.codec.Encode(key), Value: value})
	if err != nil {
		return 0, err
	}
	return res.Version, nil
}

// PutIfAbsent stores value if key is not present. It returns the stored value and whether
// it was present before.
func (m *TreeMap[K]) PutIfAbsent(ctx context.Context, key K, value []byte) (treemap.Versioned[[]byte], bool, error) {
	res, err := m.command(ctx, protocol.Command{Type: protocol.CommandTPutIfAbsent, Key: m.codec.Encode(key), Value: value})
	if err != nil {
		return treemap.Versioned[[]byte]{}, false, err
	}
	if e, ok := res.First(); ok && res.Found {
		return e.Versioned(), true, nil
	}
	return treemap.Versioned[[]byte]{Value: value, Version: res.Version}, false, nil
}

// Replace stores value if key is stored with expectedVersion and returns the new version.
// A mismatch fails with a CommandFailedError, see IsVersionMismatch.
func (m *TreeMap[K]) Replace(ctx context.Context, key K, value []byte, expectedVersion int64) (int64, error) {
	res, err := m.command(ctx, protocol.Command{Type: protocol.CommandTReplace, Key: m.codec.Encode(key), Value: value, Version: expectedVersion})
	if err != nil {
		return 0, err
	}
	return res.Version, nil
}

// Remove deletes key and returns the removed value
func (m *TreeMap[K]) Remove(ctx context.Context, key K) (treemap.Versioned[[]byte], bool, error) {
	e, ok, err := m.commandEntry(ctx, protocol.Command{Type: protocol.CommandTRemove, Key: m.codec.Encode(key)})
	return e.Versioned(), ok, err
}

// RemoveIfVersion deletes key if it is stored with expectedVersion
func (m *TreeMap[K]) RemoveIfVersion(ctx context.Context, key K, expectedVersion int64) error {
	_, err := m.command(ctx, protocol.Command{Type: protocol.CommandTRemoveIfVersion, Key: m.codec.Encode(key), Version: expectedVersion})
	return err
}

// --------------------------------------------------------------------------
// Navigation
// --------------------------------------------------------------------------

func (m *TreeMap[K]) FirstKey(ctx context.Context) (K, bool, error) {
	return m.queryKey(ctx, protocol.QueryTFirstKey, nil)
}

func (m *TreeMap[K]) LastKey(ctx context.Context) (K, bool, error) {
	return m.queryKey(ctx, protocol.QueryTLastKey, nil)
}

func (m *TreeMap[K]) FirstEntry(ctx context.Context) (Entry[K], bool, error) {
	return m.queryEntryRaw(ctx, protocol.QueryTFirstEntry, nil)
}

func (m *TreeMap[K]) LastEntry(ctx context.Context) (Entry[K], bool, error) {
	return m.queryEntryRaw(ctx, protocol.QueryTLastEntry, nil)
}

// CeilingEntry returns the entry with the lowest key >= key
func (m *TreeMap[K]) CeilingEntry(ctx context.Context, key K) (Entry[K], bool, error) {
	return m.queryEntry(ctx, protocol.QueryTCeilingEntry, key)
}

// FloorEntry returns the entry with the highest key <= key
func (m *TreeMap[K]) FloorEntry(ctx context.Context, key K) (Entry[K], bool, error) {
	return m.queryEntry(ctx, protocol.QueryTFloorEntry, key)
}

// HigherEntry returns the entry with the lowest key > key
func (m *TreeMap[K]) HigherEntry(ctx context.Context, key K) (Entry[K], bool, error) {
	return m.queryEntry(ctx, protocol.QueryTHigherEntry, key)
}

// LowerEntry returns the entry with the highest key < key
func (m *TreeMap[K]) LowerEntry(ctx context.Context, key K) (Entry[K], bool, error) {
	return m.queryEntry(ctx, protocol.QueryTLowerEntry, key)
}

func (m *TreeMap[K]) CeilingKey(ctx context.Context, key K) (K, bool, error) {
	return m.queryKey(ctx, protocol.QueryTCeilingKey, m.codec.Encode(key))
}

func (m *TreeMap[K]) FloorKey(ctx context.Context, key K) (K, bool, error) {
	return m.queryKey(ctx, protocol.QueryTFloorKey, m.codec.Encode(key))
}

func (m *TreeMap[K]) HigherKey(ctx context.Context, key K) (K, bool, error) {
	return m.queryKey(ctx, protocol.QueryTHigherKey, m.codec.Encode(key))
}

func (m *TreeMap[K]) LowerKey(ctx context.Context, key K) (K, bool, error) {
	return m.queryKey(ctx, protocol.QueryTLowerKey, m.codec.Encode(key))
}

// PollFirstEntry removes and returns the entry with the lowest key
func (m *TreeMap[K]) PollFirstEntry(ctx context.Context) (Entry[K], bool, error) {
	return m.commandEntry(ctx, protocol.Command{Type: protocol.CommandTPollFirst})
}

// PollLastEntry removes and returns the entry with the highest key
func (m *TreeMap[K]) PollLastEntry(ctx context.Context) (Entry[K], bool, error) {
	return m.commandEntry(ctx, protocol.Command{Type: protocol.CommandTPollLast})
}

// --------------------------------------------------------------------------
// Ranges
// --------------------------------------------------------------------------

// Size counts the entries in r
func (m *TreeMap[K]) Size(ctx context.Context, r KeyRange[K]) (int64, error) {
	res, err := m.query(ctx, protocol.Query{Type: protocol.QueryTSize, Range: m.encodeRange(r)})
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Clear removes all entries in r and returns their number. Cursors over an intersecting
// range are invalidated.
func (m *TreeMap[K]) Clear(ctx context.Context, r KeyRange[K]) (int64, error) {
	res, err := m.command(ctx, protocol.Command{Type: protocol.CommandTClear, Range: m.encodeRange(r)})
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Iterate opens a cursor over r in ascending key order
func (m *TreeMap[K]) Iterate(ctx context.Context, r KeyRange[K]) (*Cursor[K], error) {
	return m.openCursor(ctx, protocol.CommandTIterate, r)
}

// IterateDescending opens a cursor over r in descending key order
func (m *TreeMap[K]) IterateDescending(ctx context.Context, r KeyRange[K]) (*Cursor[K], error) {
	return m.openCursor(ctx, protocol.CommandTIterateDescending, r)
}

// ForEach streams the entries of r to fn without opening a cursor. The entries are read with
// the consistency of the map. An error of fn stops the stream and is returned.
func (m *TreeMap[K]) ForEach(ctx context.Context, r KeyRange[K], descending bool, fn func(Entry[K]) error) error {
	q := protocol.Query{Type: protocol.QueryTScan, Range: m.encodeRange(r), Descending: descending}

	header := true
	_, err := m.client.ReadStream(ctx, q.Serialize(), func(record []byte) error {
		// the first record is the result header
		if header {
			header = false
			return nil
		}
		raw, err := protocol.DecodeEntry(record)
		if err != nil {
			return err
		}
		e, err := m.decodeEntry(raw)
		if err != nil {
			return err
		}
		return fn(e)
	}, WithConsistency(m.consistency)).Get(ctx)
	return err
}

// Info returns the number of entries and cursors and the last applied index
func (m *TreeMap[K]) Info(ctx context.Context) (Info, error) {
	res, err := m.query(ctx, protocol.Query{Type: protocol.QueryTInfo})
	if err != nil {
		return Info{}, err
	}
	return Info{Entries: res.Count, Cursors: res.Cursor, Index: res.Version}, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (m *TreeMap[K]) command(ctx context.Context, cmd protocol.Command) (*protocol.Result, error) {
	data, err := m.client.Write(ctx, cmd.Serialize()).Get(ctx)
	if err != nil {
		return nil, err
	}
	res := &protocol.Result{}
	if err := res.Deserialize(data); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *TreeMap[K]) query(ctx context.Context, q protocol.Query) (*protocol.Result, error) {
	data, err := m.client.Read(ctx, q.Serialize(), WithConsistency(m.consistency)).Get(ctx)
	if err != nil {
		return nil, err
	}
	res := &protocol.Result{}
	if err := res.Deserialize(data); err != nil {
		return nil, err
	}
	return res, nil
}

func (m *TreeMap[K]) commandEntry(ctx context.Context, cmd protocol.Command) (Entry[K], bool, error) {
	res, err := m.command(ctx, cmd)
	if err != nil {
		return Entry[K]{}, false, err
	}
	return m.firstEntry(res)
}

func (m *TreeMap[K]) queryEntry(ctx context.Context, t protocol.QueryType, key K) (Entry[K], bool, error) {
	return m.queryEntryRaw(ctx, t, m.codec.Encode(key))
}

func (m *TreeMap[K]) queryEntryRaw(ctx context.Context, t protocol.QueryType, key []byte) (Entry[K], bool, error) {
	res, err := m.query(ctx, protocol.Query{Type: t, Key: key})
	if err != nil {
		return Entry[K]{}, false, err
	}
	return m.firstEntry(res)
}

func (m *TreeMap[K]) queryKey(ctx context.Context, t protocol.QueryType, key []byte) (K, bool, error) {
	e, ok, err := m.queryEntryRaw(ctx, t, key)
	return e.Key, ok, err
}

func (m *TreeMap[K]) firstEntry(res *protocol.Result) (Entry[K], bool, error) {
	raw, ok := res.First()
	if !ok || !res.Found {
		return Entry[K]{}, false, nil
	}
	e, err := m.decodeEntry(raw)
	if err != nil {
		return Entry[K]{}, false, err
	}
	return e, true, nil
}

func (m *TreeMap[K]) decodeEntry(raw treemap.Entry) (Entry[K], error) {
	key, err := m.codec.Decode(raw.Key)
	if err != nil {
		return Entry[K]{}, err
	}
	return Entry[K]{Key: key, Value: raw.Value, Version: raw.Version}, nil
}

func (m *TreeMap[K]) encodeRange(r KeyRange[K]) treemap.Range {
	tr := treemap.Range{
		FromInclusive: r.FromInclusive,
		ToInclusive:   r.ToInclusive,
		FromUnbounded: r.FromUnbounded,
		ToUnbounded:   r.ToUnbounded,
	}
	if !r.FromUnbounded {
		tr.From = m.codec.Encode(r.From)
	}
	if !r.ToUnbounded {
		tr.To = m.codec.Encode(r.To)
	}
	return tr
}

func (m *TreeMap[K]) openCursor(ctx context.Context, t protocol.CommandType, r KeyRange[K]) (*Cursor[K], error) {
	res, err := m.command(ctx, protocol.Command{Type: t, Range: m.encodeRange(r)})
	if err != nil {
		return nil, err
	}
	return &Cursor[K]{m: m, id: res.Cursor}, nil
}
