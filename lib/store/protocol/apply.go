package protocol

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/treemap"
)

const (
	// DefaultBatchSize is used by CursorNext commands without a limit.
	DefaultBatchSize = 128
	// MaxBatchSize caps the number of entries a single CursorNext returns.
	MaxBatchSize = 4096
)

// Apply executes a serialized command against the map as the log entry with the given index.
// The index becomes the version of written entries and the id of opened cursors.
// It returns the return code and either the serialized Result (RetCSuccess) or an error message.
//
// Apply is deterministic: it depends only on the map, the index and the command.
func Apply(m *treemap.TreeMap, index uint64, data []byte) (store.RetCode, []byte) {
	defer m.SetIndex(int64(index))

	if len(data) == 0 {
		return store.RetCInvalidOperation, []byte("empty command ignored")
	}
	cmd := Command{}
	if err := cmd.Deserialize(data); err != nil {
		return store.RetCInvalidOperation, []byte(fmt.Sprintf("failed to deserialize command: %v", err))
	}

	version := int64(index)
	res := Result{}

	switch cmd.Type {
	case CommandTPut:
		prev, replaced := m.Put(cmd.Key, cmd.Value, version)
		res.Version = version
		res.setEntry(prev, replaced)

	case CommandTPutIfAbsent:
		existing, loaded := m.PutIfAbsent(cmd.Key, cmd.Value, version)
		res.setEntry(existing, loaded)
		if loaded {
			res.Version = existing.Version
		} else {
			res.Version = version
		}

	case CommandTReplace:
		prev, err := m.Replace(cmd.Key, cmd.Value, cmd.Version, version)
		if err != nil {
			return failure(err, cmd)
		}
		res.Version = version
		res.setEntry(prev, true)

	case CommandTRemove:
		res.setEntry(m.Remove(cmd.Key))

	case CommandTRemoveIfVersion:
		prev, err := m.RemoveIfVersion(cmd.Key, cmd.Version)
		if err != nil {
			return failure(err, cmd)
		}
		res.setEntry(prev, true)

	case CommandTPollFirst:
		res.setEntry(m.PollFirst())

	case CommandTPollLast:
		res.setEntry(m.PollLast())

	case CommandTIterate, CommandTIterateDescending:
		if err := m.Iterate(version, cmd.Range, cmd.Type == CommandTIterateDescending); err != nil {
			return failure(err, cmd)
		}
		res.Cursor = version

	case CommandTCursorNext:
		limit := int(cmd.Limit)
		if limit == 0 {
			limit = DefaultBatchSize
		}
		if limit > MaxBatchSize {
			limit = MaxBatchSize
		}
		entries, done, err := m.CursorNext(cmd.Cursor, limit)
		if err != nil {
			return failure(err, cmd)
		}
		res.Cursor = cmd.Cursor
		res.Done = done
		res.Found = len(entries) > 0
		res.Entries = entries

	case CommandTCursorClose:
		if err := m.CursorClose(cmd.Cursor); err != nil {
			return failure(err, cmd)
		}
		res.Cursor = cmd.Cursor

	case CommandTClear:
		removed, _ := m.Clear(cmd.Range)
		res.Count = int64(removed)

	default:
		return store.RetCInvalidOperation, []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type))
	}

	return store.RetCSuccess, res.Serialize()
}

// Lookup evaluates a serialized query against the map and returns the serialized Result.
// Failures are returned as *store.Error.
func Lookup(m *treemap.TreeMap, data []byte) ([]byte, error) {
	res, err := Evaluate(m, data)
	if err != nil {
		return nil, err
	}
	return res.Serialize(), nil
}

// Evaluate evaluates a serialized query against the map.
func Evaluate(m *treemap.TreeMap, data []byte) (*Result, error) {
	q := Query{}
	if err := q.Deserialize(data); err != nil {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("failed to deserialize query: %v", err))
	}

	res := &Result{}
	switch q.Type {
	case QueryTGet:
		res.setEntry(m.Get(q.Key))
	case QueryTContainsKey:
		_, res.Found = m.Get(q.Key)
	case QueryTFirstKey, QueryTFirstEntry:
		res.setEntry(m.First())
	case QueryTLastKey, QueryTLastEntry:
		res.setEntry(m.Last())
	case QueryTCeilingKey, QueryTCeilingEntry:
		res.setEntry(m.Ceiling(q.Key))
	case QueryTFloorKey, QueryTFloorEntry:
		res.setEntry(m.Floor(q.Key))
	case QueryTHigherKey, QueryTHigherEntry:
		res.setEntry(m.Higher(q.Key))
	case QueryTLowerKey, QueryTLowerEntry:
		res.setEntry(m.Lower(q.Key))
	case QueryTSize:
		res.Count = int64(m.Size(q.Range))
	case QueryTScan:
		res.Done = true
		m.Scan(q.Range, q.Descending, func(e treemap.Entry) bool {
			if q.Limit > 0 && len(res.Entries) == int(q.Limit) {
				res.Done = false
				return false
			}
			res.Entries = append(res.Entries, e)
			return true
		})
		res.Found = len(res.Entries) > 0
		res.Count = int64(len(res.Entries))
	case QueryTInfo:
		res.Count = int64(m.Len())
		res.Cursor = int64(m.Cursors())
		res.Version = m.Index()
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %s", q.Type))
	}

	if q.Type.keyOnly() {
		for i := range res.Entries {
			res.Entries[i].Value = nil
		}
	}
	return res, nil
}

// setEntry stores e as the only entry if ok is set.
func (r *Result) setEntry(e treemap.Entry, ok bool) {
	r.Found = ok
	if ok {
		r.Entries = []treemap.Entry{e}
	}
}

// failure maps errors of the map to return codes.
func failure(err error, cmd Command) (store.RetCode, []byte) {
	code := store.RetCInternalError
	switch {
	case errors.Is(err, treemap.ErrVersionMismatch):
		code = store.RetCVersionMismatch
	case errors.Is(err, treemap.ErrCursorNotFound):
		code = store.RetCCursorNotFound
	case errors.Is(err, treemap.ErrCursorExists):
		code = store.RetCInvalidOperation
	}
	return code, []byte(fmt.Sprintf("%s: %v", cmd.Type, err))
}
