package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/treemap"
)

// Result is the outcome of a command or query. Which fields are set depends on the operation:
//
//   - Found: a point or navigation operation hit an entry (the entry is Entries[0]),
//     a mutation replaced or removed an entry, PutIfAbsent found an existing entry.
//   - Done: a cursor or scan has no entries left.
//   - Count: Size, Clear and Info (number of entries).
//   - Cursor: Iterate (id of the new cursor), CursorNext (id), Info (number of open cursors).
//   - Version: mutations (version written), Info (last applied index).
type Result struct {
	Found   bool
	Done    bool
	Count   int64
	Cursor  int64
	Version int64
	Entries []treemap.Entry
}

const (
	resultFound = 1 << iota
	resultDone
)

// headerSize is Flags + Count + Cursor + Version
const headerSize = 1 + 8 + 8 + 8

// Records returns the result as a list of records: the header followed by one record per entry.
// Streaming responses send each record as its own frame.
func (r *Result) Records() [][]byte {
	records := make([][]byte, 0, 1+len(r.Entries))
	records = append(records, r.header())
	for i := range r.Entries {
		records = append(records, EncodeEntry(r.Entries[i]))
	}
	return records
}

func (r *Result) header() []byte {
	h := make([]byte, headerSize)
	if r.Found {
		h[0] |= resultFound
	}
	if r.Done {
		h[0] |= resultDone
	}
	binary.BigEndian.PutUint64(h[1:9], uint64(r.Count))
	binary.BigEndian.PutUint64(h[9:17], uint64(r.Cursor))
	binary.BigEndian.PutUint64(h[17:25], uint64(r.Version))
	return h
}

// DecodeHeader reads the header record into r. Entries are left untouched.
func (r *Result) DecodeHeader(record []byte) error {
	if len(record) != headerSize {
		return fmt.Errorf("invalid result header of length %d", len(record))
	}
	r.Found = record[0]&resultFound != 0
	r.Done = record[0]&resultDone != 0
	r.Count = int64(binary.BigEndian.Uint64(record[1:9]))
	r.Cursor = int64(binary.BigEndian.Uint64(record[9:17]))
	r.Version = int64(binary.BigEndian.Uint64(record[17:25]))
	return nil
}

// Serialize encodes all records with a 4 byte length prefix each.
func (r *Result) Serialize() []byte {
	records := r.Records()
	size := 0
	for _, rec := range records {
		size += 4 + len(rec)
	}
	out := make([]byte, 0, size)
	for _, rec := range records {
		out = binary.BigEndian.AppendUint32(out, uint32(len(rec)))
		out = append(out, rec...)
	}
	return out
}

// Deserialize is the inverse of Serialize.
func (r *Result) Deserialize(data []byte) error {
	records, err := SplitRecords(data)
	if err != nil {
		return err
	}
	return r.FromRecords(records)
}

// SplitRecords splits a serialized result into its records without decoding them.
func SplitRecords(data []byte) ([][]byte, error) {
	var records [][]byte
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("data too short for record length")
		}
		n := int(binary.BigEndian.Uint32(data[:4]))
		if len(data) < 4+n {
			return nil, fmt.Errorf("data too short for record of length %d", n)
		}
		records = append(records, data[4:4+n])
		data = data[4+n:]
	}
	return records, nil
}

// FromRecords rebuilds a result from its records.
func (r *Result) FromRecords(records [][]byte) error {
	if len(records) == 0 {
		return fmt.Errorf("result without header")
	}
	if err := r.DecodeHeader(records[0]); err != nil {
		return err
	}
	r.Entries = make([]treemap.Entry, 0, len(records)-1)
	for _, rec := range records[1:] {
		e, err := DecodeEntry(rec)
		if err != nil {
			return err
		}
		r.Entries = append(r.Entries, e)
	}
	return nil
}

// First returns the first entry of the result.
func (r *Result) First() (treemap.Entry, bool) {
	if len(r.Entries) == 0 {
		return treemap.Entry{}, false
	}
	return r.Entries[0], true
}

// EncodeEntry encodes an entry as 4 bytes key length, key, 8 bytes version, value.
func EncodeEntry(e treemap.Entry) []byte {
	out := make([]byte, 4+len(e.Key)+8+len(e.Value))
	binary.BigEndian.PutUint32(out[:4], uint32(len(e.Key)))
	off := 4 + copy(out[4:], e.Key)
	binary.BigEndian.PutUint64(out[off:off+8], uint64(e.Version))
	copy(out[off+8:], e.Value)
	return out
}

// DecodeEntry is the inverse of EncodeEntry.
func DecodeEntry(record []byte) (treemap.Entry, error) {
	var e treemap.Entry
	if len(record) < 4 {
		return e, fmt.Errorf("data too short for entry")
	}
	keyLen := int(binary.BigEndian.Uint32(record[:4]))
	if len(record) < 4+keyLen+8 {
		return e, fmt.Errorf("data too short for entry with key of length %d", keyLen)
	}
	e.Key = record[4 : 4+keyLen]
	e.Version = int64(binary.BigEndian.Uint64(record[4+keyLen : 12+keyLen]))
	if len(record) > 12+keyLen {
		e.Value = record[12+keyLen:]
	}
	return e, nil
}
