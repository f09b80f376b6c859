package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/treemap"
)

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet          QueryType = iota // Retrieve an entry by key.
	QueryTContainsKey                   // Check if a key is present.
	QueryTFirstKey                      // Lowest key.
	QueryTLastKey                       // Highest key.
	QueryTFirstEntry                    // Entry with the lowest key.
	QueryTLastEntry                     // Entry with the highest key.
	QueryTCeilingEntry                  // Entry with the lowest key >= Key.
	QueryTFloorEntry                    // Entry with the highest key <= Key.
	QueryTHigherEntry                   // Entry with the lowest key > Key.
	QueryTLowerEntry                    // Entry with the highest key < Key.
	QueryTCeilingKey                    // Lowest key >= Key.
	QueryTFloorKey                      // Highest key <= Key.
	QueryTHigherKey                     // Lowest key > Key.
	QueryTLowerKey                      // Highest key < Key.
	QueryTSize                          // Number of entries in a range.
	QueryTScan                          // Entries of a range in key order.
	QueryTInfo                          // Metadata about the map.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTContainsKey:
		return "ContainsKey"
	case QueryTFirstKey:
		return "FirstKey"
	case QueryTLastKey:
		return "LastKey"
	case QueryTFirstEntry:
		return "FirstEntry"
	case QueryTLastEntry:
		return "LastEntry"
	case QueryTCeilingEntry:
		return "CeilingEntry"
	case QueryTFloorEntry:
		return "FloorEntry"
	case QueryTHigherEntry:
		return "HigherEntry"
	case QueryTLowerEntry:
		return "LowerEntry"
	case QueryTCeilingKey:
		return "CeilingKey"
	case QueryTFloorKey:
		return "FloorKey"
	case QueryTHigherKey:
		return "HigherKey"
	case QueryTLowerKey:
		return "LowerKey"
	case QueryTSize:
		return "Size"
	case QueryTScan:
		return "Scan"
	case QueryTInfo:
		return "Info"
	default:
		return fmt.Sprintf("Unknown(%d)", q)
	}
}

// keyOnly reports whether the query returns keys without values.
func (q QueryType) keyOnly() bool {
	switch q {
	case QueryTFirstKey, QueryTLastKey, QueryTCeilingKey, QueryTFloorKey, QueryTHigherKey, QueryTLowerKey:
		return true
	default:
		return false
	}
}

// Query defines the structure for lookup requests (read-only).
// Unlike commands, queries travel over the rpc layer to the replica and are serialized as well.
type Query struct {
	Type       QueryType
	Descending bool          // direction for Scan
	Limit      uint32        // maximum number of entries for Scan, 0 for no limit
	Range      treemap.Range // range for Size and Scan
	Key        []byte        // key for point and navigation queries
}

// queryHeaderSize is Type + Flags + Limit
const queryHeaderSize = 1 + 1 + 4

// SizeBytes returns the exact number of bytes needed to serialize this query
func (query *Query) SizeBytes() int {
	return queryHeaderSize + rangeSize(query.Range) + len(query.Key)
}

// Serialize serializes a query into a byte array with the format:
// 1 byte for query type,
// 1 byte of flags (bit 0: descending),
// 4 bytes for the limit (big endian),
// the range (see putRange),
// N bytes for key data (rest of the buffer)
func (query *Query) Serialize() []byte {
	result := make([]byte, query.SizeBytes())
	result[0] = byte(query.Type)
	if query.Descending {
		result[1] = 1
	}
	binary.BigEndian.PutUint32(result[2:6], query.Limit)
	off := queryHeaderSize + putRange(result[queryHeaderSize:], query.Range)
	copy(result[off:], query.Key)
	return result
}

// Deserialize extracts all Query fields from a byte array.
func (query *Query) Deserialize(data []byte) error {
	if len(data) < queryHeaderSize {
		return fmt.Errorf("data too short for query")
	}
	query.Type = QueryType(data[0])
	query.Descending = data[1]&1 == 1
	query.Limit = binary.BigEndian.Uint32(data[2:6])

	r, n, err := readRange(data[queryHeaderSize:])
	if err != nil {
		return err
	}
	query.Range = r
	query.Key = data[queryHeaderSize+n:]
	return nil
}
