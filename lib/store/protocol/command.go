package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/treemap"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTPut               CommandType = iota // Insert or update an entry.
	CommandTPutIfAbsent                          // Insert an entry if the key does not exist.
	CommandTReplace                              // Update an entry if its version matches.
	CommandTRemove                               // Remove an entry.
	CommandTRemoveIfVersion                      // Remove an entry if its version matches.
	CommandTPollFirst                            // Remove and return the lowest entry.
	CommandTPollLast                             // Remove and return the highest entry.
	CommandTIterate                              // Open an ascending cursor over a range.
	CommandTIterateDescending                    // Open a descending cursor over a range.
	CommandTCursorNext                           // Take the next batch of a cursor.
	CommandTCursorClose                          // Close a cursor.
	CommandTClear                                // Remove all entries in a range.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPut:
		return "Put"
	case CommandTPutIfAbsent:
		return "PutIfAbsent"
	case CommandTReplace:
		return "Replace"
	case CommandTRemove:
		return "Remove"
	case CommandTRemoveIfVersion:
		return "RemoveIfVersion"
	case CommandTPollFirst:
		return "PollFirstEntry"
	case CommandTPollLast:
		return "PollLastEntry"
	case CommandTIterate:
		return "Iterate"
	case CommandTIterateDescending:
		return "IterateDescending"
	case CommandTCursorNext:
		return "CursorNext"
	case CommandTCursorClose:
		return "CursorClose"
	case CommandTClear:
		return "Clear"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Fields that are not used by a command type are zero.
type Command struct {
	Type    CommandType
	Version int64         // expected version for Replace and RemoveIfVersion
	Cursor  int64         // cursor id for CursorNext and CursorClose
	Limit   uint32        // batch size for CursorNext
	Range   treemap.Range // range for Iterate, IterateDescending and Clear
	Key     []byte
	Value   []byte
}

// commandHeaderSize is Type + Version + Cursor + Limit
const commandHeaderSize = 1 + 8 + 8 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return commandHeaderSize + rangeSize(command.Range) + 4 + len(command.Key) + len(command.Value)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the expected version,
// 8 bytes for the cursor id,
// 4 bytes for the batch limit,
// the range (see putRange),
// 4 bytes for key length,
// N bytes for key data,
// N bytes for value data (rest of the buffer)
//
// All integers are big endian.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], uint64(command.Version))
	binary.BigEndian.PutUint64(result[9:17], uint64(command.Cursor))
	binary.BigEndian.PutUint32(result[17:21], command.Limit)

	off := putRange(result[commandHeaderSize:], command.Range) + commandHeaderSize

	binary.BigEndian.PutUint32(result[off:off+4], uint32(len(command.Key)))
	off += 4
	off += copy(result[off:], command.Key)
	copy(result[off:], command.Value)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Version = int64(binary.BigEndian.Uint64(data[1:9]))
	command.Cursor = int64(binary.BigEndian.Uint64(data[9:17]))
	command.Limit = binary.BigEndian.Uint32(data[17:21])

	r, n, err := readRange(data[commandHeaderSize:])
	if err != nil {
		return err
	}
	command.Range = r
	off := commandHeaderSize + n

	if len(data) < off+4 {
		return fmt.Errorf("data too short for key length")
	}
	keyLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+keyLen {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = data[off : off+keyLen]
	off += keyLen

	if len(data) > off {
		command.Value = data[off:]
	} else {
		command.Value = nil
	}
	return nil
}

// --------------------------------------------------------------------------
// Range encoding (shared by commands and queries)
// --------------------------------------------------------------------------

const (
	rangeFromInclusive = 1 << iota
	rangeToInclusive
	rangeFromUnbounded
	rangeToUnbounded
)

func rangeSize(r treemap.Range) int {
	return 1 + 4 + len(r.From) + 4 + len(r.To)
}

// putRange writes a range as 1 byte of flags, 4 bytes from length, from, 4 bytes to length, to.
// It returns the number of bytes written.
func putRange(buf []byte, r treemap.Range) int {
	var flags byte
	if r.FromInclusive {
		flags |= rangeFromInclusive
	}
	if r.ToInclusive {
		flags |= rangeToInclusive
	}
	if r.FromUnbounded {
		flags |= rangeFromUnbounded
	}
	if r.ToUnbounded {
		flags |= rangeToUnbounded
	}
	buf[0] = flags
	off := 1
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(r.From)))
	off += 4
	off += copy(buf[off:], r.From)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(r.To)))
	off += 4
	off += copy(buf[off:], r.To)
	return off
}

// readRange is the inverse of putRange. It returns the range and the number of bytes consumed.
func readRange(data []byte) (treemap.Range, int, error) {
	var r treemap.Range
	if len(data) < 5 {
		return r, 0, fmt.Errorf("data too short for range")
	}
	flags := data[0]
	r.FromInclusive = flags&rangeFromInclusive != 0
	r.ToInclusive = flags&rangeToInclusive != 0
	r.FromUnbounded = flags&rangeFromUnbounded != 0
	r.ToUnbounded = flags&rangeToUnbounded != 0

	off := 1
	fromLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+fromLen+4 {
		return r, 0, fmt.Errorf("data too short for range start of length %d", fromLen)
	}
	r.From = data[off : off+fromLen]
	off += fromLen

	toLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+toLen {
		return r, 0, fmt.Errorf("data too short for range end of length %d", toLen)
	}
	r.To = data[off : off+toLen]
	off += toLen
	return r, off, nil
}
