package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte MsgType | 1 byte Status | 1 byte Consistency | 2 bytes flags | optional fields
//
// Optional fields follow in the order of the flags below. Strings and byte slices are
// prefixed with their length (uint32), numbers are uint64, all big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasClientID    uint16 = 1 << 0
	hasSessionID   uint16 = 1 << 1
	hasSequence    uint16 = 1 << 2
	hasRespondedTo uint16 = 1 << 3
	hasPayload     uint16 = 1 << 4
	hasCode        uint16 = 1 << 5
	hasErr         uint16 = 1 << 6
	hasTerm        uint16 = 1 << 7
	hasLeader      uint16 = 1 << 8
	hasMembers     uint16 = 1 << 9
)

const headerSize = 5

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	// Write fixed header
	result[0] = byte(msg.MsgType)
	result[1] = byte(msg.Status)
	result[2] = byte(msg.Consistency)

	var flags uint16
	pos := headerSize

	putUint64 := func(v uint64) {
		binary.BigEndian.PutUint64(result[pos:pos+8], v)
		pos += 8
	}
	putBytes := func(v []byte) {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(v)))
		pos += 4
		pos += copy(result[pos:], v)
	}

	if msg.ClientID != "" {
		flags |= hasClientID
		putBytes([]byte(msg.ClientID))
	}
	if msg.SessionID != 0 {
		flags |= hasSessionID
		putUint64(msg.SessionID)
	}
	if msg.Sequence != 0 {
		flags |= hasSequence
		putUint64(msg.Sequence)
	}
	if msg.RespondedTo != 0 {
		flags |= hasRespondedTo
		putUint64(msg.RespondedTo)
	}
	if msg.Payload != nil {
		flags |= hasPayload
		putBytes(msg.Payload)
	}
	if msg.Code != 0 {
		flags |= hasCode
		putUint64(uint64(msg.Code))
	}
	if msg.Err != "" {
		flags |= hasErr
		putBytes([]byte(msg.Err))
	}
	if msg.Term != 0 {
		flags |= hasTerm
		putUint64(msg.Term)
	}
	if msg.Leader != "" {
		flags |= hasLeader
		putBytes([]byte(msg.Leader))
	}
	if len(msg.Members) > 0 {
		flags |= hasMembers
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Members)))
		pos += 4
		for _, m := range msg.Members {
			putBytes([]byte(m))
		}
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[3:5], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	msg.Status = common.Status(data[1])
	msg.Consistency = store.ReadConsistency(data[2])
	flags := binary.BigEndian.Uint16(data[3:5])

	pos := headerSize

	readUint64 := func(name string) (uint64, error) {
		if pos+8 > len(data) {
			return 0, fmt.Errorf("data too short for %s", name)
		}
		v := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}
	readBytes := func(name string) ([]byte, error) {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return nil, fmt.Errorf("data too short for %s data", name)
		}
		v := data[pos : pos+n]
		pos += n
		return v, nil
	}

	*msg = common.Message{MsgType: msg.MsgType, Status: msg.Status, Consistency: msg.Consistency}

	if flags&hasClientID != 0 {
		v, err := readBytes("client id")
		if err != nil {
			return err
		}
		msg.ClientID = string(v)
	}
	if flags&hasSessionID != 0 {
		v, err := readUint64("session id")
		if err != nil {
			return err
		}
		msg.SessionID = v
	}
	if flags&hasSequence != 0 {
		v, err := readUint64("sequence")
		if err != nil {
			return err
		}
		msg.Sequence = v
	}
	if flags&hasRespondedTo != 0 {
		v, err := readUint64("responded to")
		if err != nil {
			return err
		}
		msg.RespondedTo = v
	}
	if flags&hasPayload != 0 {
		v, err := readBytes("payload")
		if err != nil {
			return err
		}
		// copy, the buffer may be reused by the transport
		msg.Payload = make([]byte, len(v))
		copy(msg.Payload, v)
	}
	if flags&hasCode != 0 {
		v, err := readUint64("code")
		if err != nil {
			return err
		}
		msg.Code = store.RetCode(v)
	}
	if flags&hasErr != 0 {
		v, err := readBytes("error")
		if err != nil {
			return err
		}
		msg.Err = string(v)
	}
	if flags&hasTerm != 0 {
		v, err := readUint64("term")
		if err != nil {
			return err
		}
		msg.Term = v
	}
	if flags&hasLeader != 0 {
		v, err := readBytes("leader")
		if err != nil {
			return err
		}
		msg.Leader = string(v)
	}
	if flags&hasMembers != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for member count")
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if n > len(data)-pos {
			return fmt.Errorf("invalid member count %d", n)
		}
		msg.Members = make([]string, n)
		for i := range msg.Members {
			v, err := readBytes("member")
			if err != nil {
				return err
			}
			msg.Members[i] = string(v)
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.ClientID != "" {
		size += 4 + len(msg.ClientID)
	}
	if msg.SessionID != 0 {
		size += 8
	}
	if msg.Sequence != 0 {
		size += 8
	}
	if msg.RespondedTo != 0 {
		size += 8
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Term != 0 {
		size += 8
	}
	if msg.Leader != "" {
		size += 4 + len(msg.Leader)
	}
	if len(msg.Members) > 0 {
		size += 4
		for _, m := range msg.Members {
			size += 4 + len(m)
		}
	}

	return size
}
