package client

import (
	"encoding/binary"
	"fmt"
)

// KeyCodec maps application keys to byte keys. The encoding must preserve the order of the
// keys, the map compares encoded keys bytewise.
type KeyCodec[K any] interface {
	Encode(key K) []byte
	Decode(data []byte) (K, error)
}

// StringKeys stores strings as their UTF-8 bytes
type StringKeys struct{}

func (StringKeys) Encode(key string) []byte {
	return []byte(key)
}

func (StringKeys) Decode(data []byte) (string, error) {
	return string(data), nil
}

// Uint64Keys stores unsigned integers big endian
type Uint64Keys struct{}

func (Uint64Keys) Encode(key uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, key)
}

func (Uint64Keys) Decode(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid uint64 key of length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Int64Keys stores signed integers big endian with the sign bit flipped, so negative
// keys sort before positive ones
type Int64Keys struct{}

const signBit = uint64(1) << 63

func (Int64Keys) Encode(key int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(key)^signBit)
}

func (Int64Keys) Decode(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid int64 key of length %d", len(data))
	}
	return int64(binary.BigEndian.Uint64(data) ^ signBit), nil
}
