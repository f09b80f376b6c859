package client

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64KeysOrder(t *testing.T) {
	keys := []int64{math.MinInt64, -1000, -1, 0, 1, 42, math.MaxInt64}
	assertOrdered(t, Int64Keys{}, keys)
}

func TestUint64KeysOrder(t *testing.T) {
	keys := []uint64{0, 1, 255, 256, 1 << 40, math.MaxUint64}
	assertOrdered(t, Uint64Keys{}, keys)
}

func TestStringKeysOrder(t *testing.T) {
	keys := []string{"", "a", "ab", "b", "ba"}
	assertOrdered(t, StringKeys{}, keys)
}

func TestDecodeInvalidLength(t *testing.T) {
	_, err := Int64Keys{}.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = Uint64Keys{}.Decode(nil)
	assert.Error(t, err)
}

// assertOrdered checks that the sorted keys encode to sorted byte keys and decode to themselves
func assertOrdered[K comparable](t *testing.T, codec KeyCodec[K], sorted []K) {
	encoded := make([][]byte, len(sorted))
	for i, k := range sorted {
		encoded[i] = codec.Encode(k)
		decoded, err := codec.Decode(encoded[i])
		require.NoError(t, err)
		assert.Equal(t, k, decoded)
	}
	assert.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))
}
