package client

import (
	"context"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/rpc/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putCommand(key, value string) []byte {
	cmd := protocol.Command{Type: protocol.CommandTPut, Key: []byte(key), Value: []byte(value)}
	return cmd.Serialize()
}

func decodeVersion(t *testing.T, data []byte) int64 {
	res := protocol.Result{}
	require.NoError(t, res.Deserialize(data))
	return res.Version
}

func newTestMap[K any](t *testing.T, codec KeyCodec[K]) *TreeMap[K] {
	network := memory.NewNetwork()
	startServer(t, network, "node-1", 30)
	c := connect(t, network, testConfig(network), "node-1")
	return NewTreeMap[K](c, codec, store.Linearizable)
}

func TestTreeMapConditionalWrites(t *testing.T) {
	m := newTestMap[string](t, StringKeys{})
	ctx := context.Background()

	v1, err := m.Put(ctx, "k", []byte("v1"))
	require.NoError(t, err)

	v2, err := m.Replace(ctx, "k", []byte("v2"), v1)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	// stale expected version
	_, err = m.Replace(ctx, "k", []byte("v3"), v1)
	require.Error(t, err)
	assert.True(t, IsVersionMismatch(err), err.Error())

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", string(got.Value))
	assert.Equal(t, v2, got.Version)

	// PutIfAbsent keeps the existing value
	existing, loaded, err := m.PutIfAbsent(ctx, "k", []byte("other"))
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "v2", string(existing.Value))

	fresh, loaded, err := m.PutIfAbsent(ctx, "n", []byte("new"))
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, "new", string(fresh.Value))
	assert.Greater(t, fresh.Version, v2)

	err = m.RemoveIfVersion(ctx, "k", v1)
	assert.True(t, IsVersionMismatch(err))
	require.NoError(t, m.RemoveIfVersion(ctx, "k", v2))

	ok, err = m.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, ok, err := m.Remove(ctx, "n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new", string(removed.Value))

	_, ok, err = m.Remove(ctx, "n")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTreeMapNavigation(t *testing.T) {
	m := newTestMap[int64](t, Int64Keys{})
	ctx := context.Background()

	for _, k := range []int64{9, 1, 5} {
		_, err := m.Put(ctx, k, []byte(fmt.Sprint(k)))
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		fn    func(context.Context, int64) (int64, bool, error)
		key   int64
		want  int64
		found bool
	}{
		{"floor between", m.FloorKey, 6, 5, true},
		{"ceiling between", m.CeilingKey, 6, 9, true},
		{"floor below first", m.FloorKey, 0, 0, false},
		{"ceiling above last", m.CeilingKey, 10, 0, false},
		{"floor exact", m.FloorKey, 5, 5, true},
		{"lower exact", m.LowerKey, 5, 1, true},
		{"higher exact", m.HigherKey, 5, 9, true},
		{"higher last", m.HigherKey, 9, 0, false},
		{"lower first", m.LowerKey, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := tt.fn(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	first, ok, err := m.FirstKey(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), first)

	last, ok, err := m.LastEntry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(9), last.Key)
	assert.Equal(t, "9", string(last.Value))

	e, ok, err := m.CeilingEntry(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", string(e.Value))

	size, err := m.Size(ctx, Between[int64](1, false, 9, false))
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	size, err = m.Size(ctx, All[int64]())
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func TestTreeMapNegativeKeys(t *testing.T) {
	m := newTestMap[int64](t, Int64Keys{})
	ctx := context.Background()

	for _, k := range []int64{3, -7, 0, -1} {
		_, err := m.Put(ctx, k, nil)
		require.NoError(t, err)
	}

	var keys []int64
	require.NoError(t, m.ForEach(ctx, All[int64](), false, func(e Entry[int64]) error {
		keys = append(keys, e.Key)
		return nil
	}))
	assert.Equal(t, []int64{-7, -1, 0, 3}, keys)
}

func TestTreeMapPoll(t *testing.T) {
	m := newTestMap[string](t, StringKeys{})
	ctx := context.Background()

	_, ok, err := m.PollFirstEntry(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, k := range []string{"b", "a", "c"} {
		_, err := m.Put(ctx, k, []byte(k))
		require.NoError(t, err)
	}

	e, ok, err := m.PollFirstEntry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", e.Key)

	e, ok, err = m.PollLastEntry(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", e.Key)

	size, err := m.Size(ctx, All[string]())
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestTreeMapCursor(t *testing.T) {
	m := newTestMap[string](t, StringKeys{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := m.Put(ctx, fmt.Sprintf("k%02d", i), []byte{byte(i)})
		require.NoError(t, err)
	}

	cur, err := m.Iterate(ctx, AtLeast("k03"))
	require.NoError(t, err)
	assert.NotZero(t, cur.ID())

	entries, done, err := cur.Next(ctx, 4)
	require.NoError(t, err)
	assert.False(t, done)
	require.Len(t, entries, 4)
	assert.Equal(t, "k03", entries[0].Key)
	assert.Equal(t, "k06", entries[3].Key)

	// writes between batches are visible to the cursor
	_, err = m.Put(ctx, "k065", nil)
	require.NoError(t, err)

	var rest []string
	for e, err := range cur.Iterator(ctx, 2) {
		require.NoError(t, err)
		rest = append(rest, e.Key)
	}
	assert.Equal(t, []string{"k065", "k07", "k08", "k09"}, rest)
	assert.True(t, cur.Done())

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Cursors)
	assert.Equal(t, int64(11), info.Entries)
	assert.NotZero(t, info.Index)

	desc, err := m.IterateDescending(ctx, AtMost("k01"))
	require.NoError(t, err)
	_, _, err = desc.Next(ctx, -1)
	assert.Error(t, err, "negative batch size")
	entries, done, err = desc.Next(ctx, 0)
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, entries, 2)
	assert.Equal(t, "k01", entries[0].Key)
	assert.Equal(t, "k00", entries[1].Key)

	// the exhausted cursor is freed without Close, closing it anyway succeeds
	info, err = m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Cursors)
	require.NoError(t, desc.Close(ctx))
}

func TestTreeMapClearInvalidatesCursors(t *testing.T) {
	m := newTestMap[string](t, StringKeys{})
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "x"} {
		_, err := m.Put(ctx, k, nil)
		require.NoError(t, err)
	}

	inside, err := m.Iterate(ctx, Between("a", true, "c", true))
	require.NoError(t, err)
	outside, err := m.Iterate(ctx, AtLeast("x"))
	require.NoError(t, err)

	removed, err := m.Clear(ctx, Between("a", true, "b", true))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, _, err = inside.Next(ctx, 10)
	assert.True(t, IsCursorNotFound(err))
	assert.NoError(t, inside.Close(ctx))

	entries, done, err := outside.Next(ctx, 10)
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, entries, 1)
	assert.Equal(t, "x", entries[0].Key)
	require.NoError(t, outside.Close(ctx))
}

func TestTreeMapForEach(t *testing.T) {
	m := newTestMap[uint64](t, Uint64Keys{})
	ctx := context.Background()

	const n = 200
	for i := uint64(0); i < n; i++ {
		_, err := m.Put(ctx, i, []byte(fmt.Sprint(i)))
		require.NoError(t, err)
	}

	var keys []uint64
	err := m.ForEach(ctx, All[uint64](), true, func(e Entry[uint64]) error {
		keys = append(keys, e.Key)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, keys, n)
	for i, k := range keys {
		assert.Equal(t, uint64(n-1-i), k)
	}

	// an error of the handler stops the stream
	stop := fmt.Errorf("enough")
	count := 0
	err = m.ForEach(ctx, All[uint64](), false, func(Entry[uint64]) error {
		count++
		if count == 10 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 10, count)
}
