package treemap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

// k encodes an int as an order preserving key
func k(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i)^(1<<63))
	return b
}

func keysOf(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Key)
	}
	return out
}

func newFilled(keys ...string) *TreeMap {
	m := New()
	for i, key := range keys {
		m.Put([]byte(key), []byte("v-"+key), int64(i+1))
	}
	return m
}

func TestNavigation(t *testing.T) {
	m := New()
	m.Put(k(1), []byte("x"), 1)
	m.Put(k(5), []byte("y"), 2)
	m.Put(k(9), []byte("z"), 3)

	tests := []struct {
		name  string
		fn    func([]byte) (Entry, bool)
		key   int
		want  int
		found bool
	}{
		{"Floor(6)", m.Floor, 6, 5, true},
		{"Ceiling(6)", m.Ceiling, 6, 9, true},
		{"Floor(0)", m.Floor, 0, 0, false},
		{"Ceiling(5)", m.Ceiling, 5, 5, true},
		{"Higher(5)", m.Higher, 5, 9, true},
		{"Floor(5)", m.Floor, 5, 5, true},
		{"Lower(5)", m.Lower, 5, 1, true},
		{"Higher(9)", m.Higher, 9, 0, false},
		{"Lower(1)", m.Lower, 1, 0, false},
		{"Ceiling(10)", m.Ceiling, 10, 0, false},
		{"Floor(100)", m.Floor, 100, 9, true},
		{"Lower(-3)", m.Lower, -3, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := tt.fn(k(tt.key))
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && !bytes.Equal(e.Key, k(tt.want)) {
				t.Errorf("key = %x, want %x", e.Key, k(tt.want))
			}
		})
	}
}

func TestEmptyMap(t *testing.T) {
	m := New()

	if _, ok := m.First(); ok {
		t.Errorf("First() on empty map found an entry")
	}
	if _, ok := m.Last(); ok {
		t.Errorf("Last() on empty map found an entry")
	}
	for name, fn := range map[string]func([]byte) (Entry, bool){
		"Ceiling": m.Ceiling, "Floor": m.Floor, "Higher": m.Higher, "Lower": m.Lower,
	} {
		if _, ok := fn([]byte("a")); ok {
			t.Errorf("%s() on empty map found an entry", name)
		}
	}
	if _, ok := m.PollFirst(); ok {
		t.Errorf("PollFirst() on empty map found an entry")
	}
	if _, ok := m.PollLast(); ok {
		t.Errorf("PollLast() on empty map found an entry")
	}
	if n := m.Size(All()); n != 0 {
		t.Errorf("Size() = %d, want 0", n)
	}
}

func TestVersions(t *testing.T) {
	m := New()
	key := []byte("a")

	if _, replaced := m.Put(key, []byte("v1"), 1); replaced {
		t.Fatalf("first Put reported a replaced entry")
	}
	prev, err := m.Replace(key, []byte("v2"), 1, 2)
	if err != nil {
		t.Fatalf("Replace with matching version failed: %v", err)
	}
	if string(prev.Value) != "v1" || prev.Version != 1 {
		t.Errorf("Replace returned %s@%d, want v1@1", prev.Value, prev.Version)
	}

	if _, err := m.Replace(key, []byte("v3"), 1, 3); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("Replace with stale version: err = %v, want ErrVersionMismatch", err)
	}
	e, _ := m.Get(key)
	if string(e.Value) != "v2" || e.Version != 2 {
		t.Errorf("stored %s@%d after failed Replace, want v2@2", e.Value, e.Version)
	}

	if _, err := m.Replace([]byte("missing"), []byte("x"), 0, 4); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Replace on missing key: err = %v, want ErrVersionMismatch", err)
	}
	if _, err := m.RemoveIfVersion(key, 1); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("RemoveIfVersion with stale version: err = %v, want ErrVersionMismatch", err)
	}
	if _, err := m.RemoveIfVersion(key, 2); err != nil {
		t.Errorf("RemoveIfVersion with matching version failed: %v", err)
	}
	if _, ok := m.Get(key); ok {
		t.Errorf("key still present after RemoveIfVersion")
	}
}

func TestPutIfAbsent(t *testing.T) {
	m := New()
	if _, loaded := m.PutIfAbsent([]byte("a"), []byte("1"), 1); loaded {
		t.Fatalf("PutIfAbsent on empty map reported loaded")
	}
	existing, loaded := m.PutIfAbsent([]byte("a"), []byte("2"), 2)
	if !loaded || string(existing.Value) != "1" || existing.Version != 1 {
		t.Errorf("PutIfAbsent = %s@%d loaded=%v, want 1@1 loaded=true", existing.Value, existing.Version, loaded)
	}
}

func TestPutCopiesInput(t *testing.T) {
	m := New()
	key, value := []byte("key"), []byte("value")
	m.Put(key, value, 1)
	key[0], value[0] = 'X', 'X'

	e, ok := m.Get([]byte("key"))
	if !ok || string(e.Value) != "value" {
		t.Errorf("stored entry changed with caller buffers: %q %v", e.Value, ok)
	}
}

func TestPoll(t *testing.T) {
	m := newFilled("b", "a", "c")

	if e, _ := m.PollFirst(); string(e.Key) != "a" {
		t.Errorf("PollFirst() = %s, want a", e.Key)
	}
	if e, _ := m.PollLast(); string(e.Key) != "c" {
		t.Errorf("PollLast() = %s, want c", e.Key)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestScanAndSize(t *testing.T) {
	m := newFilled("a", "b", "c", "d", "e")

	tests := []struct {
		name string
		r    Range
		want []string
	}{
		{"closed", Closed([]byte("b"), []byte("d")), []string{"b", "c", "d"}},
		{"open", Range{From: []byte("b"), To: []byte("d")}, []string{"c"}},
		{"half open", Range{From: []byte("b"), To: []byte("d"), FromInclusive: true}, []string{"b", "c"}},
		{"at least", AtLeast([]byte("cc")), []string{"d", "e"}},
		{"at most", AtMost([]byte("b")), []string{"a", "b"}},
		{"all", All(), []string{"a", "b", "c", "d", "e"}},
		{"inverted", Closed([]byte("d"), []byte("b")), []string{}},
		{"single point", Closed([]byte("c"), []byte("c")), []string{"c"}},
		{"empty point", Range{From: []byte("c"), To: []byte("c"), FromInclusive: true}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var asc, desc []Entry
			m.Scan(tt.r, false, func(e Entry) bool { asc = append(asc, e); return true })
			m.Scan(tt.r, true, func(e Entry) bool { desc = append(desc, e); return true })

			if got := fmt.Sprint(keysOf(asc)); got != fmt.Sprint(tt.want) {
				t.Errorf("ascending = %v, want %v", got, tt.want)
			}
			rev := make([]string, len(tt.want))
			for i, key := range tt.want {
				rev[len(tt.want)-1-i] = key
			}
			if got := fmt.Sprint(keysOf(desc)); got != fmt.Sprint(rev) {
				t.Errorf("descending = %v, want %v", got, rev)
			}
			if n := m.Size(tt.r); n != len(tt.want) {
				t.Errorf("Size() = %d, want %d", n, len(tt.want))
			}
		})
	}
}

func drain(t *testing.T, m *TreeMap, id int64, batch int) []string {
	t.Helper()
	var out []string
	for i := 0; i < 100; i++ {
		entries, done, err := m.CursorNext(id, batch)
		if err != nil {
			t.Fatalf("CursorNext(%d) failed: %v", id, err)
		}
		out = append(out, keysOf(entries)...)
		if done {
			return out
		}
	}
	t.Fatalf("cursor %d did not finish", id)
	return nil
}

func TestCursorIteration(t *testing.T) {
	m := newFilled("a", "b", "c", "d", "e", "f", "g")
	r := Closed([]byte("b"), []byte("f"))

	if err := m.Iterate(10, r, false); err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if err := m.Iterate(11, r, true); err != nil {
		t.Fatalf("IterateDescending failed: %v", err)
	}
	if err := m.Iterate(10, r, false); !errors.Is(err, ErrCursorExists) {
		t.Errorf("reusing cursor id: err = %v, want ErrCursorExists", err)
	}

	if got := fmt.Sprint(drain(t, m, 10, 2)); got != "[b c d e f]" {
		t.Errorf("ascending cursor = %s, want [b c d e f]", got)
	}
	if got := fmt.Sprint(drain(t, m, 11, 3)); got != "[f e d c b]" {
		t.Errorf("descending cursor = %s, want [f e d c b]", got)
	}

	// exact batch size reports done in the same call
	if err := m.Iterate(12, Closed([]byte("a"), []byte("b")), false); err != nil {
		t.Fatal(err)
	}
	entries, done, _ := m.CursorNext(12, 2)
	if len(entries) != 2 || !done {
		t.Errorf("CursorNext = %d entries done=%v, want 2 entries done=true", len(entries), done)
	}

	if err := m.Iterate(13, r, false); err != nil {
		t.Fatal(err)
	}
	if _, done, _ := m.CursorNext(13, 1); done {
		t.Fatalf("cursor 13 finished after one entry")
	}
	if err := m.CursorClose(13); err != nil {
		t.Errorf("CursorClose failed: %v", err)
	}
	if err := m.Iterate(13, r, false); !errors.Is(err, ErrCursorExists) {
		t.Errorf("reusing a closed cursor id: err = %v, want ErrCursorExists", err)
	}
	if _, _, err := m.CursorNext(13, 1); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("CursorNext after close: err = %v, want ErrCursorNotFound", err)
	}
	if err := m.CursorClose(13); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("second CursorClose: err = %v, want ErrCursorNotFound", err)
	}
}

func TestExhaustedCursorIsRemoved(t *testing.T) {
	m := newFilled("a", "b")
	if err := m.Iterate(10, All(), false); err != nil {
		t.Fatal(err)
	}

	entries, done, err := m.CursorNext(10, 10)
	if err != nil || len(entries) != 2 || !done {
		t.Fatalf("CursorNext = %d entries done=%v err=%v, want 2 entries done=true", len(entries), done, err)
	}
	if m.Cursors() != 0 {
		t.Errorf("Cursors() = %d after exhaustion, want 0", m.Cursors())
	}
	if _, _, err := m.CursorNext(10, 10); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("CursorNext after exhaustion: err = %v, want ErrCursorNotFound", err)
	}
	if err := m.Iterate(10, All(), false); !errors.Is(err, ErrCursorExists) {
		t.Errorf("reusing an exhausted cursor id: err = %v, want ErrCursorExists", err)
	}

	// a cursor over an empty range is done with its first batch
	if err := m.Iterate(11, Closed([]byte("x"), []byte("z")), true); err != nil {
		t.Fatal(err)
	}
	entries, done, _ = m.CursorNext(11, 5)
	if len(entries) != 0 || !done || m.Cursors() != 0 {
		t.Errorf("empty range: %d entries done=%v cursors=%d", len(entries), done, m.Cursors())
	}
}

func TestCursorSeesLaterWrites(t *testing.T) {
	m := newFilled("a", "c", "e")
	if err := m.Iterate(1, All(), false); err != nil {
		t.Fatal(err)
	}
	entries, _, _ := m.CursorNext(1, 1)
	if got := fmt.Sprint(keysOf(entries)); got != "[a]" {
		t.Fatalf("first batch = %s, want [a]", got)
	}
	m.Put([]byte("b"), nil, 10)
	m.Remove([]byte("c"))

	if got := fmt.Sprint(drain(t, m, 1, 10)); got != "[b e]" {
		t.Errorf("remaining = %s, want [b e]", got)
	}
}

func TestClearInvalidatesCursors(t *testing.T) {
	m := newFilled("a", "b", "c", "d", "e", "f")

	_ = m.Iterate(1, Closed([]byte("a"), []byte("b")), false)
	_ = m.Iterate(2, Closed([]byte("b"), []byte("d")), false)
	_ = m.Iterate(3, Range{From: []byte("e"), ToUnbounded: true}, true)
	_ = m.Iterate(4, Range{From: []byte("a"), To: []byte("c"), FromInclusive: true}, false)

	removed, invalidated := m.Clear(Closed([]byte("c"), []byte("e")))
	if removed != 3 {
		t.Errorf("Clear removed %d entries, want 3", removed)
	}
	if got := fmt.Sprint(invalidated); got != "[2]" {
		t.Errorf("invalidated = %s, want [2]", got)
	}
	if got := fmt.Sprint(drain(t, m, 1, 5)); got != "[a b]" {
		t.Errorf("untouched cursor = %s, want [a b]", got)
	}
	if _, _, err := m.CursorNext(2, 1); !errors.Is(err, ErrCursorNotFound) {
		t.Errorf("invalidated cursor: err = %v, want ErrCursorNotFound", err)
	}

	var left []Entry
	m.Scan(All(), false, func(e Entry) bool { left = append(left, e); return true })
	if got := fmt.Sprint(keysOf(left)); got != "[a b f]" {
		t.Errorf("entries after Clear = %s, want [a b f]", got)
	}

	// cursor 1 is exhausted and gone, 3 and 4 are still open
	removed, invalidated = m.Clear(All())
	if removed != 3 || fmt.Sprint(invalidated) != "[3 4]" {
		t.Errorf("Clear(All) = %d removed, %v invalidated", removed, invalidated)
	}
	if m.Cursors() != 0 {
		t.Errorf("Cursors() = %d after Clear(All), want 0", m.Cursors())
	}
}

func TestSaveLoad(t *testing.T) {
	m := newFilled("a", "b", "c", "d")
	m.SetIndex(42)
	_ = m.Iterate(7, Closed([]byte("a"), []byte("d")), false)
	_, _, _ = m.CursorNext(7, 2)
	_ = m.Iterate(9, All(), true)

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := New()
	if err := restored.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if restored.Index() != 42 {
		t.Errorf("Index() = %d, want 42", restored.Index())
	}
	if restored.Len() != 4 || restored.Cursors() != 2 {
		t.Errorf("restored %d entries and %d cursors, want 4 and 2", restored.Len(), restored.Cursors())
	}
	e, ok := restored.Get([]byte("c"))
	if !ok || string(e.Value) != "v-c" || e.Version != 3 {
		t.Errorf("restored entry c = %s@%d", e.Value, e.Version)
	}
	if got := fmt.Sprint(drain(t, restored, 7, 10)); got != "[c d]" {
		t.Errorf("restored cursor continues with %s, want [c d]", got)
	}
	if got := fmt.Sprint(drain(t, restored, 9, 10)); got != "[d c b a]" {
		t.Errorf("restored descending cursor = %s, want [d c b a]", got)
	}
	if err := restored.Iterate(8, All(), false); !errors.Is(err, ErrCursorExists) {
		t.Errorf("restored map accepted an old cursor id: %v", err)
	}

	if err := New().Load(bytes.NewReader([]byte("garbage!"))); err == nil {
		t.Errorf("Load accepted an invalid snapshot")
	}
}
