package testing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/lib/treemap"
)

// StoreFactory is a function that creates a new instance of a IStore implementation
type StoreFactory func() store.IStore

// RunStoreTests runs a comprehensive test suite for a IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("CompareAndSwap", func(t *testing.T) {
			testCompareAndSwap(t, factory())
		})

		t.Run("Navigation", func(t *testing.T) {
			testNavigation(t, factory())
		})

		t.Run("Poll", func(t *testing.T) {
			testPoll(t, factory())
		})

		t.Run("Cursors", func(t *testing.T) {
			testCursors(t, factory())
		})

		t.Run("ClearInvalidatesCursors", func(t *testing.T) {
			testClearInvalidatesCursors(t, factory())
		})

		t.Run("DuplicateSequence", func(t *testing.T) {
			testDuplicateSequence(t, factory())
		})

		t.Run("UnknownSession", func(t *testing.T) {
			testUnknownSession(t, factory())
		})

		t.Run("ConcurrentSessions", func(t *testing.T) {
			testConcurrentSessions(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// client wraps a store with one session and advances the session after every command.
type client struct {
	t       testing.TB
	s       store.IStore
	session store.Session
}

func newClient(t testing.TB, s store.IStore) *client {
	t.Helper()
	session, err := s.RegisterSession(context.Background())
	if err != nil {
		t.Fatalf("RegisterSession failed: %v", err)
	}
	return &client{t: t, s: s, session: session}
}

// do proposes cmd and returns the decoded result or the store error.
func (c *client) do(cmd protocol.Command) (protocol.Result, error) {
	c.t.Helper()
	data, err := c.s.Propose(context.Background(), c.session, cmd.Serialize())
	c.session.ProposalCompleted()
	var res protocol.Result
	if err != nil {
		return res, err
	}
	if err := res.Deserialize(data); err != nil {
		c.t.Fatalf("failed to decode result: %v", err)
	}
	return res, nil
}

// must proposes cmd and fails the test on error.
func (c *client) must(cmd protocol.Command) protocol.Result {
	c.t.Helper()
	res, err := c.do(cmd)
	if err != nil {
		c.t.Fatalf("%s failed: %v", cmd.Type, err)
	}
	return res
}

func (c *client) query(q protocol.Query) protocol.Result {
	c.t.Helper()
	data, err := c.s.Read(context.Background(), q.Serialize(), store.Linearizable)
	if err != nil {
		c.t.Fatalf("%s failed: %v", q.Type, err)
	}
	var res protocol.Result
	if err := res.Deserialize(data); err != nil {
		c.t.Fatalf("failed to decode result: %v", err)
	}
	return res
}

func (c *client) put(key, value string) int64 {
	c.t.Helper()
	return c.must(protocol.Command{Type: protocol.CommandTPut, Key: []byte(key), Value: []byte(value)}).Version
}

func requireCode(t testing.TB, err error, code store.RetCode) {
	t.Helper()
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected store error with code %s, got %v", code, err)
	}
	if storeErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, storeErr.Code, storeErr.Msg)
	}
}

func keys(entries []treemap.Entry) string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = string(e.Key)
	}
	return fmt.Sprint(out)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testCompareAndSwap(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)

	v1 := c.put("a", "v1")

	res := c.must(protocol.Command{Type: protocol.CommandTReplace, Key: []byte("a"), Value: []byte("v2"), Version: v1})
	v2 := res.Version
	if v2 <= v1 {
		t.Errorf("version did not increase: %d -> %d", v1, v2)
	}

	_, err := c.do(protocol.Command{Type: protocol.CommandTReplace, Key: []byte("a"), Value: []byte("v3"), Version: v1})
	requireCode(t, err, store.RetCVersionMismatch)

	got := c.query(protocol.Query{Type: protocol.QueryTGet, Key: []byte("a")})
	e, ok := got.First()
	if !ok || string(e.Value) != "v2" || e.Version != v2 {
		t.Errorf("Get(a) = %s@%d (found=%v), want v2@%d", e.Value, e.Version, ok, v2)
	}

	_, err = c.do(protocol.Command{Type: protocol.CommandTRemoveIfVersion, Key: []byte("a"), Version: v1})
	requireCode(t, err, store.RetCVersionMismatch)
	c.must(protocol.Command{Type: protocol.CommandTRemoveIfVersion, Key: []byte("a"), Version: v2})
	if c.query(protocol.Query{Type: protocol.QueryTContainsKey, Key: []byte("a")}).Found {
		t.Errorf("key a still present after RemoveIfVersion")
	}
}

func testNavigation(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)

	c.put("1", "x")
	c.put("5", "y")
	c.put("9", "z")

	tests := []struct {
		qt    protocol.QueryType
		key   string
		want  string
		found bool
	}{
		{protocol.QueryTFloorKey, "6", "5", true},
		{protocol.QueryTCeilingKey, "6", "9", true},
		{protocol.QueryTFloorKey, "0", "", false},
		{protocol.QueryTHigherEntry, "5", "9", true},
		{protocol.QueryTLowerEntry, "5", "1", true},
		{protocol.QueryTFirstKey, "", "1", true},
		{protocol.QueryTLastEntry, "", "9", true},
	}

	for _, tt := range tests {
		res := c.query(protocol.Query{Type: tt.qt, Key: []byte(tt.key)})
		e, ok := res.First()
		if ok != tt.found || string(e.Key) != tt.want {
			t.Errorf("%s(%s) = %q (found=%v), want %q (found=%v)", tt.qt, tt.key, e.Key, ok, tt.want, tt.found)
		}
	}
}

func testPoll(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)

	c.put("b", "2")
	c.put("a", "1")
	c.put("c", "3")

	first := c.must(protocol.Command{Type: protocol.CommandTPollFirst})
	last := c.must(protocol.Command{Type: protocol.CommandTPollLast})
	if keys(first.Entries) != "[a]" || keys(last.Entries) != "[c]" {
		t.Errorf("polled %s and %s, want [a] and [c]", keys(first.Entries), keys(last.Entries))
	}
	if n := c.query(protocol.Query{Type: protocol.QueryTSize, Range: treemap.All()}).Count; n != 1 {
		t.Errorf("Size() = %d after polling, want 1", n)
	}
}

func testCursors(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)

	for _, key := range []string{"A", "B", "M", "Y", "Z", "a"} {
		c.put(key, key)
	}
	r := treemap.Closed([]byte("A"), []byte("Z"))

	for _, descending := range []bool{false, true} {
		typ := protocol.CommandTIterate
		want := "[A B M Y Z]"
		if descending {
			typ = protocol.CommandTIterateDescending
			want = "[Z Y M B A]"
		}

		id := c.must(protocol.Command{Type: typ, Range: r}).Cursor
		var got []treemap.Entry
		for i := 0; i < 10; i++ {
			res := c.must(protocol.Command{Type: protocol.CommandTCursorNext, Cursor: id, Limit: 2})
			got = append(got, res.Entries...)
			if res.Done {
				break
			}
		}
		if keys(got) != want {
			t.Errorf("cursor (descending=%v) = %s, want %s", descending, keys(got), want)
		}
		// the exhausted cursor is gone
		_, err := c.do(protocol.Command{Type: protocol.CommandTCursorNext, Cursor: id})
		requireCode(t, err, store.RetCCursorNotFound)

		open := c.must(protocol.Command{Type: typ, Range: r}).Cursor
		c.must(protocol.Command{Type: protocol.CommandTCursorNext, Cursor: open, Limit: 1})
		c.must(protocol.Command{Type: protocol.CommandTCursorClose, Cursor: open})
		_, err = c.do(protocol.Command{Type: protocol.CommandTCursorNext, Cursor: open})
		requireCode(t, err, store.RetCCursorNotFound)
	}
}

func testClearInvalidatesCursors(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)

	for _, key := range []string{"a", "b", "c", "d", "e", "f"} {
		c.put(key, key)
	}
	overlapping := c.must(protocol.Command{Type: protocol.CommandTIterate, Range: treemap.Closed([]byte("a"), []byte("c"))}).Cursor
	disjoint := c.must(protocol.Command{Type: protocol.CommandTIterate, Range: treemap.AtLeast([]byte("f"))}).Cursor

	res := c.must(protocol.Command{Type: protocol.CommandTClear, Range: treemap.Closed([]byte("c"), []byte("e"))})
	if res.Count != 3 {
		t.Errorf("Clear removed %d entries, want 3", res.Count)
	}

	_, err := c.do(protocol.Command{Type: protocol.CommandTCursorNext, Cursor: overlapping})
	requireCode(t, err, store.RetCCursorNotFound)

	next := c.must(protocol.Command{Type: protocol.CommandTCursorNext, Cursor: disjoint})
	if keys(next.Entries) != "[f]" || !next.Done {
		t.Errorf("disjoint cursor = %s done=%v, want [f] done=true", keys(next.Entries), next.Done)
	}

	scan := c.query(protocol.Query{Type: protocol.QueryTScan, Range: treemap.All()})
	if keys(scan.Entries) != "[a b f]" {
		t.Errorf("entries after Clear = %s, want [a b f]", keys(scan.Entries))
	}
}

func testDuplicateSequence(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)

	cmd := protocol.Command{Type: protocol.CommandTPut, Key: []byte("k"), Value: []byte("v")}
	first, err := s.Propose(context.Background(), c.session, cmd.Serialize())
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	// same sequence again, e.g. a retry after a lost response
	second, err := s.Propose(context.Background(), c.session, cmd.Serialize())
	if err != nil {
		t.Fatalf("repeated Propose failed: %v", err)
	}

	var r1, r2 protocol.Result
	_ = r1.Deserialize(first)
	_ = r2.Deserialize(second)
	if r1.Version != r2.Version {
		t.Errorf("repeated command was applied twice: versions %d and %d", r1.Version, r2.Version)
	}
}

func testUnknownSession(t *testing.T, s store.IStore) {
	defer s.Close()
	c := newClient(t, s)
	c.put("k", "v")

	if err := s.UnregisterSession(context.Background(), c.session); err != nil {
		t.Fatalf("UnregisterSession failed: %v", err)
	}
	_, err := c.do(protocol.Command{Type: protocol.CommandTPut, Key: []byte("k"), Value: []byte("w")})
	requireCode(t, err, store.RetCSessionExpired)
}

func testConcurrentSessions(t *testing.T, s store.IStore) {
	defer s.Close()

	const sessions, writes = 8, 50
	clients := make([]*client, sessions)
	for i := range clients {
		clients[i] = newClient(t, s)
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			for j := 0; j < writes; j++ {
				if _, err := c.do(protocol.Command{
					Type:  protocol.CommandTPut,
					Key:   []byte(fmt.Sprintf("s%02d-%03d", i, j)),
					Value: []byte("v"),
				}); err != nil {
					t.Errorf("Put failed: %v", err)
					return
				}
			}
		}(i, c)
	}
	wg.Wait()

	c := newClient(t, s)
	if n := c.query(protocol.Query{Type: protocol.QueryTSize, Range: treemap.All()}).Count; n != sessions*writes {
		t.Errorf("Size() = %d, want %d", n, sessions*writes)
	}
}
