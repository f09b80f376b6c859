package partition

import (
	"testing"

	sm "github.com/lni/dragonboat/v4/statemachine"
)

func TestStaticMembership(t *testing.T) {
	local := Member{ID: 2, Endpoint: "b:8700"}
	m := NewStaticMembership(local, Member{ID: 3, Endpoint: "c:8700"}, Member{ID: 1, Endpoint: "a:8700"})

	members := m.Members()
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	for i, want := range []uint64{1, 2, 3} {
		if members[i].ID != want {
			t.Errorf("member %d has id %d, want %d", i, members[i].ID, want)
		}
	}
	if got, ok := m.Member(3); !ok || got.Endpoint != "c:8700" {
		t.Errorf("Member(3) = %v, %v", got, ok)
	}
	if _, ok := m.Member(4); ok {
		t.Errorf("Member(4) should not exist")
	}
	if m.Local() != local {
		t.Errorf("Local() = %v, want %v", m.Local(), local)
	}
}

func TestEndpointMembership(t *testing.T) {
	m := NewEndpointMembership("a:1", "b:2")
	got := Endpoints(m)
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("Endpoints() = %v", got)
	}
	if m.Local() != (Member{}) {
		t.Errorf("client membership has a local member: %v", m.Local())
	}
}

func TestLeaderTracker(t *testing.T) {
	a := Member{Endpoint: "a"}
	b := Member{Endpoint: "b"}

	tests := []struct {
		name        string
		term        uint64
		leader      Member
		wantChanged bool
		wantTerm    uint64
		wantLeader  string
	}{
		{"first report", 2, a, true, 2, "a"},
		{"same term other leader", 2, b, false, 2, "a"},
		{"older term", 1, b, false, 2, "a"},
		{"newer term without leader", 3, Member{}, true, 3, ""},
		{"leader of current term", 3, b, true, 3, "b"},
		{"stale leader again", 2, a, false, 3, "b"},
	}

	tracker := NewLeaderTracker()
	for _, tt := range tests {
		changed := tracker.Observe(1, tt.term, tt.leader)
		l, _ := tracker.Leadership(1)
		if changed != tt.wantChanged || l.Term != tt.wantTerm || l.Leader.Endpoint != tt.wantLeader {
			t.Errorf("%s: changed=%v term=%d leader=%q, want changed=%v term=%d leader=%q",
				tt.name, changed, l.Term, l.Leader.Endpoint, tt.wantChanged, tt.wantTerm, tt.wantLeader)
		}
	}

	tracker.Forget(1, "b")
	if _, ok := tracker.Leadership(1); ok {
		t.Errorf("leader still known after Forget")
	}
	if tracker.Term(1) != 3 {
		t.Errorf("Forget changed the term to %d", tracker.Term(1))
	}
	if _, ok := tracker.Leadership(2); ok {
		t.Errorf("unknown shard has a leader")
	}
}

func TestLocalElection(t *testing.T) {
	local := Member{ID: 1, Endpoint: "local"}
	l, ok := NewLocalElection(local).Leadership(7)
	if !ok || l.Leader != local || l.Term != 1 {
		t.Errorf("Leadership() = %+v, %v", l, ok)
	}
}

func TestServiceTypeRegistry(t *testing.T) {
	r := NewServiceTypeRegistry()
	factory := func(uint64, uint64) sm.IStateMachine { return nil }

	if err := r.Register(ServiceTypeTreeMap, factory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(ServiceTypeTreeMap, factory); err == nil {
		t.Errorf("duplicate Register succeeded")
	}
	if err := r.Register("", factory); err == nil {
		t.Errorf("Register with empty name succeeded")
	}
	if err := r.Register("nil", nil); err == nil {
		t.Errorf("Register without factory succeeded")
	}
	if err := r.Register("counter", factory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, ok := r.Get(ServiceTypeTreeMap); !ok {
		t.Errorf("Get(%q) not found", ServiceTypeTreeMap)
	}
	if _, ok := r.Get("missing"); ok {
		t.Errorf("Get(missing) found a factory")
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "counter" || names[1] != ServiceTypeTreeMap {
		t.Errorf("Names() = %v", names)
	}
}

func TestManagementService(t *testing.T) {
	membership := NewEndpointMembership("a")
	election := NewLeaderTracker()
	registry := NewServiceTypeRegistry()

	s := NewManagementService(9, membership, nil, nil, election, registry)
	if s.ShardID() != 9 || s.Membership() != membership || s.Election() != election || s.Registry() != registry {
		t.Errorf("getters do not return the composed collaborators")
	}
	if s.Messaging() != nil || s.Streaming() != nil {
		t.Errorf("unset collaborators should be nil")
	}
}

func TestMemberEncoding(t *testing.T) {
	m := Member{ID: 5, Name: "node-5", RaftAddress: "n5:63001", Endpoint: "n5:8700"}
	data, err := encodeMember(m)
	if err != nil {
		t.Fatalf("encodeMember failed: %v", err)
	}
	got, err := decodeMember(data)
	if err != nil || got != m {
		t.Errorf("decodeMember() = %+v, %v", got, err)
	}

	if _, err := encodeMember(Member{Endpoint: "x"}); err == nil {
		t.Errorf("encodeMember accepted a member without id")
	}
	if _, err := decodeMember([]byte(`{"id":1}`)); err == nil {
		t.Errorf("decodeMember accepted a member without endpoint")
	}
	if memberPath("/dtree/members", 5) != "/dtree/members/5" {
		t.Errorf("memberPath() = %s", memberPath("/dtree/members", 5))
	}
}
