package partition

import (
	"github.com/lni/dragonboat/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Dragonboat Election
// --------------------------------------------------------------------------

// NodeHostElection reads the leader of a shard from a dragonboat node host and resolves the
// leader id with the membership.
type NodeHostElection struct {
	nh         *dragonboat.NodeHost
	membership MembershipService
}

// NewNodeHostElection creates an election service for the shards of nh.
func NewNodeHostElection(nh *dragonboat.NodeHost, membership MembershipService) *NodeHostElection {
	return &NodeHostElection{nh: nh, membership: membership}
}

func (e *NodeHostElection) Leadership(shardID uint64) (Leadership, bool) {
	leaderID, term, valid, err := e.nh.GetLeaderID(shardID)
	if err != nil || !valid {
		return Leadership{Term: term}, false
	}
	leader, ok := e.membership.Member(leaderID)
	if !ok {
		log.Debugf("[shard %d] leader %d is not a known member", shardID, leaderID)
		leader = Member{ID: leaderID}
	}
	return Leadership{Term: term, Leader: leader}, true
}

// --------------------------------------------------------------------------
// Local Election
// --------------------------------------------------------------------------

// LocalElection is the election of a shard that only runs in this process.
// The local member is always the leader of term 1.
type LocalElection struct {
	local Member
}

// NewLocalElection creates an election that always reports local as leader.
func NewLocalElection(local Member) *LocalElection {
	return &LocalElection{local: local}
}

func (e *LocalElection) Leadership(uint64) (Leadership, bool) {
	return Leadership{Term: 1, Leader: e.local}, true
}

// --------------------------------------------------------------------------
// Leader Tracker
// --------------------------------------------------------------------------

// LeaderTracker is the election view of a client. It learns the leader from the responses of
// the replicas. Observations never move back in time: an older term is ignored and within one
// term the first reported leader wins.
type LeaderTracker struct {
	shards *xsync.MapOf[uint64, Leadership]
}

// NewLeaderTracker creates a tracker without any known leader.
func NewLeaderTracker() *LeaderTracker {
	return &LeaderTracker{shards: xsync.NewMapOf[uint64, Leadership]()}
}

func (t *LeaderTracker) Leadership(shardID uint64) (Leadership, bool) {
	l, ok := t.shards.Load(shardID)
	if !ok || l.Leader.Endpoint == "" {
		return l, false
	}
	return l, true
}

// Term returns the highest term observed for the shard.
func (t *LeaderTracker) Term(shardID uint64) uint64 {
	l, _ := t.shards.Load(shardID)
	return l.Term
}

// Observe records a (term, leader) pair reported by a replica. An empty leader only advances
// the term. It returns true if the known leadership changed.
func (t *LeaderTracker) Observe(shardID, term uint64, leader Member) bool {
	changed := false
	t.shards.Compute(shardID, func(cur Leadership, loaded bool) (Leadership, bool) {
		switch {
		case !loaded || term > cur.Term:
			changed = true
			return Leadership{Term: term, Leader: leader}, false
		case term == cur.Term && cur.Leader.Endpoint == "" && leader.Endpoint != "":
			changed = true
			cur.Leader = leader
			return cur, false
		default:
			return cur, false
		}
	})
	return changed
}

// Forget drops the leader of the current term, e.g. after it became unreachable.
// The term is kept so older reports are still ignored.
func (t *LeaderTracker) Forget(shardID uint64, endpoint string) {
	t.shards.Compute(shardID, func(cur Leadership, loaded bool) (Leadership, bool) {
		if loaded && cur.Leader.Endpoint == endpoint {
			cur.Leader = Member{}
		}
		return cur, !loaded
	})
}
