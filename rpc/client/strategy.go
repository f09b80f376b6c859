package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dTree/lib/store"
)

// CommunicationStrategy selects the members that receive a request.
type CommunicationStrategy uint8

const (
	// StrategyLeader sends requests to the known leader and asks the members in order if
	// no leader is known.
	StrategyLeader CommunicationStrategy = iota
	// StrategyFollowers prefers members other than the leader and falls back to the leader.
	StrategyFollowers
	// StrategyAny spreads requests over all members.
	StrategyAny
)

func (s CommunicationStrategy) String() string {
	switch s {
	case StrategyLeader:
		return "leader"
	case StrategyFollowers:
		return "followers"
	case StrategyAny:
		return "any"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ParseStrategy parses the string form of a strategy.
func ParseStrategy(s string) (CommunicationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "leader", "":
		return StrategyLeader, nil
	case "followers", "follower":
		return StrategyFollowers, nil
	case "any":
		return StrategyAny, nil
	default:
		return 0, fmt.Errorf("unknown communication strategy: %q", s)
	}
}

func (s CommunicationStrategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *CommunicationStrategy) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseStrategy(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OperationKind distinguishes requests that must be ordered by the leader from reads.
type OperationKind uint8

const (
	OpCommand OperationKind = iota
	OpQuery
)

// Select returns the candidate endpoints for a request in the order they should be tried.
// Commands and queries that require the leader always use leader semantics, whatever the
// strategy is. rotation moves the starting point of the round robin strategies.
// The result only depends on the arguments.
func (s CommunicationStrategy) Select(kind OperationKind, consistency store.ReadConsistency, leader string, members []string, rotation uint64) []string {
	if kind == OpCommand || consistency.RequiresLeader() {
		return StrategyLeader.selectLeader(leader, members)
	}

	switch s {
	case StrategyFollowers:
		followers := make([]string, 0, len(members))
		for _, m := range members {
			if m != leader {
				followers = append(followers, m)
			}
		}
		candidates := rotate(followers, rotation)
		if leader != "" {
			candidates = append(candidates, leader)
		}
		return candidates
	case StrategyAny:
		candidates := members
		if leader != "" && !contains(members, leader) {
			candidates = append([]string{leader}, members...)
		}
		return rotate(candidates, rotation)
	default:
		return s.selectLeader(leader, members)
	}
}

// selectLeader returns the leader followed by the other members in list order
func (s CommunicationStrategy) selectLeader(leader string, members []string) []string {
	candidates := make([]string, 0, len(members)+1)
	if leader != "" {
		candidates = append(candidates, leader)
	}
	for _, m := range members {
		if m != leader {
			candidates = append(candidates, m)
		}
	}
	return candidates
}

// rotate returns a copy of list starting at rotation modulo its length
func rotate(list []string, rotation uint64) []string {
	out := make([]string, 0, len(list))
	if len(list) == 0 {
		return out
	}
	start := int(rotation % uint64(len(list)))
	out = append(out, list[start:]...)
	return append(out, list[:start]...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
