package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReadConsistency bounds the staleness of a query. The numeric values are part of the wire format.
type ReadConsistency uint8

const (
	// Sequential reads are served from the local state of any replica. They never go back in time
	// for a single replica but may miss recently committed commands.
	Sequential ReadConsistency = 0
	// LinearizableLease reads are served from the local state of the leader without a round of
	// confirmation, relying on the leader lease.
	LinearizableLease ReadConsistency = 1
	// Linearizable reads are served by the leader after confirming its commit index with a quorum.
	Linearizable ReadConsistency = 2
)

// DefaultReadConsistency is used for queries that do not ask for a level.
const DefaultReadConsistency = Linearizable

func (c ReadConsistency) String() string {
	switch c {
	case Sequential:
		return "sequential"
	case LinearizableLease:
		return "linearizable-lease"
	case Linearizable:
		return "linearizable"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// RequiresLeader reports whether the level can only be served by the leader.
func (c ReadConsistency) RequiresLeader() bool {
	return c != Sequential
}

// ParseReadConsistency parses the string form of a consistency level.
func ParseReadConsistency(s string) (ReadConsistency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential", "stale":
		return Sequential, nil
	case "linearizable-lease", "lease":
		return LinearizableLease, nil
	case "linearizable", "":
		return Linearizable, nil
	default:
		return 0, fmt.Errorf("unknown read consistency: %q", s)
	}
}

// MarshalJSON marshals the level as its string form.
func (c ReadConsistency) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts the string form of a level.
func (c *ReadConsistency) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseReadConsistency(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
