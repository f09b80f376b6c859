package client

import (
	"encoding/json"
	"testing"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	members := []string{"a", "b", "c"}

	tests := []struct {
		name        string
		strategy    CommunicationStrategy
		kind        OperationKind
		consistency store.ReadConsistency
		leader      string
		rotation    uint64
		want        []string
	}{
		{"leader command", StrategyLeader, OpCommand, store.Sequential, "b", 0, []string{"b", "a", "c"}},
		{"leader unknown", StrategyLeader, OpCommand, store.Sequential, "", 2, []string{"a", "b", "c"}},
		{"followers command goes to leader", StrategyFollowers, OpCommand, store.Sequential, "c", 1, []string{"c", "a", "b"}},
		{"any linearizable read goes to leader", StrategyAny, OpQuery, store.Linearizable, "b", 1, []string{"b", "a", "c"}},
		{"any lease read goes to leader", StrategyAny, OpQuery, store.LinearizableLease, "c", 0, []string{"c", "a", "b"}},
		{"leader sequential read", StrategyLeader, OpQuery, store.Sequential, "a", 1, []string{"a", "b", "c"}},
		{"followers sequential read", StrategyFollowers, OpQuery, store.Sequential, "a", 0, []string{"b", "c", "a"}},
		{"followers rotated", StrategyFollowers, OpQuery, store.Sequential, "a", 1, []string{"c", "b", "a"}},
		{"followers without leader", StrategyFollowers, OpQuery, store.Sequential, "", 1, []string{"b", "c", "a"}},
		{"any rotated", StrategyAny, OpQuery, store.Sequential, "a", 2, []string{"c", "a", "b"}},
		{"any unknown leader is added", StrategyAny, OpQuery, store.Sequential, "d", 0, []string{"d", "a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.strategy.Select(tt.kind, tt.consistency, tt.leader, members, tt.rotation)
			assert.Equal(t, tt.want, got)

			// deterministic
			assert.Equal(t, got, tt.strategy.Select(tt.kind, tt.consistency, tt.leader, members, tt.rotation))
		})
	}

	assert.Equal(t, []string{"a", "b", "c"}, members, "Select must not modify the members")
	assert.Empty(t, StrategyAny.Select(OpQuery, store.Sequential, "", nil, 3))
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []CommunicationStrategy{StrategyLeader, StrategyFollowers, StrategyAny} {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)

		data, err := json.Marshal(s)
		require.NoError(t, err)
		var decoded CommunicationStrategy
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, s, decoded)
	}

	parsed, err := ParseStrategy(" Followers ")
	require.NoError(t, err)
	assert.Equal(t, StrategyFollowers, parsed)

	_, err = ParseStrategy("random")
	assert.Error(t, err)
}
