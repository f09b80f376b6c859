package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/lib/treemap"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TreeStateMachine is the ordered map state machine for Dragonboat RAFT.
// It implements the regular sm.IStateMachine, for which dragonboat applies entries from a
// single goroutine and serializes Lookup with Update, so the map needs no locking.
type TreeStateMachine struct {
	replicaID uint64
	shardID   uint64
	tree      *treemap.TreeMap
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create
// a new state machine for a replica.
func CreateStateMachineFactory() sm.CreateStateMachineFunc {
	return func(shardID uint64, replicaID uint64) sm.IStateMachine {
		return &TreeStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			tree:      treemap.New(),
		}
	}
}

// Lookup evaluates a serialized query (see protocol.Query) and returns the serialized result.
func (fsm *TreeStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.([]byte)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}
	return protocol.Lookup(fsm.tree, q)
}

// Update applies a committed command. The log index of the entry is the version
// of written values and the id of opened cursors.
func (fsm *TreeStateMachine) Update(e sm.Entry) (sm.Result, error) {
	start := time.Now()

	code, data := protocol.Apply(fsm.tree, e.Index, e.Cmd)

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("[shard %d] State machine took long to apply entry %d, took %.2fms", fsm.shardID, e.Index, float64(elapsed)/float64(time.Millisecond))
	}
	return sm.Result{Value: uint64(code), Data: data}, nil
}

// SaveSnapshot writes the map including all open cursors to the writer
func (fsm *TreeStateMachine) SaveSnapshot(writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.tree.Save(writer)
}

// RecoverFromSnapshot replaces the map with the snapshot.
func (fsm *TreeStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.tree.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *TreeStateMachine) Close() error {
	return nil
}
