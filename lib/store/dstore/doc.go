// Package dstore implements a distributed, fault-tolerant ordered map shard using
// the Dragonboat RAFT consensus library. It provides the store.IStore interface on top
// of a dragonboat NodeHost.
//
// Architecture:
//
//   - Store: implements store.IStore. Sessions map to dragonboat client sessions,
//     commands are proposed with SyncPropose, queries are evaluated with SyncRead or
//     StaleRead depending on the requested consistency.
//
//   - State Machine: TreeStateMachine is a dragonboat sm.IStateMachine that holds a
//     treemap.TreeMap and applies commands with protocol.Apply. The raft log index of an
//     entry is the version of the values it writes and the id of the cursor it opens,
//     which makes both unique and identical on every replica.
//
// Sessions and Exactly-Once Application:
//
//	Every command is proposed with the client session (client id, series id, responded-to)
//	supplied by the caller. Dragonboat keeps the result of every series id that was not yet
//	acknowledged by the client and answers a repeated proposal from that cache instead of
//	applying it twice. Proposals for an unknown session are rejected and reported as
//	store.RetCSessionExpired.
//
// Read Operations:
//
//   - Linearizable: SyncRead runs the ReadIndex protocol and waits until the local replica
//     has applied everything committed before the read.
//
//   - LinearizableLease and Sequential: StaleRead evaluates the query on the local state.
//     The rpc server only serves LinearizableLease reads on the leader.
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to a fixed number of attempts.
//
//	- Timeouts: operations use the deadline of their context or the store timeout.
//	  A timed out proposal may still be applied later.
//
// Snapshotting and Recovery:
//
//	Snapshots contain all entries in key order and all open cursors in id order, so a
//	replica restored from a snapshot serves the same cursors as the replica that took it.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// Deployment Recommendations:
//
//   - Node Count: Deploy with an odd number of nodes (typically 3, 5, or 7) to ensure
//     majority consensus is always possible.
//
// For single node use cases consider the lstore package, which runs the same state
// machine without consensus.
package dstore
