// Package store defines the contract of a single dTree shard: a replicated ordered map
// that accepts serialized commands and queries (see the protocol package).
//
// Key Components:
//
//   - IStore Interface: register and unregister client sessions, propose commands under a
//     session and sequence (exactly-once application), and evaluate queries with a requested
//     ReadConsistency.
//
//   - ReadConsistency: the staleness bound of a query. Sequential reads may be served by any
//     replica, LinearizableLease and Linearizable reads only by the leader. The numeric values
//     are part of the wire format.
//
//   - Error System: failures are reported as *Error carrying a RetCode. Codes produced by the
//     state machine itself (version mismatch, unknown cursor, invalid operation) are
//     deterministic, retrying the same command gives the same code.
//
// Implementations:
//
//	- Local Store (lstore): runs the state machine in-process on a single node.
//	  Available in the "github.com/ValentinKolb/dTree/lib/store/lstore" package.
//
//	- Distributed Store (dstore): runs the state machine on every replica of a dragonboat
//	  raft shard. Available in the "github.com/ValentinKolb/dTree/lib/store/dstore" package.
package store
