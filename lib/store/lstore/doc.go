// Package lstore implements a local, in-memory, single-node store based on the
// store.IStore interface. It runs the ordered map state machine of the protocol
// package in-process instead of behind a raft log. Data is stored entirely in memory
// and is not persisted between process restarts.
//
// Key Features:
//   - Same command and query semantics as the distributed store
//   - Local log index: every command, session registration and unregistration takes the
//     next index, so versions and cursor ids are numbered like in a raft shard
//   - Session bookkeeping with result caching, so a retried command with an already
//     applied sequence returns the cached result instead of being applied again
//
// Thread Safety:
//
//	All operations are serialized by a single mutex, which gives the map the same
//	single-writer guarantee the raft log gives it in a replicated shard.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	session, _ := s.RegisterSession(ctx)
//
//	cmd := protocol.Command{Type: protocol.CommandTPut, Key: []byte("a"), Value: []byte("v1")}
//	data, err := s.Propose(ctx, session, cmd.Serialize())
//
// Suitable Use Cases:
//
//	The local store is ideal for:
//	- Single-node deployments where distributed consensus is not required
//	- Testing and development environments
//
// For distributed scenarios use the dstore package, which implements the same
// interface on top of dragonboat.
package lstore
