// Package rpc carries the session protocol between dTree clients and the replicas of a shard.
//
// Subpackages:
//
//   - common: the Message exchanged by both sides (session ids, sequences, consistency,
//     term and leader of every response), server and client configuration and the loggers.
//
//   - serializer: binary, JSON and gob encodings of a Message.
//
//   - transport: request/response and streaming transports over TCP, Unix sockets, HTTP
//     and an in-process network used by tests.
//
//   - server: one RPCServer per node. It opens the sessions of its shards, rejects requests
//     that need the leader on followers and streams results record by record. The tree map
//     adapter validates ordered map commands and queries.
//
//   - client: the RaftClient session, routing by CommunicationStrategy with redirects to the
//     leader, and the typed TreeMap with cursors.
//
// Both sides reach membership, messaging, streaming and leader lookup of a shard through a
// partition.ManagementService.
package rpc
