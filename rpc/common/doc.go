// Package common provides the data structures shared by the rpc client, server and
// transports of dTree.
//
// Key Components:
//
//   - Message: the single request/response structure of the session protocol. Requests
//     carry the session (id, sequence, responded-to) or the requested read consistency
//     together with an opaque payload (a serialized command or query of the protocol
//     package). Responses carry a Status, the term and leader known to the replica and,
//     for registrations, the client endpoints of all members.
//
//   - MessageType / Status: enumerations of the request kinds and response outcomes.
//     Both marshal to strings in JSON.
//
//   - ServerConfig / ClientConfig: configuration of server nodes (raft parameters,
//     shards, transport, session timeout, ZooKeeper discovery) and clients (endpoints,
//     timeouts, retries). ServerConfig converts to the Dragonboat configuration.
//
//   - Logger: a dragonboat logger.ILogger implementation with a compact format, installed
//     for all dragonboat and dTree loggers by InitLoggers.
package common
