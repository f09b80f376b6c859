// Package server implements the replica side of the dTree session protocol.
//
// An RPCServer serves any number of shards. Every shard runs a service type from the
// partition.ServiceTypeRegistry (the ordered map is registered as "treemap") either in process
// (ShardTypeLocal, backed by lstore) or replicated with dragonboat (ShardTypeRaft, backed by dstore).
//
// Request handling:
//
//   - Every response carries the term and the client endpoint of the leader known to the replica.
//   - Register, KeepAlive, Unregister and Command are only handled by the leader. Other replicas
//     answer StatusNotLeader without proposing anything, so a client can redirect safely.
//   - Queries with Sequential consistency are served by any replica, the other levels by the leader.
//   - Metadata returns term, leader and the client endpoints of all members.
//   - Streamed requests are answered with one frame per result record and a terminal message.
//
// The leader tracks the sessions it has seen in a TTL cache. A session that sends neither
// commands nor keep alives within the session timeout is unregistered by the leader.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocal, Service: partition.ServiceTypeTreeMap},
//	  },
//	  TimeoutSecond:        5,
//	  SessionTimeoutSecond: 30,
//	  LogLevel:             "info",
//	}
//	config.Transport.Endpoint = "0.0.0.0:8700"
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
