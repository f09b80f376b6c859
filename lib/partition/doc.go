// Package partition provides the management context of a partition (a raft shard): the
// collaborators the replicas and the client of a shard need from their environment.
//
// Key Components:
//
//   - ManagementService: read-only composition of the collaborators of one partition.
//     It contains no logic of its own.
//
//   - MembershipService: the replicas of the partition. StaticMembership is built from the
//     configuration, ZKMembership discovers members through ephemeral ZooKeeper znodes.
//
//   - MessagingService / StreamingService: point-to-point requests and streamed responses.
//     They are implemented by the client transports of the rpc package.
//
//   - ElectionService: the current leader and term. NodeHostElection asks dragonboat,
//     LocalElection serves single node shards and LeaderTracker is the client side view that
//     is fed from the term and leader reported in responses.
//
//   - ServiceTypeRegistry: maps service type names (e.g. "treemap") to dragonboat state
//     machine factories.
package partition
