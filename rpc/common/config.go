package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dTree/lib/partition"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket options applied to stream connections
type SocketConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative leaves the OS default
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerTransportConf configures the server side of a transport
type ServerTransportConf struct {
	SocketConf
	// Endpoint the transport listens on (host:port, socket path or http address)
	Endpoint string
	// WorkersPerConn limits the requests processed in parallel per connection
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers
	BufferSize int
}

// ClientTransportConf configures the client side of a transport
type ClientTransportConf struct {
	SocketConf
	// ConnectionsPerEndpoint is the number of connections opened to every endpoint
	ConnectionsPerEndpoint int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocal ServerShardType = "local"
	ShardTypeRaft  ServerShardType = "raft"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type decides whether the shard is replicated
	Type ServerShardType
	// Service is the service type name of the state machine (see partition.ServiceTypeRegistry)
	Service string
}

// ZooKeeperConf enables member discovery through ZooKeeper
type ZooKeeperConf struct {
	Servers  []string
	RootPath string
}

// ServerConfig holds all configuration parameters for the RAFT cluster.
type ServerConfig struct {
	Shards []ServerShard

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	NodeName           string
	ClusterMembers     map[uint64]string // replica id -> raft address
	ClientEndpoints    map[uint64]string // replica id -> client endpoint, used for redirects

	// Request handling
	TimeoutSecond        int64
	SessionTimeoutSecond int64

	// Transport settings
	Transport ServerTransportConf

	// Member discovery
	ZooKeeper ZooKeeperConf

	// Logging configuration
	LogLevel string
}

// HasRaftShard checks if the configuration contains any replicated shards
func (c *ServerConfig) HasRaftShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRaft {
			return true
		}
	}
	return false
}

// Timeout returns the request timeout as duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// SessionTimeout returns how long a session is kept without requests or keep alives
func (c *ServerConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecond) * time.Second
}

// LocalMember returns the member record of this node
func (c *ServerConfig) LocalMember() partition.Member {
	return partition.Member{
		ID:          c.ReplicaID,
		Name:        c.NodeName,
		RaftAddress: c.ClusterMembers[c.ReplicaID],
		Endpoint:    c.Transport.Endpoint,
	}
}

// Members returns the configured members. The client endpoint of the local node is always known,
// the endpoints of the other nodes only if they are configured.
func (c *ServerConfig) Members() []partition.Member {
	members := make([]partition.Member, 0, len(c.ClusterMembers))
	for id, addr := range c.ClusterMembers {
		m := partition.Member{ID: id, RaftAddress: addr, Endpoint: c.ClientEndpoints[id]}
		if id == c.ReplicaID {
			m = c.LocalMember()
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Session Timeout", fmt.Sprintf("%d sec", c.SessionTimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), fmt.Sprintf("%s (%s)", shard.Service, shard.Type))
	}

	if len(c.ZooKeeper.Servers) > 0 {
		addSection("ZooKeeper")
		addField("Servers", strings.Join(c.ZooKeeper.Servers, ","))
		addField("Root Path", c.ZooKeeper.RootPath)
	}

	if c.HasRaftShard() {
		// Node Identity
		addSection("Node Identity")
		addField("Node Name", c.NodeName)
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		// Cluster configuration
		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")
		for _, m := range c.Members() {
			sb.WriteString(fmt.Sprintf("    Node %d: %s (client endpoint %q)\n", m.ID, m.RaftAddress, m.Endpoint))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints            []string
	TimeoutSecond        int
	RetryCount           int
	SessionTimeoutSecond int
	Transport            ClientTransportConf
}

// Timeout returns the request timeout as duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Session Timeout", fmt.Sprintf("%d sec", c.SessionTimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
