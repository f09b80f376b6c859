package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/dTree/cmd/util"
	"github.com/ValentinKolb/dTree/lib/partition"
	"github.com/ValentinKolb/dTree/lib/util"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dTree server",
		Long:    `Start a dTree server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DTREE_<flag> (e.g. DTREE_SESSION_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=local", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE or ID=TYPE(SERVICE) where TYPE is local or raft and SERVICE is a registered service type (default treemap)"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. The election timeout is 10 RTT, the heartbeat interval 1 RTT"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 1000, cmdUtil.WrapString("(raft) SnapshotEntries defines after how many applied log entries the map is snapshotted. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 500, cmdUtil.WrapString("(raft) CompactionOverhead defines how many log entries are kept after a snapshot"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(raft) DataDir is the directory of the raft log and the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) Unique name of this node (e.g. 'node-1'). The replica id is derived from it"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) Comma-separated raft addresses of the initial members in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "client-endpoints"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft) Comma-separated client endpoints of the other members in the format 'node-1=localhost:8701,...'. Needed to redirect clients to the leader"))

	key = "zk-servers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated ZooKeeper servers used for member discovery. Without servers the members are static"))

	key = "zk-root"
	ServeCmd.PersistentFlags().String(key, "/dtree", cmdUtil.WrapString("ZooKeeper path under which the members register"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout of proposals and reads in seconds"))

	key = "session-timeout"
	ServeCmd.PersistentFlags().Int64(key, 60, cmdUtil.WrapString("Sessions without requests or keep alives for this many seconds are expired"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8700", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8700, /tmp/dtree.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Requests processed in parallel per connection (tcp and unix)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the flags and environment variables into the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.SessionTimeoutSecond = viper.GetInt64("session-timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.Transport.TCPNoDelay = true
	serveCmdConfig.Transport.TCPLingerSec = -1
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if zkServers := viper.GetString("zk-servers"); zkServers != "" {
		serveCmdConfig.ZooKeeper = common.ZooKeeperConf{
			Servers:  strings.Split(zkServers, ","),
			RootPath: viper.GetString("zk-root"),
		}
	}

	// parse replica id
	name := viper.GetString("replica-id")
	serveCmdConfig.NodeName = name
	if name != "" {
		serveCmdConfig.ReplicaID = util.ReplicaID(name)
	} else if serveCmdConfig.HasRaftShard() {
		return fmt.Errorf("replica-id is required for raft shards")
	} else {
		serveCmdConfig.ReplicaID = 1
	}

	serveCmdConfig.ClusterMembers, err = parseMembers(viper.GetString("cluster-members"))
	if err != nil {
		return err
	}
	serveCmdConfig.ClientEndpoints, err = parseMembers(viper.GetString("client-endpoints"))
	if err != nil {
		return err
	}

	if serveCmdConfig.HasRaftShard() {
		if len(serveCmdConfig.ClusterMembers) == 0 {
			return fmt.Errorf("cluster-members is required for raft shards")
		}
		if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok {
			return fmt.Errorf("no address found for replica %s (id %d) in cluster members", name, serveCmdConfig.ReplicaID)
		}
	}

	return nil
}

// run starts the server and blocks until it is closed
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, s)
	defer serv.Close()
	return serv.Serve()
}

// parseShards parses "100=local,200=raft(treemap)"
func parseShards(value string) ([]common.ServerShard, error) {
	var shards []common.ServerShard
	for _, shardConfig := range strings.Split(value, ",") {
		shardConfig = strings.TrimSpace(shardConfig)
		if shardConfig == "" {
			continue
		}
		id, kind, ok := strings.Cut(shardConfig, "=")
		if !ok {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", id, err)
		}

		service := partition.ServiceTypeTreeMap
		kind = strings.TrimSpace(kind)
		if open := strings.IndexByte(kind, '('); open >= 0 {
			if !strings.HasSuffix(kind, ")") {
				return nil, fmt.Errorf("invalid shard type: %s (expected TYPE(SERVICE))", kind)
			}
			service = kind[open+1 : len(kind)-1]
			kind = kind[:open]
		}

		var shardType common.ServerShardType
		switch kind {
		case "local":
			shardType = common.ShardTypeLocal
		case "raft":
			shardType = common.ShardTypeRaft
		default:
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: local, raft)", kind)
		}

		shards = append(shards, common.ServerShard{ShardID: shardID, Type: shardType, Service: service})
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no shards configured")
	}
	return shards, nil
}

// parseMembers parses "node-1=addr,node-2=addr" into replica id -> addr
func parseMembers(value string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	if strings.TrimSpace(value) == "" {
		return members, nil
	}
	for _, member := range strings.Split(value, ",") {
		name, addr, ok := strings.Cut(strings.TrimSpace(member), "=")
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid member format: %s (expected NAME=address)", member)
		}
		members[util.ReplicaID(name)] = addr
	}
	return members, nil
}
