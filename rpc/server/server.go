package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/dTree/lib/partition"
	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/dstore"
	"github.com/ValentinKolb/dTree/lib/store/lstore"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/serializer"
	"github.com/ValentinKolb/dTree/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	registry := partition.NewServiceTypeRegistry()
	if err := registry.Register(partition.ServiceTypeTreeMap, dstore.CreateStateMachineFactory()); err != nil {
		Logger.Panicf("failed to register service type: %v", err)
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, *serverShard](),
		registry:   registry,
		adapters: map[string]IRPCServerAdapter{
			partition.ServiceTypeTreeMap: NewTreeMapServerAdapter(),
		},
	}
}

// RPCServer serves the shards of one node
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, *serverShard]
	registry   *partition.ServiceTypeRegistry
	adapters   map[string]IRPCServerAdapter

	nodeHost   *dragonboat.NodeHost
	zk         *partition.ZKMembership
	stopWatch  context.CancelFunc
	closeOnce  sync.Once
	membership partition.MembershipService
}

// Registry returns the service types the server can start shards for
func (s *RPCServer) Registry() *partition.ServiceTypeRegistry {
	return s.registry
}

// Start creates the node host and the shards and registers the transport handlers.
// It does not start listening, see Serve.
func (s *RPCServer) Start() error {
	if s.config.LogLevel != "" {
		if err := common.InitLoggers(s.config.LogLevel); err != nil {
			return err
		}
	}
	Logger.Infof(s.config.String())

	membership, err := s.createMembership()
	if err != nil {
		return err
	}
	s.membership = membership

	// Only create the NodeHost if we have replicated shards
	if s.config.HasRaftShard() {
		s.nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	/*
		Note: A single RPC Server can serve any number of local and replicated shards.
		Every shard runs a registered service type, the following loop creates all
		the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {
		if err := s.startShard(shardConfig); err != nil {
			return err
		}
	}

	Logger.Infof("dTree setup completed successfully")

	s.registerTransportHandler()
	return nil
}

// Serve starts the server and blocks while the transport is listening
func (s *RPCServer) Serve() error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and releases all shards
func (s *RPCServer) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.transport.Close()
		s.shards.Range(func(id uint64, shard *serverShard) bool {
			if cerr := shard.close(); cerr != nil {
				Logger.Warningf("failed to close shard %d: %v", id, cerr)
			}
			return true
		})
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		if s.stopWatch != nil {
			s.stopWatch()
		}
		if s.zk != nil {
			_ = s.zk.Close()
		}
	})
	return err
}

// --------------------------------------------------------------------------
// Setup
// --------------------------------------------------------------------------

// createMembership uses ZooKeeper if configured and the static cluster configuration otherwise
func (s *RPCServer) createMembership() (partition.MembershipService, error) {
	local := s.config.LocalMember()
	if len(s.config.ZooKeeper.Servers) == 0 {
		return partition.NewStaticMembership(local, s.config.Members()...), nil
	}

	zkm, err := partition.NewZKMembership(s.config.ZooKeeper.Servers, s.config.ZooKeeper.RootPath, local, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	if err := zkm.RegisterSelf(); err != nil {
		_ = zkm.Close()
		return nil, fmt.Errorf("failed to register in zookeeper: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go zkm.RunWatch(ctx)
	s.zk = zkm
	s.stopWatch = cancel
	return zkm, nil
}

func (s *RPCServer) startShard(shardConfig common.ServerShard) error {
	service := shardConfig.Service
	if service == "" {
		service = partition.ServiceTypeTreeMap
	}
	adapter, ok := s.adapters[service]
	if !ok {
		return fmt.Errorf("no adapter for service type %q of shard %d", service, shardConfig.ShardID)
	}

	var st store.IStore
	var election partition.ElectionService

	switch shardConfig.Type {
	case common.ShardTypeLocal:
		st = lstore.NewLocalStore()
		election = partition.NewLocalElection(s.membership.Local())
		Logger.Infof("created local %s for shard %d", service, shardConfig.ShardID)

	case common.ShardTypeRaft:
		if s.nodeHost == nil {
			return fmt.Errorf("node host is nil, cannot create replicated shard")
		}
		factory, ok := s.registry.Get(service)
		if !ok {
			return fmt.Errorf("unknown service type %q, registered are %v", service, s.registry.Names())
		}

		// Start Raft for the shard
		if err := s.nodeHost.StartReplica(s.config.ClusterMembers, false, factory, s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
			return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
		}
		st = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, s.config.Timeout())
		election = partition.NewNodeHostElection(s.nodeHost, s.membership)
		Logger.Infof("started replicated %s for shard %d", service, shardConfig.ShardID)

	default:
		return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
	}

	p := partition.NewManagementService(shardConfig.ShardID, s.membership, nil, nil, election, s.registry)
	s.shards.Store(shardConfig.ShardID, newServerShard(st, p, adapter, s.config.Timeout(), s.config.SessionTimeout()))
	return nil
}

// --------------------------------------------------------------------------
// Transport Handlers
// --------------------------------------------------------------------------

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		start := time.Now()
		msg, resp := s.decode(shardId, req)
		if resp == nil {
			shard, _ := s.shards.Load(shardId)
			resp = shard.handle(msg)
		}
		observeRequest(msg.MsgType, resp.Status, start)
		return s.encode(resp)
	})

	s.transport.RegisterStreamHandler(func(shardId uint64, req []byte, send func([]byte) error) []byte {
		start := time.Now()
		msg, resp := s.decode(shardId, req)
		if resp == nil {
			shard, _ := s.shards.Load(shardId)
			resp = shard.handleStream(msg, send)
		}
		observeRequest(msg.MsgType, resp.Status, start)
		return s.encode(resp)
	})
}

// decode parses a request. If the request cannot be handled, the error response is returned as well.
func (s *RPCServer) decode(shardId uint64, req []byte) (*common.Message, *common.Message) {
	msg := &common.Message{}
	if err := s.serializer.Deserialize(req, msg); err != nil {
		return msg, common.NewErrorResponse(common.MsgTUnknown, common.StatusError,
			fmt.Errorf("failed to deserialize request: %w", err))
	}
	if _, ok := s.shards.Load(shardId); !ok {
		return msg, common.NewErrorResponse(msg.MsgType, common.StatusError,
			fmt.Errorf("shard %d not found", shardId))
	}
	return msg, nil
}

func (s *RPCServer) encode(resp *common.Message) []byte {
	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(resp.MsgType, common.StatusError,
			fmt.Errorf("failed to serialize response: %w", err)))
	}
	return val
}
