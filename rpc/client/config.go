package client

import (
	"fmt"
	"runtime"

	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/serializer"
	"github.com/ValentinKolb/dTree/rpc/transport"
)

const (
	// DefaultEndpoint is contacted if neither members nor endpoints are configured
	DefaultEndpoint = "localhost:8700"
	// DefaultShardID is the shard served by a default server configuration
	DefaultShardID = 100

	defaultTimeoutSecond        = 5
	defaultRetryCount           = 5
	defaultSessionTimeoutSecond = 30
	defaultStreamBufferSize     = 64
)

// DefaultPoolSize is the size of the shared executor: twice the number of cores, at least 4 and at most 16.
func DefaultPoolSize() int {
	return max(min(2*runtime.NumCPU(), 16), 4)
}

// Config is the immutable configuration of a RaftClient. Use DefaultConfig and override
// single fields, Connect validates the result.
type Config struct {
	common.ClientConfig

	// ShardID is the shard the client opens its session with
	ShardID uint64
	// ClientID identifies the session, a random id is generated if empty
	ClientID string
	// Strategy routes sequential reads, everything else is sent to the leader
	Strategy CommunicationStrategy
	// PoolSize bounds the requests executed in parallel on the shared executor
	PoolSize int
	// Executor replaces the shared executor, PoolSize is ignored if set
	Executor Executor
	// StreamBufferSize is the number of frames buffered between transport and stream handler
	StreamBufferSize int

	RPCTransport transport.IRPCClientTransport
	Serializer   serializer.IRPCSerializer
}

// DefaultConfig returns a configuration with all defaults for the given transport and serializer.
func DefaultConfig(t transport.IRPCClientTransport, s serializer.IRPCSerializer) Config {
	return Config{
		ClientConfig: common.ClientConfig{
			TimeoutSecond:        defaultTimeoutSecond,
			RetryCount:           defaultRetryCount,
			SessionTimeoutSecond: defaultSessionTimeoutSecond,
			Transport: common.ClientTransportConf{
				SocketConf:             common.SocketConf{TCPNoDelay: true, TCPLingerSec: -1},
				ConnectionsPerEndpoint: 1,
			},
		},
		ShardID:          DefaultShardID,
		Strategy:         StrategyLeader,
		PoolSize:         DefaultPoolSize(),
		StreamBufferSize: defaultStreamBufferSize,
		RPCTransport:     t,
		Serializer:       s,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.RPCTransport == nil:
		return fmt.Errorf("invalid client config: no transport")
	case c.Serializer == nil:
		return fmt.Errorf("invalid client config: no serializer")
	case c.Executor == nil && c.PoolSize <= 0:
		return fmt.Errorf("invalid client config: pool size must be positive, got %d", c.PoolSize)
	case c.TimeoutSecond <= 0:
		return fmt.Errorf("invalid client config: timeout must be positive, got %d", c.TimeoutSecond)
	case c.RetryCount < 0:
		return fmt.Errorf("invalid client config: retry count must not be negative, got %d", c.RetryCount)
	case c.SessionTimeoutSecond < 0:
		return fmt.Errorf("invalid client config: session timeout must not be negative, got %d", c.SessionTimeoutSecond)
	case c.StreamBufferSize <= 0:
		return fmt.Errorf("invalid client config: stream buffer size must be positive, got %d", c.StreamBufferSize)
	}
	if _, err := ParseStrategy(c.Strategy.String()); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}
