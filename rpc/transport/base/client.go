package base

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection based on the provided configuration
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult is one frame delivered to a waiting request
type responseResult struct {
	data  []byte
	final bool
	err   error
}

// pendingRequest is a request waiting for its response frames
type pendingRequest struct {
	ch   chan responseResult
	done chan struct{} // closed when the requester stopped waiting
}

// clientConnection represents a single net connection
type clientConnection struct {
	conn     net.Conn
	endpoint string
	pending  *xsync.MapOf[uint64, *pendingRequest]
	writeMu  sync.Mutex // Serializes frame writes
	broken   atomic.Bool
	parent   *clientTransport
}

// endpointPool holds the connections to one endpoint
type endpointPool struct {
	mu    sync.Mutex
	conns []*clientConnection
	next  uint64
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	pools         *xsync.MapOf[string, *endpointPool]
	nextRequestID uint64 // Atomic counter for unique request IDs
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		pools:     xsync.NewMapOf[string, *endpointPool](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	t.config = config
	t.stopping.Store(false)
	t.closeConnections()

	// Connect eagerly to the configured endpoints, unreachable ones are retried on use
	connected := 0
	for _, endpoint := range config.Endpoints {
		if _, err := t.connection(endpoint); err != nil {
			Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
			continue
		}
		connected++
	}

	Logger.Infof("Connected to %d out of %d endpoints using %s transport",
		connected, len(config.Endpoints), t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	var resp []byte
	err := t.roundTrip(ctx, endpoint, shardId, req, 0, func(r responseResult) error {
		resp = r.data
		return nil
	})
	return resp, err
}

func (t *clientTransport) SendStream(ctx context.Context, endpoint string, shardId uint64, req []byte, onFrame func([]byte) error) ([]byte, error) {
	var resp []byte
	err := t.roundTrip(ctx, endpoint, shardId, req, flagStream, func(r responseResult) error {
		if r.final {
			resp = r.data
			return nil
		}
		return onFrame(r.data)
	})
	return resp, err
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// roundTrip writes the request and passes every response frame to onResult until the final frame.
func (t *clientTransport) roundTrip(ctx context.Context, endpoint string, shardId uint64, req []byte, flags byte, onResult func(responseResult) error) error {
	if t.stopping.Load() {
		return transport.ErrClosed
	}

	connection, err := t.connection(endpoint)
	if err != nil {
		return err
	}

	// Apply the configured timeout if the caller has no deadline
	if _, ok := ctx.Deadline(); !ok && t.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout())
		defer cancel()
	}

	requestID := atomic.AddUint64(&t.nextRequestID, 1)
	pending := &pendingRequest{
		ch:   make(chan responseResult, 16),
		done: make(chan struct{}),
	}
	connection.pending.Store(requestID, pending)
	defer func() {
		connection.pending.Delete(requestID)
		close(pending.done)
	}()

	if err := connection.write(ctx, shardId, requestID, flags, req); err != nil {
		return err
	}

	for {
		select {
		case result := <-pending.ch:
			if result.err != nil {
				return result.err
			}
			if err := onResult(result); err != nil {
				return err
			}
			if result.final {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connection returns the next connection to the endpoint via Round Robin, (re)connecting if needed.
func (t *clientTransport) connection(endpoint string) (*clientConnection, error) {
	pool, _ := t.pools.LoadOrCompute(endpoint, func() *endpointPool {
		return &endpointPool{}
	})

	pool.mu.Lock()
	defer pool.mu.Unlock()

	size := t.config.Transport.ConnectionsPerEndpoint
	if size < 1 {
		size = 1
	}

	index := int(pool.next % uint64(size))
	pool.next++

	for len(pool.conns) <= index {
		pool.conns = append(pool.conns, nil)
	}
	if c := pool.conns[index]; c != nil && !c.broken.Load() {
		return c, nil
	}

	c, err := t.dial(endpoint)
	if err != nil {
		return nil, err
	}
	pool.conns[index] = c
	return c, nil
}

// dial establishes a connection to the endpoint and starts its reader
func (t *clientTransport) dial(endpoint string) (*clientConnection, error) {
	conn, err := t.connector.Connect(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", transport.ErrUnavailable, endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to upgrade connection to %s: %v", transport.ErrUnavailable, endpoint, err)
	}

	c := &clientConnection{
		conn:     conn,
		endpoint: endpoint,
		pending:  xsync.NewMapOf[uint64, *pendingRequest](),
		parent:   t,
	}
	go c.readResponses()

	Logger.Debugf("Connected to %s using %s transport", endpoint, t.connector.GetName())
	return c, nil
}

// closeConnections closes all active connections
func (t *clientTransport) closeConnections() {
	t.pools.Range(func(endpoint string, pool *endpointPool) bool {
		pool.mu.Lock()
		for _, c := range pool.conns {
			if c != nil {
				c.fail(transport.ErrClosed)
			}
		}
		pool.conns = nil
		pool.mu.Unlock()
		t.pools.Delete(endpoint)
		return true
	})
}

// write sends one request frame
func (c *clientConnection) write(ctx context.Context, shardId, requestID uint64, flags byte, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}

	if err := writeFrame(c.conn, shardId, requestID, flags, data); err != nil {
		c.fail(fmt.Errorf("%w: %v", transport.ErrUnavailable, err))
		return fmt.Errorf("%w: write to %s failed: %v", transport.ErrUnavailable, c.endpoint, err)
	}
	return nil
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses() {
	for {
		f, err := readFrame(c.conn, nil)
		if err != nil {
			if !c.broken.Load() {
				Logger.Debugf("Connection to %s closed: %v", c.endpoint, err)
			}
			c.fail(fmt.Errorf("%w: connection to %s broke: %v", transport.ErrUnavailable, c.endpoint, err))
			return
		}

		pending, found := c.pending.Load(f.requestID)
		if !found {
			Logger.Warningf("Received response for unknown request ID %d with shard ID %d", f.requestID, f.shardID)
			continue
		}

		// Blocks while the requester is slow, which pushes back on the server
		select {
		case pending.ch <- responseResult{data: f.data, final: f.flags&flagFrame == 0}:
		case <-pending.done:
		}
	}
}

// fail marks the connection as broken, closes it and fails all pending requests
func (c *clientConnection) fail(err error) {
	if c.broken.Swap(true) {
		return
	}
	c.conn.Close()
	c.pending.Range(func(id uint64, pending *pendingRequest) bool {
		select {
		case pending.ch <- responseResult{err: err}:
		case <-pending.done:
		default:
			// the buffer is full of frames, the requester sees the error after draining it
			go func() {
				select {
				case pending.ch <- responseResult{err: err}:
				case <-pending.done:
				}
			}()
		}
		return true
	})
}
