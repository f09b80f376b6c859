package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// Network connects memory server and client transports by endpoint name.
// Servers become reachable with Listen and unreachable with Close or Disconnect.
type Network struct {
	servers      *xsync.MapOf[string, *serverTransport]
	disconnected *xsync.MapOf[string, bool]
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		servers:      xsync.NewMapOf[string, *serverTransport](),
		disconnected: xsync.NewMapOf[string, bool](),
	}
}

// NewServerTransport creates a server transport that listens on this network.
func (n *Network) NewServerTransport() transport.IRPCServerTransport {
	return &serverTransport{network: n, done: make(chan struct{})}
}

// NewClientTransport creates a client transport that sends on this network.
func (n *Network) NewClientTransport() transport.IRPCClientTransport {
	return &clientTransport{network: n}
}

// Disconnect makes the endpoint unreachable without stopping its server.
func (n *Network) Disconnect(endpoint string) {
	n.disconnected.Store(endpoint, true)
}

// Reconnect reverts Disconnect.
func (n *Network) Reconnect(endpoint string) {
	n.disconnected.Delete(endpoint)
}

// lookup returns the server listening on endpoint
func (n *Network) lookup(endpoint string) (*serverTransport, error) {
	if down, _ := n.disconnected.Load(endpoint); down {
		return nil, fmt.Errorf("%w: %s is disconnected", transport.ErrUnavailable, endpoint)
	}
	s, ok := n.servers.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: no server listening on %s", transport.ErrUnavailable, endpoint)
	}
	return s, nil
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

type serverTransport struct {
	network       *Network
	handler       transport.ServerHandleFunc
	streamHandler transport.ServerStreamHandleFunc
	endpoint      string
	closeOnce     sync.Once
	done          chan struct{}
}

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) RegisterStreamHandler(handler transport.ServerStreamHandleFunc) {
	t.streamHandler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if config.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint configured")
	}
	if _, loaded := t.network.servers.LoadOrStore(config.Transport.Endpoint, t); loaded {
		return fmt.Errorf("endpoint %s already in use", config.Transport.Endpoint)
	}
	t.endpoint = config.Transport.Endpoint
	Logger.Infof("Starting memory server on %s", t.endpoint)

	<-t.done
	return nil
}

func (t *serverTransport) Close() error {
	t.closeOnce.Do(func() {
		if t.endpoint != "" {
			t.network.servers.Compute(t.endpoint, func(old *serverTransport, loaded bool) (*serverTransport, bool) {
				return old, old == t
			})
		}
		close(t.done)
	})
	return nil
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

type clientTransport struct {
	network *Network
	config  common.ClientConfig
}

func (t *clientTransport) Connect(config common.ClientConfig) error {
	t.config = config
	return nil
}

func (t *clientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	s, err := t.network.lookup(endpoint)
	if err != nil {
		return nil, err
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	// copy, the handler may keep the request
	data := append([]byte(nil), req...)
	result := make(chan []byte, 1)
	go func() { result <- s.handler(shardId, data) }()

	select {
	case resp := <-result:
		return resp, nil
	case <-s.done:
		return nil, fmt.Errorf("%w: server %s closed", transport.ErrUnavailable, endpoint)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *clientTransport) SendStream(ctx context.Context, endpoint string, shardId uint64, req []byte, onFrame func([]byte) error) ([]byte, error) {
	s, err := t.network.lookup(endpoint)
	if err != nil {
		return nil, err
	}
	if s.streamHandler == nil {
		return nil, fmt.Errorf("server %s does not support streaming", endpoint)
	}
	ctx, cancel := t.withTimeout(ctx)
	defer cancel()

	data := append([]byte(nil), req...)
	frames := make(chan []byte)
	result := make(chan []byte, 1)
	go func() {
		result <- s.streamHandler(shardId, data, func(frame []byte) error {
			select {
			case frames <- append([]byte(nil), frame...):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	for {
		select {
		case frame := <-frames:
			if err := onFrame(frame); err != nil {
				return nil, err
			}
		case resp := <-result:
			return resp, nil
		case <-s.done:
			return nil, fmt.Errorf("%w: server %s closed", transport.ErrUnavailable, endpoint)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *clientTransport) Close() error {
	return nil
}

func (t *clientTransport) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || t.config.TimeoutSecond <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.config.Timeout())
}
