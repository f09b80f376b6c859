package transport

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dTree/rpc/common"
)

var (
	// ErrUnavailable is returned when an endpoint cannot be reached or the connection broke
	// before a response arrived. The request may or may not have been processed.
	ErrUnavailable = errors.New("endpoint unavailable")
	// ErrClosed is returned by a closed transport
	ErrClosed = errors.New("transport closed")
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes a shardId and a request as parameters and returns a response
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// ServerStreamHandleFunc handles a request whose response is streamed. Every call of send
// delivers one frame to the client, in order. The returned response is the final frame.
type ServerStreamHandleFunc func(shardId uint64, req []byte, send func(frame []byte) error) (resp []byte)

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a RPCServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// RegisterStreamHandler registers the handler for streamed requests
	RegisterStreamHandler(handler ServerStreamHandleFunc)
	// Listen starts the transport layer and listens for incoming requests.
	// It blocks until the transport is closed.
	Listen(config common.ServerConfig) error
	// Close stops listening
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport. Requests are addressed to a
// single endpoint, choosing the endpoint is up to the caller. It implements the messaging and
// streaming services of a partition.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration. Connections to the
	// configured endpoints are opened eagerly, other endpoints are connected on first use.
	Connect(config common.ClientConfig) error
	// Send sends a request to the endpoint and returns the response
	Send(ctx context.Context, endpoint string, shardId uint64, req []byte) (resp []byte, err error)
	// SendStream sends a request and calls onFrame for every streamed frame. It returns the final frame.
	SendStream(ctx context.Context, endpoint string, shardId uint64, req []byte, onFrame func(frame []byte) error) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
