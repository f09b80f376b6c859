// Package transport defines the interfaces and abstractions for RPC communication
// in dTree. It provides a common contract that all transport implementations must
// fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting shard-based request routing
//   - Addressing requests to a chosen endpoint, so the client can follow the leader
//   - Streaming responses as ordered frames followed by a final frame
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets, in-memory)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc / ServerStreamHandleFunc: Function types for request handling callbacks.
//
//   - ErrUnavailable: returned for unreachable endpoints and broken connections, so callers
//     can move on to another replica.
package transport
