// Package http implements an HTTP-based transport layer for RPC communication
// in the dTree system. It provides concrete implementations of the transport
// interfaces defined in the parent package.
//
// Routes (chi router):
//
//	POST /{shardId}          one request, one response body
//	POST /{shardId}/stream   one request, a body of chunks (kind, length, data), the last
//	                         chunk holds the final response
//	GET  /health             liveness check
//	GET  /metrics            VictoriaMetrics counters and histograms in Prometheus format
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport on net/http. Endpoints may be
//     given with or without scheme. Network failures are reported as transport.ErrUnavailable.
//
//   - httpServerTransport: Implements IRPCServerTransport, routing requests to the handler
//     by the shard ID in the URL path. With log level debug every request is logged.
package http
