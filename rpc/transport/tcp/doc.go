// Package tcp implements TCP socket-based transport for dTree's RPC system. It provides
// concrete implementations of the base package's connector interfaces optimized for TCP
// connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse, streaming and request routing. See the base package
// documentation for details on the frame format.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the socket options of common.SocketConf (no delay, keep alive, linger
// and socket buffer sizes) to every connection.
package tcp
