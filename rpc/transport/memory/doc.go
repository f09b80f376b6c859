// Package memory implements the transport interfaces without sockets. Server and client
// transports created from the same Network reach each other by endpoint name, which lets
// tests run a cluster of rpc servers inside one process and cut single endpoints off with
// Disconnect.
package memory
