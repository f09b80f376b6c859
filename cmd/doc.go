// Package cmd implements the command-line interface of dTree. It provides a
// hierarchical command structure for running a server and for working with
// the map as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts a server with local and replicated shards
//   - tree: opens a session and runs map operations (put, replace, floor, scan, iterate, ...)
//     and the perf benchmark
//   - util: shared flag, environment and transport handling (internal use)
//
// Flags can be set as DTREE_<FLAG> environment variables or in a .env file.
// See dtree -help for a list of all commands.
package cmd
