// Package util provides small helpers shared by the command line tools and the rpc layer:
// seeded FNV-1a string hashing (used to derive replica ids from node names and to spread
// clients over replicas) and summary statistics for benchmark output.
package util
