// Package protocol defines the operations of the ordered map state machine and their
// binary wire format, together with the deterministic code that applies them to a
// treemap.TreeMap.
//
// The package consists of three parts:
//
//   - Commands: operations that modify the map (Put, Replace, PollFirstEntry, Iterate,
//     CursorNext, Clear, ...). They are serialized into the raft log and applied on every
//     replica by Apply. The log index of a command is the version it writes and the id of
//     the cursor it opens.
//
//   - Queries: read-only operations (Get, navigation, Size, Scan, Info). They are serialized
//     as well, because they travel over the rpc layer before being evaluated by Lookup.
//
//   - Results: every operation answers with a Result. A Result is a list of records, a fixed
//     size header followed by one record per entry, so a large result can be streamed record
//     by record and rebuilt on the receiving side.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 8 bytes: expected version (Replace, RemoveIfVersion)
//	- 8 bytes: cursor id (CursorNext, CursorClose)
//	- 4 bytes: batch limit (CursorNext)
//	- range: 1 byte flags, 4 bytes from length, from, 4 bytes to length, to
//	- 4 bytes: key length
//	- N bytes: key
//	- M bytes: value (rest of the buffer)
//
// Query Format:
//
//	- 1 byte: Query type
//	- 1 byte: flags (bit 0: descending)
//	- 4 bytes: limit (Scan)
//	- range: as above
//	- N bytes: key (rest of the buffer)
//
// Result Format:
//
//	A sequence of records, each prefixed with its length (4 bytes). The first record is the
//	header (1 byte flags, 8 bytes count, 8 bytes cursor, 8 bytes version), every following
//	record is an entry (4 bytes key length, key, 8 bytes version, value).
//
// All integers are big endian.
package protocol
