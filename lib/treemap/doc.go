// Package treemap implements the ordered map that backs a dTree shard.
//
// A TreeMap stores byte keys in bytewise order inside a b-tree (github.com/google/btree).
// Every value carries the version of the mutation that wrote it. Inside a replicated shard
// the version is the raft log index of the command, which makes versions unique and
// strictly increasing for every key.
//
// Besides point operations the map supports navigation (Ceiling, Floor, Higher, Lower,
// First, Last), destructive navigation (PollFirst, PollLast) and range operations
// (Size, Scan, Clear) over a Range with independent inclusivity flags at both ends.
//
// Cursors:
//
//	A cursor is iteration state held by the map itself. It is identified by an int64 id,
//	is scoped to a range and a direction, and remembers the last key it handed out.
//	Cursors live in an arena ordered by id (github.com/zhangyunhao116/skipmap) and are
//	only removed explicitly by CursorClose or by a Clear whose range intersects the cursor
//	range. Both entries and cursors are written by Save, so a restored map serves the same
//	cursors as the map that produced the snapshot.
//
// Thread Safety:
//
//	The map is not thread-safe. All mutations are expected to come from a single
//	log application path, which serializes them.
package treemap
