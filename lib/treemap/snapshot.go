package treemap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/btree"
)

const (
	magicNum        = "DTREESNP"
	snapshotVersion = 1
)

// range flags in the snapshot format
const (
	rangeFromInclusive = 1 << iota
	rangeToInclusive
	rangeFromUnbounded
	rangeToUnbounded
)

// Save writes the map with all entries in key order and all cursors in id order.
//
// Thread-safety: Save must not run concurrently with mutations.
func (m *TreeMap) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024)

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(snapshotVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, m.index); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, m.lastCursor); err != nil {
		return err
	}

	// entries
	if err := binary.Write(bw, binary.LittleEndian, uint64(m.tree.Len())); err != nil {
		return err
	}
	var werr error
	m.tree.Ascend(func(e Entry) bool {
		if werr = writeBytes(bw, e.Key); werr != nil {
			return false
		}
		if werr = binary.Write(bw, binary.LittleEndian, e.Version); werr != nil {
			return false
		}
		werr = writeBytes(bw, e.Value)
		return werr == nil
	})
	if werr != nil {
		return werr
	}

	// cursors
	if err := binary.Write(bw, binary.LittleEndian, uint64(m.cursors.Len())); err != nil {
		return err
	}
	m.cursors.Range(func(_ int64, c *Cursor) bool {
		werr = writeCursor(bw, c)
		return werr == nil
	})
	if werr != nil {
		return werr
	}

	return bw.Flush()
}

// Load replaces the content of the map with the snapshot read from r.
func (m *TreeMap) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024)

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid snapshot format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %d (expected %d)", version, snapshotVersion)
	}

	var index, lastCursor int64
	if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
		return err
	}
	if err := binary.Read(br, binary.LittleEndian, &lastCursor); err != nil {
		return err
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}
	tree := btree.NewG[Entry](degree, lessEntry)
	for i := uint64(0); i < count; i++ {
		var e Entry
		var err error
		if e.Key, err = readBytes(br); err != nil {
			return err
		}
		if err = binary.Read(br, binary.LittleEndian, &e.Version); err != nil {
			return err
		}
		if e.Value, err = readBytes(br); err != nil {
			return err
		}
		tree.ReplaceOrInsert(e)
	}

	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}
	cursors := newCursorArena()
	for i := uint64(0); i < count; i++ {
		c, err := readCursor(br)
		if err != nil {
			return err
		}
		cursors.Store(c.ID, c)
	}

	m.tree, m.cursors, m.index, m.lastCursor = tree, cursors, index, lastCursor
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func rangeFlags(r Range) uint8 {
	var f uint8
	if r.FromInclusive {
		f |= rangeFromInclusive
	}
	if r.ToInclusive {
		f |= rangeToInclusive
	}
	if r.FromUnbounded {
		f |= rangeFromUnbounded
	}
	if r.ToUnbounded {
		f |= rangeToUnbounded
	}
	return f
}

func writeCursor(w io.Writer, c *Cursor) error {
	var flags [3]byte
	flags[0] = rangeFlags(c.Range)
	if c.Descending {
		flags[1] = 1
	}
	if c.Started {
		flags[2] = 1
	}
	if err := binary.Write(w, binary.LittleEndian, c.ID); err != nil {
		return err
	}
	if _, err := w.Write(flags[:]); err != nil {
		return err
	}
	for _, b := range [][]byte{c.Range.From, c.Range.To, c.Position} {
		if err := writeBytes(w, b); err != nil {
			return err
		}
	}
	return nil
}

func readCursor(r io.Reader) (*Cursor, error) {
	c := &Cursor{}
	if err := binary.Read(r, binary.LittleEndian, &c.ID); err != nil {
		return nil, err
	}
	var flags [3]byte
	if _, err := io.ReadFull(r, flags[:]); err != nil {
		return nil, err
	}
	c.Range.FromInclusive = flags[0]&rangeFromInclusive != 0
	c.Range.ToInclusive = flags[0]&rangeToInclusive != 0
	c.Range.FromUnbounded = flags[0]&rangeFromUnbounded != 0
	c.Range.ToUnbounded = flags[0]&rangeToUnbounded != 0
	c.Descending = flags[1] == 1
	c.Started = flags[2] == 1

	var err error
	if c.Range.From, err = readBytes(r); err != nil {
		return nil, err
	}
	if c.Range.To, err = readBytes(r); err != nil {
		return nil, err
	}
	if c.Position, err = readBytes(r); err != nil {
		return nil, err
	}
	return c, nil
}
