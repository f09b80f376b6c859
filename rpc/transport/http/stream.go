package http

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Chunks of a streamed response body:
// - 1 byte: kind (chunkFrame or chunkFinal)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data
const (
	chunkFrame byte = 0
	chunkFinal byte = 1
)

func writeChunk(w io.Writer, kind byte, data []byte) error {
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readChunk(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	kind := header[0]
	if kind != chunkFrame && kind != chunkFinal {
		return 0, nil, fmt.Errorf("invalid chunk kind %d", kind)
	}
	data := make([]byte, binary.BigEndian.Uint32(header[1:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return kind, data, nil
}
