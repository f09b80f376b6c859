package protocol

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dTree/lib/treemap"
)

// TestCommandSizeBytes tests the SizeBytes method
func TestCommandSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with key and value",
			command: Command{
				Type:  CommandTPut,
				Key:   []byte("testkey"),
				Value: []byte("testvalue"),
			},
			expected: 21 + 9 + 4 + 7 + 9, // Header + empty range + KeyLen + Key + Value
		},
		{
			name: "Command with range",
			command: Command{
				Type:  CommandTIterate,
				Range: treemap.Closed([]byte("a"), []byte("zz")),
			},
			expected: 21 + 9 + 1 + 2 + 4, // Header + range + KeyLen
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if got := len(tt.command.Serialize()); got != tt.expected {
				t.Errorf("len(Serialize()) = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestCommandSerializeDeserialize tests both Serialize and Deserialize methods
func TestCommandSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Put",
			command: Command{
				Type:  CommandTPut,
				Key:   []byte("testkey"),
				Value: []byte("testvalue"),
			},
		},
		{
			name: "Replace with expected version",
			command: Command{
				Type:    CommandTReplace,
				Key:     []byte("testkey"),
				Value:   []byte("new"),
				Version: 42,
			},
		},
		{
			name: "Remove without value",
			command: Command{
				Type: CommandTRemove,
				Key:  []byte("testkey"),
			},
		},
		{
			name: "CursorNext",
			command: Command{
				Type:   CommandTCursorNext,
				Cursor: 1 << 40,
				Limit:  17,
			},
		},
		{
			name: "Clear with half open range",
			command: Command{
				Type:  CommandTClear,
				Range: treemap.Range{From: []byte("a"), To: []byte("m"), FromInclusive: true},
			},
		},
		{
			name: "IterateDescending unbounded",
			command: Command{
				Type:  CommandTIterateDescending,
				Range: treemap.AtLeast([]byte{0x00, 0xff}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.command.Type {
				t.Errorf("Type = %v, want %v", got.Type, tt.command.Type)
			}
			if got.Version != tt.command.Version || got.Cursor != tt.command.Cursor || got.Limit != tt.command.Limit {
				t.Errorf("numbers = (%d, %d, %d), want (%d, %d, %d)",
					got.Version, got.Cursor, got.Limit, tt.command.Version, tt.command.Cursor, tt.command.Limit)
			}
			if !bytes.Equal(got.Key, tt.command.Key) {
				t.Errorf("Key = %q, want %q", got.Key, tt.command.Key)
			}
			if !bytes.Equal(got.Value, tt.command.Value) {
				t.Errorf("Value = %q, want %q", got.Value, tt.command.Value)
			}
			if got.Range.String() != tt.command.Range.String() {
				t.Errorf("Range = %v, want %v", got.Range, tt.command.Range)
			}
		})
	}
}

// TestCommandDeserializeErrors tests error handling in Deserialize
func TestCommandDeserializeErrors(t *testing.T) {
	valid := (&Command{Type: CommandTPut, Key: []byte("key"), Range: treemap.Closed([]byte("a"), []byte("b"))}).Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty data", []byte{}},
		{"Header only", valid[:21]},
		{"Truncated range", valid[:25]},
		{"Truncated key", valid[:len(valid)-1]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize() expected error for %s", tt.name)
			}
		})
	}
}

func TestQuerySerializeDeserialize(t *testing.T) {
	tests := []Query{
		{Type: QueryTGet, Key: []byte("k")},
		{Type: QueryTScan, Descending: true, Limit: 10, Range: treemap.Closed([]byte("a"), []byte("b"))},
		{Type: QueryTSize, Range: treemap.All()},
		{Type: QueryTInfo},
	}

	for _, q := range tests {
		t.Run(q.Type.String(), func(t *testing.T) {
			var got Query
			if err := got.Deserialize(q.Serialize()); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if got.Type != q.Type || got.Descending != q.Descending || got.Limit != q.Limit {
				t.Errorf("got %+v, want %+v", got, q)
			}
			if !bytes.Equal(got.Key, q.Key) || got.Range.String() != q.Range.String() {
				t.Errorf("got key %q range %v, want key %q range %v", got.Key, got.Range, q.Key, q.Range)
			}
		})
	}
}
