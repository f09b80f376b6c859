package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTMetadata},

		// Register request and response
		{MsgType: common.MsgTRegister, ClientID: "9b1c2d4e-client"},
		{
			MsgType:   common.MsgTRegister,
			SessionID: 42,
			Sequence:  1,
			Term:      3,
			Leader:    "node-1:8700",
			Members:   []string{"node-1:8700", "node-2:8700", "node-3:8700"},
		},

		// Command request
		{
			MsgType:     common.MsgTCommand,
			SessionID:   42,
			Sequence:    7,
			RespondedTo: 6,
			Payload:     []byte("serialized-command"),
		},

		// Query request with non default consistency
		{
			MsgType:     common.MsgTQuery,
			Consistency: store.LinearizableLease,
			Payload:     []byte("serialized-query"),
		},

		// Error responses
		{
			MsgType: common.MsgTCommand,
			Status:  common.StatusNotLeader,
			Term:    4,
			Leader:  "node-2:8700",
			Err:     "not the leader",
		},
		{
			MsgType: common.MsgTCommand,
			Status:  common.StatusCommandFailed,
			Code:    store.RetCVersionMismatch,
			Err:     "expected version 3, found 5",
		},

		// Message with all fields filled
		{
			MsgType:     common.MsgTQuery,
			ClientID:    "client",
			SessionID:   1,
			Sequence:    2,
			RespondedTo: 1,
			Consistency: store.Linearizable,
			Payload:     []byte("payload"),
			Status:      common.StatusTimeout,
			Code:        store.RetCTimeout,
			Err:         "timeout",
			Term:        9,
			Leader:      "leader:8700",
			Members:     []string{"leader:8700"},
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTRegister; msgType <= common.MsgTMetadata; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty payload slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTCommand,
				Payload: []byte{},
			},
		},
		{
			name: "Empty member strings",
			msg: common.Message{
				MsgType: common.MsgTMetadata,
				Members: []string{"", "b"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if (tc.msg.Payload == nil) != (result.Payload == nil) {
				t.Errorf("Payload nil/non-nil mismatch: expected %v, got %v", tc.msg.Payload, result.Payload)
			}
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestBinaryDeserializeResetsFields tests that reusing a message does not leak old fields
func TestBinaryDeserializeResetsFields(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(common.Message{MsgType: common.MsgTQuery})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	msg := common.Message{Err: "old", Payload: []byte("old"), Members: []string{"old"}}
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if msg.Err != "" || msg.Payload != nil || msg.Members != nil {
		t.Errorf("old fields survived: %+v", msg)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0, 0, 0},
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 2, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for client id",
			data:        []byte{1, 0, 0, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Missing session id",
			data:        []byte{1, 0, 0, 0, 2, 0, 0, 0}, // Session id flag but only 3 bytes
			expectError: true,
		},
		{
			name:        "Invalid member count",
			data:        []byte{6, 0, 0, 2, 0, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
