package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses of the session
// protocol. Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Session fields
	ClientID    string `json:"client_id,omitempty"`    // Used for: Register
	SessionID   uint64 `json:"session_id,omitempty"`   // Used for: KeepAlive, Unregister, Command
	Sequence    uint64 `json:"sequence,omitempty"`     // Used for: Command
	RespondedTo uint64 `json:"responded_to,omitempty"` // Used for: Command, Unregister

	// Query fields
	Consistency store.ReadConsistency `json:"consistency,omitempty"` // Used for: Query

	// Opaque command, query or result
	Payload []byte `json:"payload,omitempty"`

	// Response only fields
	Status  Status        `json:"status,omitempty"`
	Code    store.RetCode `json:"code,omitempty"`    // Used for: CommandFailed responses
	Err     string        `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message
	Term    uint64        `json:"term,omitempty"`    // Highest term known to the replica
	Leader  string        `json:"leader,omitempty"`  // Client endpoint of the leader, empty if unknown
	Members []string      `json:"members,omitempty"` // Used for: Register, Metadata responses
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRegisterRequest creates a new session registration request
func NewRegisterRequest(clientID string) *Message {
	return &Message{
		MsgType:  MsgTRegister,
		ClientID: clientID,
	}
}

// NewKeepAliveRequest creates a new keep alive request for a session
func NewKeepAliveRequest(sessionID uint64) *Message {
	return &Message{
		MsgType:   MsgTKeepAlive,
		SessionID: sessionID,
	}
}

// NewUnregisterRequest creates a new request that closes a session
func NewUnregisterRequest(sessionID, sequence, respondedTo uint64) *Message {
	return &Message{
		MsgType:     MsgTUnregister,
		SessionID:   sessionID,
		Sequence:    sequence,
		RespondedTo: respondedTo,
	}
}

// NewCommandRequest creates a new command request
func NewCommandRequest(sessionID, sequence, respondedTo uint64, payload []byte) *Message {
	return &Message{
		MsgType:     MsgTCommand,
		SessionID:   sessionID,
		Sequence:    sequence,
		RespondedTo: respondedTo,
		Payload:     payload,
	}
}

// NewQueryRequest creates a new query request
func NewQueryRequest(consistency store.ReadConsistency, payload []byte) *Message {
	return &Message{
		MsgType:     MsgTQuery,
		Consistency: consistency,
		Payload:     payload,
	}
}

// NewMetadataRequest creates a request for term, leader and members of a shard
func NewMetadataRequest() *Message {
	return &Message{
		MsgType: MsgTMetadata,
	}
}

// NewResponse creates a successful response to a request of the given type
func NewResponse(msgType MessageType, payload []byte) *Message {
	return &Message{
		MsgType: msgType,
		Payload: payload,
	}
}

// NewErrorResponse creates a response with a non ok status
func NewErrorResponse(msgType MessageType, status Status, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Status:  status,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Type
// --------------------------------------------------------------------------

// MessageType is the type of message
type MessageType uint8

const (
	MsgTUnknown    MessageType = iota
	MsgTRegister               // Open a session
	MsgTKeepAlive              // Keep a session alive
	MsgTUnregister             // Close a session
	MsgTCommand                // Propose a command through the log
	MsgTQuery                  // Evaluate a query
	MsgTMetadata               // Term, leader and members of a shard
)

// String returns the string representation of the MessageType
func (t MessageType) String() string {
	switch t {
	case MsgTRegister:
		return "register"
	case MsgTKeepAlive:
		return "keepAlive"
	case MsgTUnregister:
		return "unregister"
	case MsgTCommand:
		return "command"
	case MsgTQuery:
		return "query"
	case MsgTMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "register":
		*t = MsgTRegister
	case "keepAlive":
		*t = MsgTKeepAlive
	case "unregister":
		*t = MsgTUnregister
	case "command":
		*t = MsgTCommand
	case "query":
		*t = MsgTQuery
	case "metadata":
		*t = MsgTMetadata
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Response Status
// --------------------------------------------------------------------------

// Status is the outcome of a request
type Status uint8

const (
	StatusOK             Status = iota
	StatusNotLeader             // The replica is not the leader, Leader names the leader if known
	StatusSessionExpired        // The session is unknown to the shard
	StatusCommandFailed         // The state machine rejected the command, Code holds the reason
	StatusTimeout               // No result within the deadline, the outcome of a command is unknown
	StatusError                 // Any other failure
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotLeader:
		return "notLeader"
	case StatusSessionExpired:
		return "sessionExpired"
	case StatusCommandFailed:
		return "commandFailed"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalJSON marshals the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the string form of a status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for candidate := StatusOK; candidate <= StatusError; candidate++ {
		if candidate.String() == str {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status: %s", str)
}

// StatusFromError maps a store error to the status of a response.
func StatusFromError(err error) (Status, store.RetCode) {
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		return StatusError, store.RetCInternalError
	}
	switch {
	case storeErr.Code == store.RetCNotLeader:
		return StatusNotLeader, storeErr.Code
	case storeErr.Code == store.RetCSessionExpired:
		return StatusSessionExpired, storeErr.Code
	case storeErr.Code == store.RetCTimeout:
		return StatusTimeout, storeErr.Code
	case storeErr.Code.IsDeterministic():
		return StatusCommandFailed, storeErr.Code
	default:
		return StatusError, storeErr.Code
	}
}
