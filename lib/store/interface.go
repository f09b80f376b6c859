package store

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Session identifies a client session registered with a shard.
// Sequence is the series id of the next command, RespondedTo the highest series id whose
// result the client has received. Both are used to deduplicate retried commands.
type Session struct {
	ID          uint64
	Sequence    uint64
	RespondedTo uint64
}

// ProposalCompleted advances the session after a command was answered.
func (s *Session) ProposalCompleted() {
	s.RespondedTo = s.Sequence
	s.Sequence++
}

// IStore is the interface of a single shard running the ordered map state machine.
// Commands and queries are passed in their serialized form (see the protocol package) and
// results are returned serialized as well, so a store can be served by the rpc layer without
// knowing the commands. Failures are reported as *Error.
type IStore interface {
	// RegisterSession opens a new client session on the shard.
	RegisterSession(ctx context.Context) (Session, error)
	// UnregisterSession closes a session. Results cached for the session are released.
	UnregisterSession(ctx context.Context, session Session) error
	// Propose orders a command through the shard log and applies it exactly once per
	// session and sequence.
	Propose(ctx context.Context, session Session, cmd []byte) ([]byte, error)
	// Read evaluates a query with the requested consistency.
	Read(ctx context.Context, query []byte, consistency ReadConsistency) ([]byte, error)
	// Close releases all resources of the store.
	Close() error
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCVersionMismatch                     // 4: Expected version of a conditional command did not match.
	RetCCursorNotFound                      // 5: Cursor was never opened, closed or invalidated by a clear.
	RetCSessionExpired                      // 6: Session is unknown to the shard.
	RetCTimeout                             // 7: No result within the deadline, the outcome is unknown.
	RetCNotLeader                           // 8: The shard has no leader or the local replica cannot serve the request.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCVersionMismatch:
		return "VersionMismatch"
	case RetCCursorNotFound:
		return "CursorNotFound"
	case RetCSessionExpired:
		return "SessionExpired"
	case RetCTimeout:
		return "Timeout"
	case RetCNotLeader:
		return "NotLeader"
	default:
		return fmt.Sprintf("Unknown(%d)", uint64(c))
	}
}

// IsDeterministic reports whether the code is produced by the state machine itself,
// which means a retry of the same command yields the same code.
func (c RetCode) IsDeterministic() bool {
	switch c {
	case RetCUnsupportedOperation, RetCInvalidOperation, RetCVersionMismatch, RetCCursorNotFound:
		return true
	default:
		return false
	}
}
