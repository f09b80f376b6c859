package client

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dTree/lib/store"
)

var (
	// ErrUnreachableCluster is returned by Connect if no member accepted the session.
	ErrUnreachableCluster = errors.New("cluster unreachable")
	// ErrSessionExpired is returned when the cluster discarded the session. It is not
	// recovered automatically, the caller has to connect again.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionClosed is returned for requests after Close and for requests that were
	// outstanding when the client was closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrTimeout is returned if no response arrived within the deadline. The outcome of a
	// command that timed out is unknown, it may still be applied.
	ErrTimeout = errors.New("request timed out")
)

// NotLeaderError is returned when the redirect budget is exhausted without reaching the leader.
type NotLeaderError struct {
	Term     uint64
	Leader   string // last known leader, empty if unknown
	Sequence uint64 // sequence of the command, zero for queries
}

func (e *NotLeaderError) Error() string {
	if e.Leader == "" {
		return fmt.Sprintf("no leader known in term %d (sequence %d)", e.Term, e.Sequence)
	}
	return fmt.Sprintf("not the leader, leader of term %d is %s (sequence %d)", e.Term, e.Leader, e.Sequence)
}

// CommandFailedError is returned when the state machine rejected a command or query.
// The outcome is deterministic, retrying the same request yields the same error.
type CommandFailedError struct {
	Code     store.RetCode
	Msg      string
	Term     uint64
	Leader   string
	Sequence uint64
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command failed with %s (sequence %d, term %d): %s", e.Code, e.Sequence, e.Term, e.Msg)
}

// IsVersionMismatch reports whether err is a failed conditional command.
func IsVersionMismatch(err error) bool {
	var cf *CommandFailedError
	return errors.As(err, &cf) && cf.Code == store.RetCVersionMismatch
}

// IsCursorNotFound reports whether err was caused by a closed or invalidated cursor.
func IsCursorNotFound(err error) bool {
	var cf *CommandFailedError
	return errors.As(err, &cf) && cf.Code == store.RetCCursorNotFound
}
