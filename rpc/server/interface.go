package server

import (
	"github.com/ValentinKolb/dTree/rpc/common"
)

// IRPCServerAdapter contains the service specific parts of request handling.
// The session protocol itself (registration, leader checks, deduplication) is the same for
// every service, an adapter only knows the payloads of its state machine.
type IRPCServerAdapter interface {
	// Validate checks the payload of a command or query before it is proposed or evaluated.
	// Invalid payloads are answered without touching the log.
	Validate(msgType common.MessageType, payload []byte) error
	// Records splits the payload of a successful response into the frames of a streamed response.
	Records(payload []byte) ([][]byte, error)
}
