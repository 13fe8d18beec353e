// Package bus exposes the scheduler over a JSON request/reply interface:
// dispatch decisions, learning feedback, state-mirroring events, and the
// Contract-Net actions. The same handler serves in-process callers and a
// NATS subject, so the negotiation runtime can live in a separate process.
package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Handler processes one JSON request and returns a JSON reply. Every
// request gets a reply; malformed or unknown requests get an error payload.
type Handler interface {
	Handle(req []byte) []byte
}

// Requester issues one request and blocks for its reply.
type Requester interface {
	Request(payload []byte, timeout time.Duration) ([]byte, error)
	Close() error
}

// ErrorReply is the explicit error payload for malformed or unknown
// requests.
type ErrorReply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func errorResponse(format string, args ...interface{}) []byte {
	buf, _ := json.Marshal(ErrorReply{Status: "error", Message: fmt.Sprintf(format, args...)})
	return buf
}

func mustMarshal(v interface{}) []byte {
	buf, err := json.Marshal(v)
	if err != nil {
		return errorResponse("encoding reply: %v", err)
	}
	return buf
}
