package voice

import (
	"errors"
	"fmt"
)

// ErrNegotiation means the capability exchange failed. Fatal to the
// session; recovering requires a fresh join-audio cycle.
var ErrNegotiation = errors.New("capability negotiation failed")

// TransportError wraps an error payload returned for a create, connect,
// produce or consume request. It aborts only the affected operation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

func remoteError(op, msg string) error {
	return &TransportError{Op: op, Err: errors.New(msg)}
}

// Condition is the UI-reportable session state. Raw remote error detail
// never leaks past the controller boundary.
type Condition string

const (
	ConditionNone Condition = ""
	// ConditionPermissionDenied asks the user to grant microphone access
	// and retry.
	ConditionPermissionDenied Condition = "permission_denied"
	// ConditionAudioUnavailable covers every other negotiation or
	// transport failure: audio unavailable, retry.
	ConditionAudioUnavailable Condition = "audio_unavailable"
)
