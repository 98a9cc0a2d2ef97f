package command

import (
	"errors"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
)

// Rejection reason codes stored on rejected events.
const (
	ReasonUnknownAction  = "unknown_action"
	ReasonInvalidPayload = "invalid_payload"
	ReasonInvalidSource  = "invalid_source"
)

// Rejection captures why a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Decision is the pure outcome of reducing one command. At most one of
// Patch and Rejection is set; neither means accepted without a change.
type Decision struct {
	Patch     *state.Patch
	Rejection *Rejection
}

// Accept returns a decision that applies p.
func Accept(p state.Patch) Decision {
	return Decision{Patch: &p}
}

// AcceptNoop returns a decision that records the command without a change.
func AcceptNoop() Decision {
	return Decision{}
}

// Reject returns a decision carrying a rejection.
func Reject(code, message string) Decision {
	return Decision{Rejection: &Rejection{Code: code, Message: message}}
}

// RejectionFor maps a validation error to its rejection reason code.
func RejectionFor(err error) Rejection {
	switch {
	case errors.Is(err, ErrActionUnknown):
		return Rejection{Code: ReasonUnknownAction, Message: err.Error()}
	case errors.Is(err, ErrSourceInvalid):
		return Rejection{Code: ReasonInvalidSource, Message: err.Error()}
	default:
		return Rejection{Code: ReasonInvalidPayload, Message: err.Error()}
	}
}
