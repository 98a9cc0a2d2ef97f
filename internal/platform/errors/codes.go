// Package errors provides structured control-plane errors that map onto
// HTTP and gRPC status codes.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Command validation
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeActionUnknown   Code = "ACTION_UNKNOWN"
	CodePayloadInvalid  Code = "PAYLOAD_INVALID"
	CodeSourceInvalid   Code = "SOURCE_INVALID"

	// Write path
	CodePersistenceFailure Code = "PERSISTENCE_FAILURE"
	CodeArbiterBusy        Code = "ARBITER_BUSY"
	CodeArbiterStopped     Code = "ARBITER_STOPPED"

	// Read path
	CodeSubscriberOverload Code = "SUBSCRIBER_OVERLOAD"
	CodeNotFound           Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument, CodeActionUnknown, CodePayloadInvalid, CodeSourceInvalid:
		return codes.InvalidArgument
	case CodeArbiterBusy, CodeArbiterStopped:
		return codes.Unavailable
	case CodeSubscriberOverload:
		return codes.ResourceExhausted
	case CodeNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeActionUnknown, CodePayloadInvalid, CodeSourceInvalid:
		return http.StatusBadRequest
	case CodeArbiterBusy, CodeArbiterStopped:
		return http.StatusServiceUnavailable
	case CodeSubscriberOverload:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a producer may resubmit the same command.
func (c Code) Retryable() bool {
	switch c {
	case CodeArbiterBusy, CodeArbiterStopped, CodeSubscriberOverload:
		return true
	default:
		return false
	}
}
