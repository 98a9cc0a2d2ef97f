package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("submit: %w", Wrap(CodePersistenceFailure, "append event", stderrors.New("disk full")))
	if !stderrors.Is(err, New(CodePersistenceFailure, "")) {
		t.Fatal("expected code match through wrapping")
	}
	if stderrors.Is(err, New(CodeArbiterBusy, "")) {
		t.Fatal("expected different code not to match")
	}
	if got := CodeOf(err); got != CodePersistenceFailure {
		t.Fatalf("code = %s", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("plain error code = %s", got)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodePersistenceFailure, "append event", stderrors.New("disk full"))
	if err.Error() != "append event: disk full" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCodeMappings(t *testing.T) {
	tests := []struct {
		code      Code
		grpc      codes.Code
		http      int
		retryable bool
	}{
		{CodeActionUnknown, codes.InvalidArgument, http.StatusBadRequest, false},
		{CodePayloadInvalid, codes.InvalidArgument, http.StatusBadRequest, false},
		{CodeArbiterBusy, codes.Unavailable, http.StatusServiceUnavailable, true},
		{CodeSubscriberOverload, codes.ResourceExhausted, http.StatusTooManyRequests, true},
		{CodePersistenceFailure, codes.Internal, http.StatusInternalServerError, false},
		{CodeNotFound, codes.NotFound, http.StatusNotFound, false},
	}
	for _, tt := range tests {
		if got := tt.code.GRPCCode(); got != tt.grpc {
			t.Fatalf("%s grpc = %s, want %s", tt.code, got, tt.grpc)
		}
		if got := tt.code.HTTPStatus(); got != tt.http {
			t.Fatalf("%s http = %d, want %d", tt.code, got, tt.http)
		}
		if got := tt.code.Retryable(); got != tt.retryable {
			t.Fatalf("%s retryable = %v", tt.code, got)
		}
	}
}

func TestToGRPCStatusRoundTripsCode(t *testing.T) {
	err := WithMetadata(CodeArbiterBusy, "queue full", map[string]string{"Action": "toggle_mic"})
	grpcErr := err.ToGRPCStatus("en-US", "Busy, try again.")

	st := status.Convert(grpcErr)
	if st.Code() != codes.Unavailable {
		t.Fatalf("status code = %s", st.Code())
	}
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		if msg, ok := detail.(*errdetails.LocalizedMessage); ok {
			localized = msg
		}
	}
	if localized == nil || localized.GetMessage() != "Busy, try again." {
		t.Fatalf("missing localized message: %+v", st.Details())
	}

	code, ok := FromGRPCStatus(grpcErr)
	if !ok || code != CodeArbiterBusy {
		t.Fatalf("from status = %s, %v", code, ok)
	}
	if _, ok := FromGRPCStatus(status.Error(codes.Unavailable, "bare")); ok {
		t.Fatal("expected no domain code on bare status")
	}
}
