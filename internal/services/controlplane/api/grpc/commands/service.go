// Package commands exposes the arbiter over gRPC as
// mira.controlplane.v1.CommandService. Messages are google.protobuf.Struct
// values carrying the JSON form of commands and events.
package commands

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/louisbranch/mira/internal/platform/errors"
	"github.com/louisbranch/mira/internal/platform/i18n"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "mira.controlplane.v1.CommandService"
	// SubmitFullMethod is the method path of Submit.
	SubmitFullMethod = "/" + ServiceName + "/Submit"
	// LocaleMetadataKey selects the language of error messages.
	LocaleMetadataKey = "x-mira-locale"
)

// Submitter is the write path the service forwards to.
type Submitter interface {
	Submit(ctx context.Context, cmd command.Command) (event.Event, error)
}

// CommandServiceServer is the server API for CommandService.
type CommandServiceServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// Service implements CommandServiceServer on top of a Submitter.
type Service struct {
	arbiter Submitter
}

// NewService creates a command service backed by arbiter.
func NewService(arbiter Submitter) *Service {
	return &Service{arbiter: arbiter}
}

// Submit decodes the command, waits for its event and returns it. Rejected
// commands are a successful response carrying the rejected event.
func (s *Service) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "command is required")
	}
	if s == nil || s.arbiter == nil {
		return nil, status.Error(codes.Internal, "arbiter is not configured")
	}
	cmd, err := CommandFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	evt, err := s.arbiter.Submit(ctx, cmd)
	if err != nil {
		return nil, statusFor(ctx, err)
	}
	out, err := EventToStruct(evt)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode event: %v", err)
	}
	return out, nil
}

func statusFor(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		return status.Error(codes.Internal, err.Error())
	}
	tag := i18n.Default()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(LocaleMetadataKey); len(values) > 0 {
			tag = i18n.Match(values[0])
		}
	}
	return domainErr.ToGRPCStatus(tag.String(), i18n.Sprintf(tag, messageKey(domainErr.Code)))
}

func messageKey(code apperrors.Code) string {
	switch code {
	case apperrors.CodeArbiterBusy, apperrors.CodeArbiterStopped:
		return i18n.KeyArbiterBusy
	case apperrors.CodeInvalidArgument, apperrors.CodePayloadInvalid, apperrors.CodeActionUnknown, apperrors.CodeSourceInvalid:
		return i18n.KeyMalformedCommand
	default:
		return i18n.KeyPersistenceFailure
	}
}

// Register adds the service to a gRPC server.
func Register(s grpc.ServiceRegistrar, srv CommandServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes CommandService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mira/controlplane/v1/commands.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServiceServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubmitFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandServiceServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls CommandService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection to the control plane.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Submit sends cmd and decodes the resulting event.
func (c *Client) Submit(ctx context.Context, cmd command.Command, opts ...grpc.CallOption) (event.Event, error) {
	in, err := CommandToStruct(cmd)
	if err != nil {
		return event.Event{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitFullMethod, in, out, opts...); err != nil {
		return event.Event{}, err
	}
	return EventFromStruct(out)
}
