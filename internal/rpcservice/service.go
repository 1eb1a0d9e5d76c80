// Package rpcservice exposes the monitor and its history over gRPC and a
// small HTTP status surface, both multiplexed onto the daemon's IPC socket.
//
// The service is described by hand with protobuf well-known types, so no
// generated code is involved:
//
//	State, Enable, Disable, Toggle  Empty       -> StringValue (state)
//	ListHistory                     Int64Value  -> ListValue of Struct
//	ClearHistory                    Empty       -> Empty
//	Watch                           StringValue -> stream of Struct
package rpcservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipwatch/internal/eventbus"
	"go.klb.dev/clipwatch/internal/monitor"
	"go.klb.dev/clipwatch/internal/recorder"
	"go.klb.dev/clipwatch/internal/selection"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "clipwatch.v1.Control"

// Monitor is the part of *monitor.Controller the service drives.
type Monitor interface {
	Enable()
	Disable()
	Toggle()
	State() monitor.State
	Subscribe() *eventbus.Receiver[monitor.Event]
}

// History is the part of *recorder.Recorder the service drives.
type History interface {
	List(ctx context.Context, limit int) ([]recorder.Entry, error)
	Clear(ctx context.Context) error
}

// Service implements clipwatch.v1.Control.
type Service struct {
	mon  Monitor
	hist History
}

// New returns a Service. hist may be nil when history is disabled; the
// history methods then fail with codes.Unavailable.
func New(mon Monitor, hist History) *Service {
	return &Service{mon: mon, hist: hist}
}

// Register adds the service to gs.
func (s *Service) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Service) State(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(s.mon.State().String()), nil
}

func (s *Service) Enable(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	s.mon.Enable()
	return wrapperspb.String(s.mon.State().String()), nil
}

func (s *Service) Disable(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	s.mon.Disable()
	return wrapperspb.String(s.mon.State().String()), nil
}

func (s *Service) Toggle(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	s.mon.Toggle()
	return wrapperspb.String(s.mon.State().String()), nil
}

func (s *Service) ListHistory(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.ListValue, error) {
	if s.hist == nil {
		return nil, status.Error(codes.Unavailable, "history is disabled")
	}
	entries, err := s.hist.List(ctx, int(req.GetValue()))
	if err != nil {
		slog.Error("listing history failed", "err", err)
		return nil, status.Errorf(codes.Internal, "list history: %v", err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(entries))}
	for _, e := range entries {
		out.Values = append(out.Values, structpb.NewStructValue(entryStruct(e)))
	}
	return out, nil
}

func (s *Service) ClearHistory(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if s.hist == nil {
		return nil, status.Error(codes.Unavailable, "history is disabled")
	}
	if err := s.hist.Clear(ctx); err != nil {
		return nil, status.Errorf(codes.Internal, "clear history: %v", err)
	}
	return &emptypb.Empty{}, nil
}

// Watch streams selection changes. A non-empty request value restricts the
// stream to that selection.
func (s *Service) Watch(req *wrapperspb.StringValue, stream grpc.ServerStream) error {
	var only *selection.Kind
	if v := req.GetValue(); v != "" {
		k, err := selection.ParseKind(v)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		only = &k
	}

	rx := s.mon.Subscribe()
	defer rx.Close()
	ctx := stream.Context()
	slog.Info("watch started", "selection", req.GetValue())
	defer slog.Info("watch ended", "selection", req.GetValue())

	for {
		ev, err := rx.Recv(ctx)
		var lagged *eventbus.LaggedError
		switch {
		case errors.As(err, &lagged):
			slog.Warn("watch client lagging", "missed", lagged.Missed)
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, eventbus.ErrClosed):
			return status.Error(codes.Unavailable, "monitor stopped")
		case err != nil:
			return err
		}
		if only != nil && ev.Selection != *only {
			continue
		}
		if err := stream.SendMsg(eventStruct(ev)); err != nil {
			return err
		}
	}
}

func eventStruct(ev monitor.Event) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"selection": structpb.NewStringValue(ev.Selection.String()),
		"content":   structpb.NewStringValue(ev.Content),
	}}
}

func entryStruct(e recorder.Entry) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":          structpb.NewStringValue(e.ID.String()),
		"selection":   structpb.NewStringValue(e.Selection.String()),
		"content":     structpb.NewStringValue(e.Content),
		"captured_at": structpb.NewStringValue(e.CapturedAt.Format(time.RFC3339Nano)),
	}}
}

// controlServer is the handler type recorded in the service descriptor.
type controlServer interface {
	State(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Enable(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Disable(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	Toggle(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	ListHistory(context.Context, *wrapperspb.Int64Value) (*structpb.ListValue, error)
	ClearHistory(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Watch(*wrapperspb.StringValue, grpc.ServerStream) error
}

func unary[Req proto.Message, Resp proto.Message](
	name string,
	newReq func() Req,
	call func(controlServer, context.Context, Req) (Resp, error),
) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(controlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(controlServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("State", newEmpty, controlServer.State),
		unary("Enable", newEmpty, controlServer.Enable),
		unary("Disable", newEmpty, controlServer.Disable),
		unary("Toggle", newEmpty, controlServer.Toggle),
		unary("ListHistory", func() *wrapperspb.Int64Value { return new(wrapperspb.Int64Value) }, controlServer.ListHistory),
		unary("ClearHistory", newEmpty, controlServer.ClearHistory),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Watch",
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(wrapperspb.StringValue)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return srv.(controlServer).Watch(in, stream)
		},
	}},
	Metadata: "clipwatch/v1/control.proto",
}
