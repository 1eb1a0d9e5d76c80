package rpcservice

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipwatch/internal/ipc"
	"go.klb.dev/clipwatch/internal/monitor"
	"go.klb.dev/clipwatch/internal/recorder"
	"go.klb.dev/clipwatch/internal/selection"
)

// Dial returns a connection to the daemon listening on the IPC endpoint at
// path. No auth is needed; the socket is owner-restricted by the OS.
func Dial(path string) (*grpc.ClientConn, error) {
	return grpc.NewClient(
		"passthrough:///clipwatch",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ipc.Dial(ctx, path)
		}),
	)
}

// Client calls clipwatch.v1.Control.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) stateCall(ctx context.Context, method string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, &emptypb.Empty{}, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) State(ctx context.Context) (string, error)   { return c.stateCall(ctx, "State") }
func (c *Client) Enable(ctx context.Context) (string, error)  { return c.stateCall(ctx, "Enable") }
func (c *Client) Disable(ctx context.Context) (string, error) { return c.stateCall(ctx, "Disable") }
func (c *Client) Toggle(ctx context.Context) (string, error)  { return c.stateCall(ctx, "Toggle") }

// ListHistory returns the newest limit entries, oldest first. limit <= 0
// returns everything.
func (c *Client) ListHistory(ctx context.Context, limit int) ([]recorder.Entry, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListHistory", wrapperspb.Int64(int64(limit)), out); err != nil {
		return nil, err
	}
	entries := make([]recorder.Entry, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		e, err := parseEntry(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/ClearHistory", &emptypb.Empty{}, new(emptypb.Empty))
}

// WatchStream yields events from a Watch call.
type WatchStream struct {
	stream grpc.ClientStream
}

// Watch opens an event stream. only restricts it to one selection; "" means
// both.
func (c *Client) Watch(ctx context.Context, only string) (*WatchStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(wrapperspb.String(only)); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchStream{stream: stream}, nil
}

// Recv blocks for the next event.
func (w *WatchStream) Recv() (monitor.Event, error) {
	msg := new(structpb.Struct)
	if err := w.stream.RecvMsg(msg); err != nil {
		return monitor.Event{}, err
	}
	kind, err := selection.ParseKind(msg.GetFields()["selection"].GetStringValue())
	if err != nil {
		return monitor.Event{}, err
	}
	return monitor.Event{Selection: kind, Content: msg.GetFields()["content"].GetStringValue()}, nil
}

func parseEntry(s *structpb.Struct) (recorder.Entry, error) {
	f := s.GetFields()
	id, err := uuid.Parse(f["id"].GetStringValue())
	if err != nil {
		return recorder.Entry{}, fmt.Errorf("entry id: %w", err)
	}
	kind, err := selection.ParseKind(f["selection"].GetStringValue())
	if err != nil {
		return recorder.Entry{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, f["captured_at"].GetStringValue())
	if err != nil {
		return recorder.Entry{}, fmt.Errorf("entry time: %w", err)
	}
	return recorder.Entry{
		ID:         id,
		Selection:  kind,
		Content:    f["content"].GetStringValue(),
		CapturedAt: at,
	}, nil
}
