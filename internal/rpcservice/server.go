package rpcservice

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Serve runs gRPC and HTTP/1 on ln until ctx is done. Connections are split
// by protocol with cmux.
func Serve(ctx context.Context, ln net.Listener, svc *Service) error {
	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.HTTP1Fast())

	gs := grpc.NewServer()
	svc.Register(gs)
	hs := &http.Server{Handler: svc.HTTPHandler(), ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreClosed(ctx, gs.Serve(grpcL)) })
	g.Go(func() error { return ignoreClosed(ctx, hs.Serve(httpL)) })
	g.Go(func() error { return ignoreClosed(ctx, m.Serve()) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
		gs.Stop()
		m.Close()
		return nil
	})
	return g.Wait()
}

func ignoreClosed(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, cmux.ErrServerClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// HTTPHandler serves /healthz and /state.
func (s *Service) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"state": s.mon.State()}); err != nil {
			slog.Debug("writing state response failed", "err", err)
		}
	})
	return mux
}
