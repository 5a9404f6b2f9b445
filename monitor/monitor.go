// Package monitor serves pipeline statistics over HTTP.
//
//	GET /stats     one JSON snapshot
//	GET /stats/ws  a websocket pushing a snapshot every interval
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultInterval is the websocket push interval.
const DefaultInterval = 500 * time.Millisecond

const writeWait = 2 * time.Second

// Source produces statistics snapshots. Snapshot must be safe to call from
// any goroutine and return a JSON-encodable value.
type Source interface {
	Snapshot() any
}

// SourceFunc adapts a function to Source.
type SourceFunc func() any

// Snapshot calls fn.
func (fn SourceFunc) Snapshot() any { return fn() }

// Option configures a Server.
type Option func(*Server)

// WithInterval sets the websocket push interval.
func WithInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server publishes snapshots of a Source.
type Server struct {
	src      Source
	interval time.Duration
	log      *slog.Logger
	upgrader websocket.Upgrader

	clients atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// New creates a server for src.
func New(src Source, opts ...Option) *Server {
	s := &Server{
		src:      src,
		interval: DefaultInterval,
		log:      slog.New(slog.DiscardHandler),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving both endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", s.serveStats)
	mux.HandleFunc("GET /stats/ws", s.serveWS)
	return mux
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("monitor: listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.src.Snapshot()); err != nil {
		s.log.Warn("monitor: encode snapshot", "err", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("monitor: websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)
	addr := conn.RemoteAddr().String()
	s.log.Debug("monitor: client connected", "remote", addr)

	// The reader only drains control frames and notices disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.src.Snapshot()); err != nil {
			s.log.Debug("monitor: client write failed", "remote", addr, "err", err)
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			s.log.Debug("monitor: client disconnected", "remote", addr)
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-r.Context().Done():
			return
		}
	}
}
