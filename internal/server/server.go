// Package server exposes chat, memory administration and, optionally, the
// primary pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/kernel/chat"
	"github.com/OnslaughtSnail/edgechat/kernel/memory"
	"github.com/OnslaughtSnail/edgechat/kernel/relay"
	"github.com/OnslaughtSnail/edgechat/kernel/session"
)

// ChatService answers one chat request on an event sink.
type ChatService interface {
	Handle(ctx context.Context, req chat.ChatRequest, sink relay.Sink) error
}

// MemoryService is the administrative view of session memory.
type MemoryService interface {
	Get(ctx context.Context, sessionID string) (*session.State, error)
	Clear(ctx context.Context, sessionID string) error
	Dispatch(ctx context.Context, sessionID string, req memory.IntentRequest) (any, error)
}

type Deps struct {
	Chat   ChatService
	Memory MemoryService
	// Workflow, when set, is mounted at /workflow/chat.
	Workflow http.Handler
	Logger   *zap.Logger
	Now      func() time.Time
}

type Server struct {
	deps Deps
	log  *zap.Logger
	mux  *http.ServeMux
	srv  *http.Server
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps, log: deps.Logger.Named("http"), mux: http.NewServeMux()}
	s.routes()
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.log),
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/memory", s.handleMemory)
	s.mux.HandleFunc("/api/memory/{sessionId}", s.handleIntent)
	if s.deps.Workflow != nil {
		s.mux.Handle("/workflow/chat", s.deps.Workflow)
	}
	s.mux.HandleFunc("/", s.handleNotFound)
}

// Handler returns the routed handler wrapped with request ids and access
// logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withAccessLog(s.mux))
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down")
	return s.srv.Shutdown(ctx)
}
