package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/m-aliabbas/whisper-at-server/internal/config"
	"github.com/m-aliabbas/whisper-at-server/internal/dispatch"
	"github.com/m-aliabbas/whisper-at-server/internal/engine"
	"github.com/m-aliabbas/whisper-at-server/internal/journal"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
	"github.com/m-aliabbas/whisper-at-server/internal/media/normalize"
	"github.com/m-aliabbas/whisper-at-server/internal/readiness"
)

// Normalizer prepares uploaded audio for inference.
type Normalizer interface {
	Normalize(ctx context.Context, sourcePath string) (normalize.Result, error)
}

// Dispatcher hands jobs to model instances and reports activity.
type Dispatcher interface {
	Submit(job dispatch.Job) (*dispatch.Pending, error)
	Await(ctx context.Context, p *dispatch.Pending) (engine.Result, error)
	Snapshot() dispatch.Stats
}

// Server is the HTTP front door: the transcription endpoint plus health and
// introspection routes.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	normalizer Normalizer
	dispatcher Dispatcher
	state      *readiness.State
	store      *journal.Store

	listener net.Listener
	server   *http.Server
}

// NewServer wires the front door. The journal store may be nil; the jobs
// routes then report not found.
func NewServer(cfg *config.Config, normalizer Normalizer, dispatcher Dispatcher, state *readiness.State, store *journal.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		logger:     logger.With(logging.FieldComponent, "httpapi"),
		normalizer: normalizer,
		dispatcher: dispatcher,
		state:      state,
		store:      store,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/transcribe/", s.handleTranscribe)
	mux.HandleFunc("/transcribe", s.handleTranscribe)
	token := cfg.Server.APIToken
	mux.HandleFunc("/api/status", authMiddleware(token, s.handleStatus))
	mux.HandleFunc("/api/jobs", authMiddleware(token, s.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, s.handleJobByID))

	s.server = &http.Server{
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the route table, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving on the configured bind address. It returns once the
// listener is established; serving continues until ctx is canceled or Stop
// is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, allowing in-flight requests to drain.
func (s *Server) Stop() {
	timeout := time.Duration(s.cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"detail": message})
}
