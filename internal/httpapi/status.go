package httpapi

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/m-aliabbas/whisper-at-server/internal/dispatch"
	"github.com/m-aliabbas/whisper-at-server/internal/journal"
	"github.com/m-aliabbas/whisper-at-server/internal/logging"
)

// StatusResponse aggregates daemon state for operators.
type StatusResponse struct {
	Ready    bool            `json:"ready"`
	Hostname string          `json:"hostname"`
	Model    string          `json:"model"`
	Queue    dispatch.Stats  `json:"queue"`
	Jobs     journal.Summary `json:"jobs"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hostname, _ := os.Hostname()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Welcome to the Whisper-AT transcription service. POST audio to /transcribe/ to begin.",
		"hostname": hostname,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.state.Ready() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hostname, _ := os.Hostname()
	payload := StatusResponse{
		Ready:    s.state.Ready(),
		Hostname: hostname,
		Model:    s.cfg.Engine.Model,
		Queue:    s.dispatcher.Snapshot(),
	}
	if s.store != nil {
		summary, err := s.store.Summarize(r.Context())
		if err != nil {
			s.logger.Warn("failed to summarize journal", logging.Error(err))
		} else {
			payload.Jobs = summary
		}
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"jobs": []*journal.Entry{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": entries})
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	entry, err := s.store.GetByID(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}
