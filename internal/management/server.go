// ABOUTME: Management API for health, config, message-log browsing, and metrics
// ABOUTME: Also mounts the WebSocket progress feed

package management

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/harper/codeql-relay/internal/config"
	"github.com/harper/codeql-relay/internal/db"
	"github.com/harper/codeql-relay/internal/logger"
	"github.com/harper/codeql-relay/internal/metrics"
	"github.com/harper/codeql-relay/internal/queryserver"
)

// Engine is the view of the query-server client the API reports on.
type Engine interface {
	InstanceID() string
	CodeQLPath() string
	Running() bool
	StartedAt() time.Time
	Pending() int
	PendingRequests() []queryserver.PendingInfo
	FramingErrors() int64
}

type Server struct {
	config  *config.Config
	engine  Engine
	db      *db.DB
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewServer wires the routes. database, m, and feed may be nil; the
// corresponding endpoints then report unavailability.
func NewServer(cfg *config.Config, engine Engine, database *db.DB, m *metrics.Metrics, feed http.Handler) *Server {
	s := &Server{
		config:  cfg,
		engine:  engine,
		db:      database,
		metrics: m,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/config", s.handleConfig)
	s.mux.HandleFunc("GET /api/pending", s.handlePending)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("GET /api/sessions/{id}/messages", s.handleSessionMessages)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}
	if feed != nil {
		s.mux.Handle("/ws/progress", feed)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("management response write failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.engine.Running()
	health := map[string]interface{}{
		"status":           "healthy",
		"engine_running":   running,
		"instance_id":      s.engine.InstanceID(),
		"codeql_path":      s.engine.CodeQLPath(),
		"mode":             s.config.Engine.Mode,
		"pending_requests": s.engine.Pending(),
		"framing_errors":   s.engine.FramingErrors(),
	}
	if started := s.engine.StartedAt(); !started.IsZero() {
		health["started_at"] = started.UTC().Format(time.RFC3339)
		health["uptime_seconds"] = int64(time.Since(started).Seconds())
	}

	status := http.StatusOK
	if !running {
		health["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	type pendingResponse struct {
		ID         int64   `json:"id"`
		Method     string  `json:"method"`
		AgeSeconds float64 `json:"age_seconds"`
	}
	pending := s.engine.PendingRequests()
	out := make([]pendingResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, pendingResponse{ID: p.ID, Method: p.Method, AgeSeconds: time.Since(p.Sent).Seconds()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "message log disabled")
		return
	}

	// Enable CORS for web interface
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sessions, err := s.db.GetAllSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get sessions")
		return
	}

	type sessionResponse struct {
		db.Session
		IsActive bool `json:"is_active"`
	}
	response := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		response = append(response, sessionResponse{Session: sess, IsActive: sess.StoppedAt == nil})
	}
	writeJSON(w, http.StatusOK, response)
}

// handleSessionMessages lists a session's frames, or with ?request_id=N the
// trace of one request.
func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "message log disabled")
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sessionID := r.PathValue("id")
	var (
		messages []db.Message
		err      error
	)
	if raw := r.URL.Query().Get("request_id"); raw != "" {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "request_id must be an integer")
			return
		}
		messages, err = s.db.GetRequestTrace(sessionID, id)
	} else {
		messages, err = s.db.GetSessionMessages(sessionID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	if messages == nil {
		messages = []db.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}
