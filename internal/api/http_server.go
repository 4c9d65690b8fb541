package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"tripline/internal/config"
	"tripline/internal/domain"
	"tripline/internal/export"
	"tripline/internal/metrics"
)

// HTTPServer exposes the collaboration API: auth, trips, modules, section
// locks and invites. Callers authenticate once and then identify themselves
// with the X-User-ID header; every trip operation runs through that user's
// sync session.
type HTTPServer struct {
	cfg      config.APIConfig
	sessions *SessionManager
	users    domain.UserService
	invites  domain.InviteService
	exporter *export.ExcelExporter
	auth     *HTTPAuth
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, sessions *SessionManager, users domain.UserService, invites domain.InviteService, exporter *export.ExcelExporter) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:      cfg,
		sessions: sessions,
		users:    users,
		invites:  invites,
		exporter: exporter,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/auth/", srv.handleAuth)
	mux.HandleFunc("/api/v1/trips", srv.handleTrips)
	mux.HandleFunc("/api/v1/trips/", srv.handleTripSubtree)
	mux.HandleFunc("/api/v1/invites/join", srv.handleJoinTrip)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler exposes the full middleware chain for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userSession resolves the caller's identity and sync session. A missing or
// unknown X-User-ID header fails the request.
func (s *HTTPServer) userSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", false
	}
	if _, err := s.users.GetUser(r.Context(), userID); err != nil {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return "", false
	}
	return userID, true
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		metrics.IncHTTP(endpointLabel(r.URL.Path))
		log.Printf("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, dur)
	})
}

// endpointLabel collapses paths with ids into a bounded label set.
func endpointLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth/"):
		return "auth"
	case strings.Contains(path, "/locks"):
		return "locks"
	case strings.Contains(path, "/modules"):
		return "modules"
	case strings.Contains(path, "/invites") || path == "/api/v1/invites/join":
		return "invites"
	case strings.Contains(path, "/export"):
		return "export"
	case strings.HasPrefix(path, "/api/v1/trips"):
		return "trips"
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
