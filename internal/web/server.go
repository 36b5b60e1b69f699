package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/roofmanager/fieldsync/internal/domain"
	"github.com/roofmanager/fieldsync/internal/service"
)

// Syncer is the subset of syncer.Syncer the API exposes.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncRun, error)
	Runs(ctx context.Context, limit int) ([]*domain.SyncRun, error)
}

// TokenSetter installs the bearer token obtained at login.
type TokenSetter interface {
	Set(token string)
}

type Server struct {
	service *service.FieldService
	syncer  Syncer
	tokens  TokenSetter
	mux     *http.ServeMux
	logger  *slog.Logger
}

// NewServer builds the API. syncer and tokens may be nil when no backend is
// configured; the sync and session routes then answer 503.
func NewServer(svc *service.FieldService, syncer Syncer, tokens TokenSetter, logger *slog.Logger) *Server {
	s := &Server{
		service: svc,
		syncer:  syncer,
		tokens:  tokens,
		mux:     http.NewServeMux(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /jobs", s.handleListJobs)
	s.mux.HandleFunc("PUT /jobs", s.handleReplaceJobs)
	s.mux.HandleFunc("POST /jobs", s.handleAddJob)
	s.mux.HandleFunc("GET /jobs/selected", s.handleSelectedJob)
	s.mux.HandleFunc("DELETE /jobs/selected", s.handleClearSelection)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("PATCH /jobs/{id}", s.handleUpdateJob)
	s.mux.HandleFunc("POST /jobs/{id}/select", s.handleSelectJob)

	s.mux.HandleFunc("POST /jobs/{id}/photos", s.handleUploadPhoto)
	s.mux.HandleFunc("GET /photos", s.handleListPhotos)
	s.mux.HandleFunc("GET /photos/{id}/image", s.handleGetPhoto)
	s.mux.HandleFunc("POST /photos/{id}/synced", s.handleMarkPhotoSynced)
	s.mux.HandleFunc("DELETE /photos/{id}", s.handleDeletePhoto)

	s.mux.HandleFunc("POST /jobs/{id}/checkins", s.handleCheckIn)
	s.mux.HandleFunc("GET /jobs/{id}/checkins/today", s.handleCheckedInToday)
	s.mux.HandleFunc("GET /checkins", s.handleListCheckIns)
	s.mux.HandleFunc("POST /checkins/{id}/synced", s.handleMarkCheckInSynced)
	s.mux.HandleFunc("GET /geo/options", s.handleGeoOptions)

	s.mux.HandleFunc("POST /jobs/{id}/timer", s.handleStartTimer)
	s.mux.HandleFunc("DELETE /timer", s.handleStopTimer)
	s.mux.HandleFunc("GET /timer", s.handleGetTimer)
	s.mux.HandleFunc("GET /timelogs", s.handleListTimeLogs)
	s.mux.HandleFunc("POST /timelogs/synced", s.handleMarkTimeLogsSynced)

	s.mux.HandleFunc("GET /status", s.handleGetStatus)
	s.mux.HandleFunc("PUT /status", s.handleSetStatus)
	s.mux.HandleFunc("POST /sync", s.handleSync)
	s.mux.HandleFunc("GET /sync/runs", s.handleListSyncRuns)
	s.mux.HandleFunc("PUT /session/token", s.handleSetToken)
	s.mux.HandleFunc("DELETE /cache", s.handleClearCache)
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
