package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/infra/logging"
	"github.com/sanskarpan/Latexy/internal/infra/metrics"
	"github.com/sanskarpan/Latexy/internal/infra/realtime"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

const defaultBodyLimit = 2 << 20

// Server exposes the job API, the realtime socket and the ops endpoints.
type Server struct {
	submit    usecase.JobSubmitUseCase
	query     usecase.JobQueryUseCase
	hub       *realtime.Hub
	auth      *AuthManager
	up        *websocket.Upgrader
	cfg       config.HTTPConfig
	bodyLimit int64
	log       *zerolog.Logger
}

type Option func(*Server)

func WithBodyLimit(n int64) Option { return func(s *Server) { s.bodyLimit = n } }

func NewServer(
	submit usecase.JobSubmitUseCase,
	query usecase.JobQueryUseCase,
	hub *realtime.Hub,
	auth *AuthManager,
	cfg config.HTTPConfig,
	logger *zerolog.Logger,
	opts ...Option,
) *Server {
	compLog := logger.With().Str("component", "WebServer").Logger()
	s := &Server{
		submit:    submit,
		query:     query,
		hub:       hub,
		auth:      auth,
		up:        realtime.NewUpgrader(cfg.AllowedOrigins),
		cfg:       cfg,
		bodyLimit: defaultBodyLimit,
		log:       &compLog,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) logger(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), s.log)
}

// Routes builds the router. The websocket route is kept out of the request
// timeout since the connection outlives any single request budget.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/jobs", func(r chi.Router) {
		r.Use(Identify(s.auth))
		r.Get("/ws/{connection_id}", s.handleSocket)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.cfg.RequestTimeout))
			r.Post("/submit", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Get("/system/health", s.handleHealth)
			r.Get("/{job_id}/status", s.handleStatus)
			r.Get("/{job_id}/result", s.handleResult)
			r.Get("/{job_id}/download", s.handleDownload)
			r.Get("/{job_id}/logs", s.handleLogs)
			r.Delete("/{job_id}", s.handleCancel)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin())
				r.Get("/system/usage", s.handleUsage)
				r.Post("/system/cleanup", s.handleCleanup)
				r.Post("/system/announce", s.handleAnnounce)
				r.Post("/notify", s.handleNotify)
			})
		})
	})
	return r
}

// Run serves on cfg.Addr until ctx ends, then drains within ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}
