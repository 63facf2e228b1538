package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/convopulse/convopulse/internal/archive"
	"github.com/convopulse/convopulse/internal/config"
	"github.com/convopulse/convopulse/internal/handler"
	"github.com/convopulse/convopulse/internal/metrics"
	"github.com/convopulse/convopulse/internal/observability"
	"github.com/convopulse/convopulse/internal/response"
	"github.com/convopulse/convopulse/internal/store"
)

// Server holds the Echo app and dependencies.
type Server struct {
	Echo    *echo.Echo
	Config  *config.Config
	obs     *observability.Observability
	batcher *archive.Batcher // optional; stopped on Shutdown
}

// New builds the Echo server and registers routes. The store and the
// observability context are constructed by the caller; the metrics
// engine is a pure read layer over the store.
func New(cfg *config.Config, obs *observability.Observability, st store.EventStore) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.Server.CORSAllowedOrigins,
		}))
	}
	e.Use(TraceMiddleware(obs.Tracer))

	// Optional archival: missing or incomplete config means off.
	var batcher *archive.Batcher
	if cfg.Archive != nil {
		log := obs.Log()
		s3Client, err := archive.NewS3Client(cfg.Archive)
		if err != nil {
			log.Warn().Err(err).Msg("archive client unavailable, archival disabled")
		}
		if s3Client != nil {
			if err := s3Client.EnsureBucket(context.Background()); err != nil {
				log.Warn().Err(err).Msg("archive ensure bucket, uploads may fail")
			}
			bc := archive.DefaultBatcherConfig()
			if cfg.Archive.MaxBatchSize > 0 {
				bc.MaxBatchSize = cfg.Archive.MaxBatchSize
			}
			if cfg.Archive.FlushInterval != "" {
				if d, err := time.ParseDuration(cfg.Archive.FlushInterval); err == nil && d > 0 {
					bc.FlushInterval = d
				}
			}
			batcher = archive.NewBatcher(bc, s3Client, "events", obs.Log())
			log.Info().Int("batch", bc.MaxBatchSize).Dur("interval", bc.FlushInterval).Msg("event archival enabled")
		}
	}

	engine := metrics.NewEngine(st)
	messageHandler := &handler.MessageHandler{
		Store:   st,
		Archive: batcher,
		Logger:  obs.Logger,
	}
	metricsHandler := &handler.MetricsHandler{Engine: engine}

	// Ingestion interface
	e.POST("/messages", messageHandler.Create)
	e.GET("/messages", messageHandler.List)

	// Query interface
	e.GET("/sessions/:id/stats", metricsHandler.SessionStats)
	e.GET("/metrics/active-users", metricsHandler.ActiveUsers)
	e.GET("/metrics/retention", metricsHandler.Retention)
	e.GET("/metrics/engagement", metricsHandler.Engagement)
	e.GET("/metrics/stickiness", metricsHandler.Stickiness)

	e.GET("/healthz", func(c echo.Context) error {
		return response.OK(c, map[string]any{"status": "ok"}, "")
	})

	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	return &Server{Echo: e, Config: cfg, obs: obs, batcher: batcher}
}

// Start starts the HTTP server. Blocks until the context is cancelled
// or the server fails. On context cancel, Shutdown is called so the
// batcher flushes remaining events.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	return s.Echo.Start(":" + s.Config.Server.Port)
}

// Shutdown gracefully stops the server and flushes the archive batcher.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.batcher != nil {
		s.batcher.Stop()
	}
	return s.Echo.Shutdown(ctx)
}
