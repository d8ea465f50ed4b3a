package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tubeinsight/dashboard/internal/config"
	"tubeinsight/dashboard/internal/handlers"
	"tubeinsight/dashboard/internal/metrics"
	"tubeinsight/dashboard/internal/middleware"
	"tubeinsight/dashboard/internal/web"
)

type HTTPServer struct {
	engine  *gin.Engine
	server  *http.Server
	metrics *gin.Engine
	private *http.Server
	log     zerolog.Logger
	cfg     *config.AppConfig
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, m *metrics.Metrics, handlerSet handlers.HandlerSet) (*HTTPServer, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true
	engine.RedirectFixedPath = true
	engine.SetHTMLTemplate(tmpl)

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowCORSOrigins),
		m.Instrument(),
		middleware.SameOrigin(cfg.PublicURL),
	)

	engine.NoRoute(func(c *gin.Context) {
		c.HTML(http.StatusNotFound, web.NotFoundPage, nil)
	})
	handlerSet.Register(&engine.RouterGroup)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Metrics stay off the public engine and listen on their own address.
	metricsEngine := gin.New()
	metricsEngine.Use(middleware.Recovery(log))
	metricsEngine.GET("/metrics", gin.WrapH(m.Handler()))

	var private *http.Server
	if cfg.HTTP.MetricsAddr != "" {
		private = &http.Server{
			Addr:        cfg.HTTP.MetricsAddr,
			Handler:     metricsEngine,
			ReadTimeout: cfg.HTTP.ReadTimeout,
			IdleTimeout: cfg.HTTP.IdleTimeout,
		}
	}

	return &HTTPServer{
		engine:  engine,
		server:  srv,
		metrics: metricsEngine,
		private: private,
		log:     log,
		cfg:     cfg,
	}, nil
}

// Handler exposes the configured engine, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// MetricsHandler exposes the private metrics engine.
func (s *HTTPServer) MetricsHandler() http.Handler {
	return s.metrics
}

func (s *HTTPServer) Start() error {
	if s.private != nil {
		go func() {
			s.log.Info().Str("addr", s.private.Addr).Msg("metrics server starting")
			if err := s.private.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	s.log.Info().
		Str("addr", s.server.Addr).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	if s.private != nil {
		if err := s.private.Shutdown(ctx); err != nil {
			s.log.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
	return s.server.Shutdown(ctx)
}
