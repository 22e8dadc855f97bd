package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/docviewer/internal/api/http"
	"github.com/GriffinCanCode/docviewer/internal/api/middleware"
	"github.com/GriffinCanCode/docviewer/internal/api/ws"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/config"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/logging"
	"github.com/GriffinCanCode/docviewer/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/docviewer/internal/pipeline"
)

// ShutdownTimeout bounds how long Close waits for in-flight requests
const ShutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)

	logger.Info("Initializing document viewer server",
		zap.String("port", cfg.Server.Port),
		zap.String("origin", cfg.Server.Origin),
	)

	if cfg.Resolver.ProxyFile != "" {
		proxies, err := config.LoadProxyFile(cfg.Resolver.ProxyFile)
		if err != nil {
			return nil, err
		}
		cfg.Resolver.Proxies = proxies
		logger.Info("Loaded proxy list", zap.String("file", cfg.Resolver.ProxyFile), zap.Int("proxies", len(proxies)))
	}

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	p := pipeline.New(cfg, logger, metrics)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	// Register routes
	apihttp.NewHandlers(p).Register(router)
	router.GET("/viewers/:id/events", ws.NewHandler(p.Viewers, metrics, logger).HandleConnection)
	router.GET("/metrics", gin.WrapH(monitoring.Handler(metrics)))

	logger.Info("Server initialized successfully")

	s := &Server{
		router:   router,
		pipeline: p,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}
	s.http = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler: the router behind gzip compression.
// WebSocket upgrades bypass compression since they hijack the connection.
func (s *Server) Handler() http.Handler {
	gz := gzhttp.GzipHandler(s.router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Pipeline returns the wired viewer pipeline
func (s *Server) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// Run starts the HTTP server and blocks until it stops. A server stopped
// by Close returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
	}

	s.pipeline.Close()
	s.logger.Info("Closed all viewers")

	// Sync logger before exit
	_ = s.logger.Sync()

	return err
}
