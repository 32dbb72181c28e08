package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/wfpaisa/plane-bookmarks/internal/api/http"
	"github.com/wfpaisa/plane-bookmarks/internal/api/middleware"
	"github.com/wfpaisa/plane-bookmarks/internal/api/ws"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/config"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/monitoring"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/storage"
)

// Server wires storage, the coordinator and both transports together.
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	store   *storage.FileStore
	coord   *coordinator.Coordinator
	hub     *ws.Hub
	router  *gin.Engine
	handler http.Handler
}

// NewServer creates a new server instance. Nothing is loaded or listened on
// until Serve.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	logger.Info("Initializing bookmark server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("data_file", cfg.Storage.DataFile),
		zap.Bool("watch", cfg.Storage.Watch),
		zap.Bool("reload_on_external_change", cfg.Storage.ReloadOnExternalChange),
	)

	metrics := monitoring.NewMetrics()
	store := storage.NewFileStore(cfg.Storage.DataFile, logger)

	var seed coordinator.SeedFunc
	if cfg.Storage.SeedFile != "" {
		path := cfg.Storage.SeedFile
		seed = func() (tree.Forest, error) {
			f, err := storage.LoadSeed(path)
			if errors.Is(err, os.ErrNotExist) {
				logger.Warn("Seed file not found, starting empty", zap.String("seed_file", path))
				return nil, nil
			}
			return f, err
		}
	}

	coord := coordinator.New(coordinator.Options{
		Store:   store,
		Seed:    seed,
		Logger:  logger,
		Metrics: metrics,
	})

	hub := ws.NewHub(coord, ws.Config{
		WriteTimeout:    cfg.WS.WriteTimeout,
		PongWait:        cfg.WS.PongWait,
		MaxMessageBytes: cfg.WS.MaxMessageBytes,
		ReplyBuffer:     cfg.WS.ReplyBuffer,
	}, logger, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

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
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	handlers := httpapi.NewHandlers(coord, hub, logger)

	// Register routes; /api mirrors the root for the web frontend
	router.GET("/health", handlers.Health)
	handlers.Register(router)
	handlers.Register(router.Group("/api"))

	// WebSocket
	router.GET("/ws", hub.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Upgrades bypass compression; the gzip writer cannot be hijacked.
	mux := http.NewServeMux()
	mux.Handle("/ws", router)
	mux.Handle("/", gzhttp.GzipHandler(router))

	logger.Info("Server initialized successfully")

	return &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		store:   store,
		coord:   coord,
		hub:     hub,
		router:  router,
		handler: mux,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Coordinator exposes the coordinator for embedding and tests.
func (s *Server) Coordinator() *coordinator.Coordinator {
	return s.coord
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve loads the forest, then serves HTTP and WebSocket traffic on ln,
// broadcasting and watching the data file, until ctx ends or a component
// fails. Shutdown drains HTTP first, then stops the coordinator.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.coord.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start coordinator: %w", err)
	}

	if limit := s.config.Server.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.hub.Run(gctx)
	})

	if s.config.Storage.Watch {
		watcher, err := storage.NewWatcher(s.store, s.config.Storage.WatchDebounce, s.logger)
		if err != nil {
			s.logger.Warn("Data file watcher disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				return watcher.Run(gctx)
			})
			g.Go(func() error {
				return s.coord.Follow(gctx, watcher.Changes(), s.config.Storage.ReloadOnExternalChange)
			})
		}
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are closed by the hub, not by Shutdown.
		err := srv.Shutdown(shutdownCtx)
		if stopErr := s.coord.Stop(shutdownCtx); stopErr != nil && err == nil {
			err = stopErr
		}
		return err
	})

	err := g.Wait()
	_ = s.logger.Sync()
	return err
}
