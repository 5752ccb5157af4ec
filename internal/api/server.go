// Package api exposes agentmem's programmatic API (internal/engine) over
// a thin gin-gonic REST surface, for hosts that prefer HTTP to linking the
// Go package directly. It is explicitly non-core: every handler is a
// direct translation of an internal/engine.Engine method call.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/ratelimit"
	"github.com/agentmem/agentmem/pkg/config"
)

// Server is the REST API server.
type Server struct {
	router     *gin.Engine
	engine     *engine.Engine
	config     *config.Config
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds a Server wrapping eng. Routes are registered immediately;
// call Start or StartWithContext to listen.
func NewServer(eng *engine.Engine, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		log.Debug("enabling CORS")
		corsConfig := cors.Config{
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
			ExposeHeaders: []string{"Content-Length", "Retry-After"},
			MaxAge:        12 * time.Hour,
		}

		switch {
		case len(cfg.RestAPI.AllowOrigins) > 0:
			corsConfig.AllowOrigins = cfg.RestAPI.AllowOrigins
		case cfg.RestAPI.APIKey != "":
			corsConfig.AllowOrigins = []string{
				"http://localhost:*",
				"http://127.0.0.1:*",
				"https://localhost:*",
				"https://127.0.0.1:*",
			}
			corsConfig.AllowWildcard = true
		default:
			corsConfig.AllowAllOrigins = true
		}

		router.Use(cors.New(corsConfig))
	}

	if cfg.RestAPI.APIKey != "" {
		log.Info("API key authentication enabled")
		router.Use(APIKeyAuthMiddleware(cfg.RestAPI.APIKey))
	}

	if cfg.RestAPI.RateLimit.Enabled {
		log.Info("rate limiting enabled")
		limiter := ratelimit.NewLimiter(&ratelimit.Config{
			Enabled: true,
			Global: ratelimit.LimitConfig{
				RequestsPerSecond: cfg.RestAPI.RateLimit.RequestsPerSecond,
				BurstSize:         cfg.RestAPI.RateLimit.BurstSize,
			},
		})
		router.Use(RateLimitMiddleware(limiter))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	s := &Server{
		router: router,
		engine: eng,
		config: cfg,
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.POST("/session/start", s.sessionStart)
		v1.POST("/session/end", s.sessionEnd)

		v1.POST("/ingest", s.ingest)
		v1.POST("/checkpoint", s.checkpoint)

		v1.GET("/search", s.search)
		v1.POST("/pack", s.pack)
		v1.POST("/disclose", s.disclose)

		v1.POST("/objects", s.addObject)
		v1.GET("/objects/:id/verify", s.verifyObject)
		v1.POST("/objects/:id/verify", s.verifyObject)
		v1.POST("/objects/:id/retire", s.retireObject)
		v1.POST("/objects/:id/supersede", s.supersedeObject)

		v1.GET("/stats", s.stats)
		v1.GET("/context-usage", s.contextUsage)
		v1.GET("/heatmap", s.heatmap)
	}
}

func (s *Server) health(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "ok"})
}

// Start starts the HTTP server, blocking until it exits or errors.
func (s *Server) Start() error {
	addr, err := s.listenAddr()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithContext starts the HTTP server with graceful shutdown, blocking
// until ctx is cancelled or the server errors.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	addr, err := s.listenAddr()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("server shutdown error", "error", err)
		return err
	}
	s.log.Info("REST API server stopped")
	return nil
}

// Router returns the underlying gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) listenAddr() (string, error) {
	port := s.config.RestAPI.Port
	if s.config.RestAPI.AutoPort {
		available, err := findAvailablePort(port)
		if err != nil {
			s.log.Error("failed to find available port", "error", err, "start_port", port)
			return "", fmt.Errorf("failed to find available port: %w", err)
		}
		port = available
	}
	return fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port), nil
}

func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}
