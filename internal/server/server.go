package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// NewRouter builds the gin engine with the API mounted behind the standard
// middleware chain.
func NewRouter(h *Handlers, apiKey string, logger hclog.Logger) *gin.Engine {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(logger.Named("access")))
	router.Use(CORS())
	router.Use(APIKeyAuth(apiKey))

	h.RegisterRoutes(router)
	return router
}

// Server runs the HTTP listener.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          hclog.Logger
}

// NewServer wraps handler in an http.Server listening on addr. No write
// timeout is set since clip streams can run for minutes.
func NewServer(addr string, handler http.Handler, readTimeout, shutdownTimeout time.Duration, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger.Named("server"),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
