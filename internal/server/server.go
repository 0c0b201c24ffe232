// Package server exposes poster capture over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/pkg/poster"
	"github.com/root4loot/poster/pkg/render"
	"golang.org/x/time/rate"
)

// Capturer produces a poster for text. *poster.Capturer satisfies it.
type Capturer interface {
	Capture(ctx context.Context, text string) (*poster.Result, error)
}

// Config controls the HTTP listener.
type Config struct {
	Addr            string
	RateLimit       float64 // Requests per second on /generate (0 = unlimited)
	RateBurst       int
	ShutdownTimeout time.Duration
	Strategy        string // Reported by /healthz
	Driver          string // Reported by /healthz
}

// Server routes generate, render and health requests.
type Server struct {
	capturer Capturer
	config   Config
	engine   *gin.Engine
	now      func() time.Time
}

// New builds the router. The capturer is shared by all requests.
func New(capturer Capturer, config Config) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		capturer: capturer,
		config:   config,
		engine:   gin.New(),
		now:      time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(requestID(), accessLog(), recovery())

	generate := s.engine.Group("/generate")
	if s.config.RateLimit > 0 {
		burst := s.config.RateBurst
		if burst < 1 {
			burst = 1
		}
		generate.Use(rateLimit(rate.NewLimiter(rate.Limit(s.config.RateLimit), burst)))
	}
	generate.POST("", s.generateJSON)
	generate.GET("", s.generateDownload)

	s.engine.GET(render.Path, gin.WrapH(render.Handler()))
	s.engine.GET("/healthz", s.healthz)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Handler returns the router for use with httptest or a custom http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe listens on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then drains in-flight
// requests for up to ShutdownTimeout. Connections still open after that are
// closed, which cancels their captures.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Infof("Listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Infof("Shutting down (grace %v)", s.config.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		_ = srv.Close()
	}
	<-errc
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
