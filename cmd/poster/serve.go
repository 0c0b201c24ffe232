package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/internal/process"
	"github.com/root4loot/poster/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the poster API",
		Long: `Serve the poster API.

Endpoints:
  POST /generate        {"text": "..."} -> {"imageBase64": "..."}
  GET  /generate?text=  PNG download
  GET  /render?text=    poster page the browser captures
  GET  /healthz         liveness`,
		Example: `  poster serve
  poster serve --addr :8080 --env constrained --browser-bin /opt/chromium/chrome`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd.Flags(), os.Getenv, os.Environ())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			capturer, err := newCapturer(cfg)
			if err != nil {
				return err
			}

			if _, err := capturer.Strategy().LaunchSpec(); err != nil {
				log.Warnf("Captures will fail until a browser is available: %v", err)
			}
			if process.StartReaper() {
				log.Infof("Running as PID 1, reaping orphaned browser processes")
			}
			if !cfg.Debug {
				gin.SetMode(gin.ReleaseMode)
			}

			log.Infof("Using %s strategy with %s driver (timeout %v, render at %s)",
				capturer.Strategy().Name(), capturer.Driver().Name(), cfg.Browser.Timeout, cfg.RenderBaseURL())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(capturer, server.Config{
				Addr:            cfg.Server.Addr,
				RateLimit:       cfg.Server.RateLimit,
				RateBurst:       cfg.Server.RateBurst,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Strategy:        capturer.Strategy().Name(),
				Driver:          capturer.Driver().Name(),
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":3000", "listen address (env: POSTER_ADDR)")

	return cmd
}
