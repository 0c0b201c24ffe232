package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/internal/config"
	"github.com/root4loot/poster/internal/server"
	"github.com/root4loot/poster/pkg/poster"
	"github.com/spf13/cobra"
)

func newCaptureCmd(g *globalFlags) *cobra.Command {
	var text, outfolder string

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Render one poster to a PNG file",
		Example: `  poster capture -t "Hello World"
  poster capture -t "Launch day" -o ./out --driver chromedp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd.Flags(), os.Getenv, os.Environ())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := captureLocal(ctx, cfg, text)
			if err != nil {
				return err
			}

			fn, err := result.SaveToFolder(outfolder)
			if err != nil {
				return fmt.Errorf("saving poster: %w", err)
			}

			log.Resultf("Poster saved to %s (%v)", fn, result.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "poster text (empty renders a blank poster)")
	cmd.Flags().StringVarP(&outfolder, "outfolder", "o", "./posters", "save posters to folder")

	return cmd
}

// captureLocal serves the render page on a loopback port for the duration of
// a single capture.
func captureLocal(ctx context.Context, cfg config.Config, text string) (*poster.Result, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for render page: %w", err)
	}

	cfg.Server.BaseURL = "http://" + ln.Addr().String()

	capturer, err := newCapturer(cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	srv := server.New(capturer, server.Config{ShutdownTimeout: time.Second})

	srvCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(srvCtx, ln)
	}()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			log.Debugf("Render server: %v", err)
		}
	}()

	return capturer.Capture(ctx, text)
}
