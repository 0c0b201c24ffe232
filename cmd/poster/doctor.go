package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/root4loot/poster/internal/process"
	"github.com/root4loot/poster/pkg/poster"
	"github.com/spf13/cobra"
)

func newDoctorCmd(g *globalFlags) *cobra.Command {
	var capture bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and browser availability",
		Example: `  poster doctor
  poster doctor --env constrained --browser-bin /opt/chromium/chrome --capture`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, g, capture)
		},
	}

	cmd.Flags().BoolVar(&capture, "capture", false, "also capture a test poster")

	return cmd
}

type doctor struct {
	w      io.Writer
	failed int
}

func (d *doctor) pass(check, detail string) {
	fmt.Fprintf(d.w, "%s  %-12s %s\n", color.GreenString("ok  "), check, detail)
}

func (d *doctor) warn(check, detail string) {
	fmt.Fprintf(d.w, "%s  %-12s %s\n", color.YellowString("warn"), check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.w, "%s  %-12s %s\n", color.RedString("fail"), check, detail)
}

func runDoctor(cmd *cobra.Command, g *globalFlags, capture bool) error {
	d := &doctor{w: cmd.OutOrStdout()}

	cfg, err := g.loadConfig(cmd.Flags(), os.Getenv, os.Environ())
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		d.fail("config", err.Error())
		return fmt.Errorf("1 check failed")
	}
	d.pass("config", fmt.Sprintf("timeout %v, render at %s", cfg.Browser.Timeout, cfg.RenderBaseURL()))

	env, err := cfg.Environment(os.Getenv)
	if err != nil {
		d.fail("environment", err.Error())
	} else {
		d.pass("environment", fmt.Sprintf("%s (configured %s)", env, cfg.Browser.Environment))
	}

	capturer, err := newCapturer(cfg)
	if err != nil {
		d.fail("strategy", err.Error())
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	d.pass("driver", capturer.Driver().Name())

	spec, err := capturer.Strategy().LaunchSpec()
	if err != nil {
		d.fail("browser", err.Error())
	} else {
		d.pass("browser", fmt.Sprintf("%s (%d flags)", spec.Bin, len(spec.Flags)))
	}

	if process.IsInit() {
		d.pass("init", "PID 1, serve reaps orphaned browsers")
	} else {
		d.pass("init", "not PID 1")
	}

	if capture {
		if d.failed > 0 {
			d.warn("capture", "skipped")
		} else {
			result, err := captureLocal(cmd.Context(), cfg, "poster doctor")
			if err != nil {
				d.fail("capture", poster.FullErrorMessage(err))
			} else if summary, err := captureSummary(result); err != nil {
				d.fail("capture", err.Error())
			} else {
				d.pass("capture", summary)
			}
		}
	}

	if d.failed > 0 {
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	return nil
}

// captureSummary describes a doctor capture. The image must decode and be
// poster sized.
func captureSummary(result *poster.Result) (string, error) {
	w, h, err := result.Image.Dimensions()
	if err != nil {
		return "", err
	}
	vp := poster.PosterViewport
	if w != vp.Width || h != vp.Height {
		return "", fmt.Errorf("image is %dx%d, want %dx%d", w, h, vp.Width, vp.Height)
	}
	return fmt.Sprintf("%dx%d PNG, %d bytes in %v", w, h, len(result.Image), result.Duration.Round(time.Millisecond)), nil
}
