package main

import (
	"fmt"
	"os"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/internal/config"
	"github.com/root4loot/poster/pkg/poster"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
)

// globalFlags are shared by every subcommand and override config values
// when set.
type globalFlags struct {
	configPath string
	debug      bool
	env        string
	driver     string
	browserBin string
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "poster",
		Short: "Render text onto a 1080x1080 poster with a headless browser",
		Long: `poster serves a poster page and screenshots it with a headless browser.
Every capture launches its own browser and closes it before answering.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if g.debug {
				log.SetLevel(log.DebugLevel)
			}
			_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
				log.Debugf(format, args...)
			}))
		},
	}

	addGlobalFlags(root.PersistentFlags(), g)

	root.AddCommand(
		newServeCmd(g),
		newCaptureCmd(g),
		newDoctorCmd(g),
		newVersionCmd(),
	)

	return root
}

func addGlobalFlags(fs *pflag.FlagSet, g *globalFlags) {
	fs.StringVarP(&g.configPath, "config", "c", "", "YAML config file (env: POSTER_CONFIG)")
	fs.BoolVar(&g.debug, "debug", false, "enable debug logging")
	fs.StringVar(&g.env, "env", "", "browser environment: auto, local or constrained")
	fs.StringVar(&g.driver, "driver", "", "browser driver: rod or chromedp")
	fs.StringVar(&g.browserBin, "browser-bin", "", "browser binary (required for constrained)")
	fs.DurationVar(&g.timeout, "timeout", 0, "capture timeout (default 30s)")
}

// loadConfig resolves configuration in order: defaults, config file,
// POSTER_* variables, then flags. The result is not validated.
func (g *globalFlags) loadConfig(fs *pflag.FlagSet, getenv func(string) string, environ []string) (config.Config, error) {
	path := g.configPath
	if path == "" {
		path = getenv(config.EnvConfig)
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
		log.Debugf("Loaded config from %s", path)
	}

	if err := config.ApplyEnv(&cfg, getenv); err != nil {
		return cfg, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	for _, name := range config.UnknownEnvVars(environ) {
		log.Warnf("Ignoring unknown variable %s", name)
	}

	if fs.Changed("env") {
		cfg.Browser.Environment = g.env
	}
	if fs.Changed("driver") {
		cfg.Browser.Driver = g.driver
	}
	if fs.Changed("browser-bin") {
		cfg.Browser.Bin = g.browserBin
	}
	if fs.Changed("timeout") {
		cfg.SetTimeout(g.timeout)
	}
	if g.debug {
		cfg.Debug = true
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	return cfg, nil
}

// newCapturer wires the strategy and driver named by cfg.
func newCapturer(cfg config.Config) (*poster.Capturer, error) {
	env, err := cfg.Environment(os.Getenv)
	if err != nil {
		return nil, err
	}

	strategy, err := poster.SelectStrategy(env, cfg.Browser.Bin)
	if err != nil {
		return nil, err
	}

	driver, err := poster.NewDriver(cfg.Browser.Driver)
	if err != nil {
		return nil, err
	}

	return poster.New(strategy, driver, cfg.CaptureOptions()), nil
}
