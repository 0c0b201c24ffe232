package poster

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
)

// Environment names the hosting environment a browser is acquired for.
type Environment string

const (
	EnvAuto        Environment = "auto"
	EnvLocal       Environment = "local"
	EnvConstrained Environment = "constrained"
)

// constrainedMarkers are set by serverless hosts.
var constrainedMarkers = []string{
	"VERCEL_ENV",
	"AWS_LAMBDA_FUNCTION_NAME",
	"K_SERVICE",
}

// ParseEnvironment accepts auto, local or constrained (case-insensitive).
func ParseEnvironment(s string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(s))); env {
	case "":
		return EnvAuto, nil
	case EnvAuto, EnvLocal, EnvConstrained:
		return env, nil
	default:
		return "", fmt.Errorf("unknown environment %q (want auto, local or constrained)", s)
	}
}

// DetectEnvironment resolves EnvAuto using the host's environment variables.
// Other values are returned unchanged.
func DetectEnvironment(env Environment, getenv func(string) string) Environment {
	if env != EnvAuto {
		return env
	}
	for _, name := range constrainedMarkers {
		if getenv(name) != "" {
			return EnvConstrained
		}
	}
	return EnvLocal
}

// Flag is one browser command-line switch. An empty Value means a bare switch.
type Flag struct {
	Name  string
	Value string
}

// LaunchSpec is everything a Driver needs to start one browser process.
type LaunchSpec struct {
	Bin   string
	Flags []Flag
}

// Strategy decides which browser binary to run and with which flags.
type Strategy interface {
	Name() string
	LaunchSpec() (LaunchSpec, error)
}

// Compile-time interface checks
var (
	_ Strategy = (*ConstrainedStrategy)(nil)
	_ Strategy = (*LocalStrategy)(nil)
)

// ConstrainedStrategy runs a pre-packaged minimal browser tuned for
// sandboxed, single-process, GPU-less execution.
type ConstrainedStrategy struct {
	Bin string
}

// constrainedFlags disables sandboxing, extensions, background throttling,
// speech and notifications, and forces software rendering.
var constrainedFlags = []Flag{
	{Name: "no-sandbox"},
	{Name: "disable-setuid-sandbox"},
	{Name: "no-zygote"},
	{Name: "single-process"},
	{Name: "disable-gpu"},
	{Name: "disable-extensions"},
	{Name: "disable-background-timer-throttling"},
	{Name: "disable-backgrounding-occluded-windows"},
	{Name: "disable-renderer-backgrounding"},
	{Name: "disable-speech-api"},
	{Name: "disable-notifications"},
	{Name: "disable-dev-shm-usage"},
	{Name: "use-gl", Value: "swiftshader"},
	{Name: "use-angle", Value: "swiftshader"},
	{Name: "hide-scrollbars"},
	{Name: "mute-audio"},
	{Name: "font-render-hinting", Value: "none"},
}

func (s *ConstrainedStrategy) Name() string { return string(EnvConstrained) }

func (s *ConstrainedStrategy) LaunchSpec() (LaunchSpec, error) {
	if s.Bin == "" {
		return LaunchSpec{}, fmt.Errorf("%w: constrained environment requires a packaged browser path", ErrBrowserNotFound)
	}
	if err := checkBin(s.Bin); err != nil {
		return LaunchSpec{}, err
	}
	return LaunchSpec{Bin: s.Bin, Flags: append([]Flag(nil), constrainedFlags...)}, nil
}

// LocalStrategy runs a full browser installation with sandboxing disabled.
type LocalStrategy struct {
	Bin string

	// LookPath finds an installed browser when Bin is empty.
	// Defaults to launcher.LookPath.
	LookPath func() (string, bool)
}

var localFlags = []Flag{
	{Name: "no-sandbox"},
	{Name: "disable-setuid-sandbox"},
}

func (s *LocalStrategy) Name() string { return string(EnvLocal) }

func (s *LocalStrategy) LaunchSpec() (LaunchSpec, error) {
	bin := s.Bin
	if bin == "" {
		lookPath := s.LookPath
		if lookPath == nil {
			lookPath = launcher.LookPath
		}
		path, found := lookPath()
		if !found {
			return LaunchSpec{}, fmt.Errorf("%w: no local Chrome or Chromium installation", ErrBrowserNotFound)
		}
		bin = path
	}
	if err := checkBin(bin); err != nil {
		return LaunchSpec{}, err
	}
	return LaunchSpec{Bin: bin, Flags: append([]Flag(nil), localFlags...)}, nil
}

// SelectStrategy returns the strategy for a resolved environment.
// EnvAuto must be resolved with DetectEnvironment first.
func SelectStrategy(env Environment, bin string) (Strategy, error) {
	switch env {
	case EnvConstrained:
		return &ConstrainedStrategy{Bin: bin}, nil
	case EnvLocal:
		return &LocalStrategy{Bin: bin}, nil
	default:
		return nil, fmt.Errorf("cannot select a browser strategy for environment %q", env)
	}
}

func checkBin(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserNotFound, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrBrowserNotFound, path)
	}
	return nil
}
