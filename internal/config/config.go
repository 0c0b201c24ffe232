// Package config loads service configuration from a YAML file and POSTER_*
// environment variables. The result is resolved once at startup and passed by
// value; nothing reads the environment after that.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/root4loot/goutils/urlutil"
	"github.com/root4loot/poster/pkg/poster"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrInvalidConfig  = errors.New("invalid config")
)

// MaxFileSize limits config input (1MB).
const MaxFileSize = 1 << 20

// Config holds all configuration for the poster service.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Browser BrowserConfig `yaml:"browser"`
	Render  RenderConfig  `yaml:"render"`
	Debug   bool          `yaml:"debug"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BaseURL         string        `yaml:"baseURL"`   // Where the browser reaches /render (empty = derived from addr)
	RateLimit       float64       `yaml:"rateLimit"` // Requests per second on /generate (0 = unlimited)
	RateBurst       int           `yaml:"rateBurst"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// BrowserConfig defines how browsers are acquired and driven.
type BrowserConfig struct {
	Environment       string        `yaml:"environment"` // "auto", "local" or "constrained"
	Bin               string        `yaml:"bin"`         // Browser binary (required when constrained)
	Driver            string        `yaml:"driver"`      // "rod" or "chromedp"
	Timeout           time.Duration `yaml:"timeout"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
	IdleWindow        time.Duration `yaml:"idleWindow"`
	CloseGrace        time.Duration `yaml:"closeGrace"`
}

// RenderConfig defines limits on poster content.
type RenderConfig struct {
	MaxTextLength int `yaml:"maxTextLength"`
}

// Default returns the configuration used when no file or variable overrides it.
func Default() Config {
	opts := poster.NewOptions()
	return Config{
		Server: ServerConfig{
			Addr:            ":3000",
			RateBurst:       1,
			ShutdownTimeout: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Environment:       string(poster.EnvAuto),
			Driver:            poster.DriverRod,
			Timeout:           opts.Timeout,
			NavigationTimeout: opts.NavigationTimeout,
			IdleWindow:        opts.IdleWindow,
			CloseGrace:        opts.CloseGrace,
		},
		Render: RenderConfig{
			MaxTextLength: opts.MaxTextLength,
		},
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 -- config path is operator-provided
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if len(data) > MaxFileSize {
		return cfg, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrConfigParse, path, len(data), MaxFileSize)
	}

	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if _, err := poster.ParseEnvironment(c.Browser.Environment); err != nil {
		errs = append(errs, err)
	}
	if _, err := poster.NewDriver(c.Browser.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Browser.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.timeout must be positive"))
	}
	if c.Browser.NavigationTimeout <= 0 || c.Browser.NavigationTimeout >= c.Browser.Timeout {
		errs = append(errs, fmt.Errorf("browser.navigationTimeout must be positive and below browser.timeout (%v)", c.Browser.Timeout))
	}
	if c.Browser.IdleWindow <= 0 {
		errs = append(errs, fmt.Errorf("browser.idleWindow must be positive"))
	}
	if c.Browser.CloseGrace <= 0 {
		errs = append(errs, fmt.Errorf("browser.closeGrace must be positive"))
	}
	if c.Render.MaxTextLength <= 0 {
		errs = append(errs, fmt.Errorf("render.maxTextLength must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit cannot be negative"))
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, fmt.Errorf("server.rateBurst must be at least 1 when rateLimit is set"))
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr: %v", err))
	}
	if c.Server.BaseURL != "" {
		if err := checkBaseURL(c.Server.BaseURL); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func checkBaseURL(raw string) error {
	if !urlutil.HasScheme(raw) {
		return fmt.Errorf("server.baseURL %q needs an http:// or https:// scheme", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("server.baseURL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.baseURL %q needs an http:// or https:// scheme", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("server.baseURL %q has no host", raw)
	}
	return nil
}

// RenderBaseURL is where the browser reaches the render page. Without an
// explicit base URL the listener is reached over loopback.
func (c Config) RenderBaseURL() string {
	if c.Server.BaseURL != "" {
		return strings.TrimRight(c.Server.BaseURL, "/")
	}

	host, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return poster.NewOptions().RenderBaseURL
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// SetTimeout sets the capture timeout, halving the navigation timeout when it
// would no longer fit inside it.
func (c *Config) SetTimeout(d time.Duration) {
	c.Browser.Timeout = d
	if c.Browser.NavigationTimeout >= d {
		c.Browser.NavigationTimeout = d / 2
	}
}

// Environment resolves browser.environment against the process environment.
func (c Config) Environment(getenv func(string) string) (poster.Environment, error) {
	env, err := poster.ParseEnvironment(c.Browser.Environment)
	if err != nil {
		return "", err
	}
	return poster.DetectEnvironment(env, getenv), nil
}

// CaptureOptions maps the configuration onto capture options.
func (c Config) CaptureOptions() poster.Options {
	return poster.Options{
		Timeout:           c.Browser.Timeout,
		NavigationTimeout: c.Browser.NavigationTimeout,
		IdleWindow:        c.Browser.IdleWindow,
		CloseGrace:        c.Browser.CloseGrace,
		MaxTextLength:     c.Render.MaxTextLength,
		RenderBaseURL:     c.RenderBaseURL(),
	}
}

// Environment variables recognised by ApplyEnv.
const (
	EnvConfig    = "POSTER_CONFIG"
	EnvAddr      = "POSTER_ADDR"
	EnvBaseURL   = "POSTER_BASE_URL"
	EnvEnv       = "POSTER_ENV"
	EnvBin       = "POSTER_BROWSER_BIN"
	EnvDriver    = "POSTER_DRIVER"
	EnvTimeout   = "POSTER_TIMEOUT"
	EnvMaxText   = "POSTER_MAX_TEXT"
	EnvRateLimit = "POSTER_RATE_LIMIT"
	EnvDebug     = "POSTER_DEBUG"
)

var knownEnvVars = map[string]bool{
	EnvConfig:    true,
	EnvAddr:      true,
	EnvBaseURL:   true,
	EnvEnv:       true,
	EnvBin:       true,
	EnvDriver:    true,
	EnvTimeout:   true,
	EnvMaxText:   true,
	EnvRateLimit: true,
	EnvDebug:     true,
}

// ApplyEnv overrides cfg with POSTER_* variables from getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := getenv(EnvBaseURL); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := getenv(EnvEnv); v != "" {
		cfg.Browser.Environment = v
	}
	if v := getenv(EnvBin); v != "" {
		cfg.Browser.Bin = v
	}
	if v := getenv(EnvDriver); v != "" {
		cfg.Browser.Driver = v
	}

	var errs []error

	if v := getenv(EnvTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvTimeout, err))
		} else {
			cfg.SetTimeout(d)
		}
	}
	if v := getenv(EnvMaxText); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxText, err))
		} else {
			cfg.Render.MaxTextLength = n
		}
	}
	if v := getenv(EnvRateLimit); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvRateLimit, err))
		} else {
			cfg.Server.RateLimit = r
		}
	}
	if v := getenv(EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvDebug, err))
		} else {
			cfg.Debug = b
		}
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("30s") or bare seconds ("30").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// UnknownEnvVars returns POSTER_* names in environ that ApplyEnv ignores.
func UnknownEnvVars(environ []string) []string {
	var unknown []string
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "POSTER_") && !knownEnvVars[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
