package poster

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Driver starts browser processes. Each Launch returns a Session that owns
// exactly one process.
type Driver interface {
	Name() string
	Launch(ctx context.Context, spec LaunchSpec) (Session, error)
}

// Session drives one launched browser. A Driver that fails part-way through
// Launch releases whatever it started itself; once a Session is returned the
// caller must Close it exactly once.
type Session interface {
	SetViewport(ctx context.Context, vp Viewport) error
	// Navigate loads url and returns once the page has had no in-flight
	// requests for the idle window, or ctx is done.
	Navigate(ctx context.Context, url string, idle time.Duration) error
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Driver names accepted by NewDriver.
const (
	DriverRod      = "rod"
	DriverChromedp = "chromedp"
)

// NewDriver returns the named driver. An empty name selects rod.
func NewDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DriverRod:
		return &RodDriver{}, nil
	case DriverChromedp:
		return &ChromedpDriver{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q (want %s or %s)", name, DriverRod, DriverChromedp)
	}
}
