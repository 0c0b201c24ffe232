package poster

import "time"

// Viewport describes the emulated device metrics for a capture.
type Viewport struct {
	Width       int
	Height      int
	ScaleFactor float64
}

// PosterViewport is the fixed canvas every poster is captured at.
var PosterViewport = Viewport{Width: 1080, Height: 1080, ScaleFactor: 1}

// Options contains the options for capturing posters.
type Options struct {
	Timeout           time.Duration // Budget for the whole capture pipeline
	NavigationTimeout time.Duration // Budget for navigation plus network idle
	IdleWindow        time.Duration // Quiet period that counts as network idle
	CloseGrace        time.Duration // Budget for browser teardown
	MaxTextLength     int           // Maximum accepted text length (runes)
	RenderBaseURL     string        // Base URL serving the render page
}

// NewOptions returns an Options struct initialized with default values.
func NewOptions() Options {
	return Options{
		Timeout:           30 * time.Second,
		NavigationTimeout: 15 * time.Second,
		IdleWindow:        500 * time.Millisecond,
		CloseGrace:        5 * time.Second,
		MaxTextLength:     280,
		RenderBaseURL:     "http://127.0.0.1:3000",
	}
}

// withDefaults fills zero values so a partially populated Options still
// bounds every step.
func (o Options) withDefaults() Options {
	d := NewOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = d.NavigationTimeout
	}
	if o.IdleWindow <= 0 {
		o.IdleWindow = d.IdleWindow
	}
	if o.CloseGrace <= 0 {
		o.CloseGrace = d.CloseGrace
	}
	if o.MaxTextLength <= 0 {
		o.MaxTextLength = d.MaxTextLength
	}
	if o.RenderBaseURL == "" {
		o.RenderBaseURL = d.RenderBaseURL
	}
	return o
}
