// Package poster captures the rendered poster page as a PNG using a headless
// browser. Every capture launches its own browser and closes it before
// returning, whatever the outcome.
package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/pkg/render"
)

// Capturer runs the capture pipeline. Strategy, driver and options are fixed
// at construction and shared read-only by concurrent captures.
type Capturer struct {
	strategy Strategy
	driver   Driver
	options  Options
}

// Init sets up the package logger. Logging is silent until it is called.
func Init() {
	log.Init("poster")
	log.SetLevel(log.InfoLevel)
}

// New creates a Capturer. Zero-valued options fall back to NewOptions.
func New(strategy Strategy, driver Driver, options Options) *Capturer {
	return &Capturer{
		strategy: strategy,
		driver:   driver,
		options:  options.withDefaults(),
	}
}

// Strategy returns the browser acquisition strategy in use.
func (c *Capturer) Strategy() Strategy { return c.strategy }

// Driver returns the browser driver in use.
func (c *Capturer) Driver() Driver { return c.driver }

// Options returns the effective options.
func (c *Capturer) Options() Options { return c.options }

// Capture renders text on the poster page and screenshots it. Failures are
// returned as *CaptureError.
func (c *Capturer) Capture(ctx context.Context, text string) (*Result, error) {
	start := time.Now()

	if err := ValidateText(text, c.options.MaxTextLength); err != nil {
		return nil, &CaptureError{Kind: KindInput, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	renderURL := render.URL(c.options.RenderBaseURL, text)

	img, err := c.run(ctx, renderURL)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v: %w", ErrTimeout, c.options.Timeout, err)
		}
		return nil, &CaptureError{Kind: classify(err), Err: err}
	}

	result := &Result{
		Text:      text,
		RenderURL: renderURL,
		Image:     img,
		Duration:  time.Since(start),
	}
	log.Debugf("Captured %s in %v (%d bytes)", renderURL, result.Duration, len(img))

	return result, nil
}

// run is the launch, navigate, capture sequence. The session is released on
// every path once Launch has succeeded.
func (c *Capturer) run(ctx context.Context, renderURL string) (Image, error) {
	spec, err := c.strategy.LaunchSpec()
	if err != nil {
		return nil, err
	}

	log.Debugf("Launching %s browser %s with %s", c.strategy.Name(), spec.Bin, c.driver.Name())

	session, err := c.driver.Launch(ctx, spec)
	if err != nil {
		if errors.Is(err, ErrLaunch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	defer c.release(ctx, session)

	if err := session.SetViewport(ctx, PosterViewport); err != nil {
		return nil, fmt.Errorf("%w: setting viewport: %w", ErrCapture, err)
	}

	navCtx, cancelNav := context.WithTimeout(ctx, c.options.NavigationTimeout)
	defer cancelNav()

	if err := session.Navigate(navCtx, renderURL, c.options.IdleWindow); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	raw, err := session.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	img, err := NormalizeImage(raw, PosterViewport)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	return img, nil
}

// release closes the session on a context detached from the request, so a
// cancelled or timed-out request still tears its browser down within
// CloseGrace.
func (c *Capturer) release(ctx context.Context, session Session) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.options.CloseGrace)
	defer cancel()

	if err := session.Close(closeCtx); err != nil {
		log.Warnf("Could not close browser cleanly: %v", err)
	}
}
