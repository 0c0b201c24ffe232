package poster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/internal/process"
)

// idleExcludedTypes are the long-lived request types that never finish.
// Fonts and images count towards network idle.
var idleExcludedTypes = []proto.NetworkResourceType{
	proto.NetworkResourceTypeWebSocket,
	proto.NetworkResourceTypeEventSource,
}

// discardWait bounds how long a failed launch waits for its process to exit
// before the profile directory is removed anyway.
const discardWait = 2 * time.Second

// RodDriver launches browsers with go-rod.
type RodDriver struct{}

var (
	_ Driver  = (*RodDriver)(nil)
	_ Session = (*rodSession)(nil)
)

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (d *RodDriver) Name() string { return DriverRod }

// Launch starts the browser, connects to it and opens one blank page.
func (d *RodDriver) Launch(ctx context.Context, spec LaunchSpec) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Bin(spec.Bin).
		Headless(true).
		Leakless(true)

	for _, f := range spec.Flags {
		if f.Value == "" {
			l.Set(flags.Flag(f.Name))
		} else {
			l.Set(flags.Flag(f.Name), f.Value)
		}
	}

	// On a failed start rod has already killed the process it spawned.
	controlURL, err := l.Launch()
	if err != nil {
		discard(l)
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	log.Debugf("Browser started (pid %d) at %s", l.PID(), controlURL)

	s := &rodSession{launcher: l}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		discard(l)
		return nil, fmt.Errorf("%w: connecting: %v", ErrLaunch, err)
	}
	s.browser = browser

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: opening page: %v", ErrLaunch, err)
	}
	s.page = page

	return s, nil
}

func (s *rodSession) SetViewport(ctx context.Context, vp Viewport) error {
	return s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: vp.ScaleFactor,
		Mobile:            false,
	})
}

func (s *rodSession) Navigate(ctx context.Context, url string, idle time.Duration) error {
	page := s.page.Context(ctx)

	wait := page.WaitRequestIdle(idle, nil, nil, idleExcludedTypes)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for load: %w", err)
	}

	wait()

	// wait() returns silently when ctx ends before the network is idle.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for network idle: %w", err)
	}
	return nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close closes the browser gracefully and falls back to killing its process
// tree. It waits, bounded by ctx, for the process to exit.
func (s *rodSession) Close(ctx context.Context) error {
	var errs []error

	graceful := false
	if s.browser != nil {
		if err := s.browser.Context(ctx).Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing browser: %w", err))
		} else {
			graceful = true
		}
	}
	if !graceful {
		s.kill()
	}

	done := make(chan struct{})
	go func() {
		s.launcher.Cleanup()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.kill()
		errs = append(errs, fmt.Errorf("waiting for browser exit: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

func (s *rodSession) kill() {
	if err := process.Kill(s.launcher.PID()); err != nil {
		log.Debugf("Kill browser: %v", err)
	}
}

// discard releases what a failed launch left behind: the process group, if
// one was started, and the profile directory rod writes before starting it.
// It does not go through Launcher.Kill, which sleeps before killing.
func discard(l *launcher.Launcher) {
	dir := l.Get(flags.UserDataDir)

	if pid := l.PID(); pid > 0 {
		_ = process.Kill(pid)

		// Cleanup waits for the exit, then removes dir.
		done := make(chan struct{})
		go func() {
			l.Cleanup()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(discardWait):
			if process.Alive(pid) {
				log.Warnf("Browser (pid %d) did not exit within %v", pid, discardWait)
			}
		}
	}

	if dir != "" {
		_ = os.RemoveAll(dir)
	}
}
