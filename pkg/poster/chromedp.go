package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/root4loot/goutils/log"
)

// ChromedpDriver launches browsers with chromedp.
type ChromedpDriver struct{}

var (
	_ Driver  = (*ChromedpDriver)(nil)
	_ Session = (*chromedpSession)(nil)
)

type chromedpSession struct {
	ctx         context.Context // browser context returned by chromedp.NewContext
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

func (d *ChromedpDriver) Name() string { return DriverChromedp }

// allocatorOptions builds the exec allocator options for spec on top of
// chromedp's defaults, which already run headless.
func allocatorOptions(spec LaunchSpec) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(spec.Bin))
	for _, f := range spec.Flags {
		if f.Value == "" {
			opts = append(opts, chromedp.Flag(f.Name, true))
		} else {
			opts = append(opts, chromedp.Flag(f.Name, f.Value))
		}
	}
	return opts
}

// Launch allocates the browser. The first Run on a chromedp context starts
// the process and binds it to that context, so it runs on the session's own
// context and is only raced against ctx.
func (d *ChromedpDriver) Launch(ctx context.Context, spec LaunchSpec) (Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(spec)...)
	browserCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromedpSession{
		ctx:         browserCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-errc:
		if err != nil {
			s.release()
			return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
	case <-ctx.Done():
		s.release()
		<-errc
		return nil, fmt.Errorf("%w: %v", ErrLaunch, ctx.Err())
	}

	if c := chromedp.FromContext(browserCtx); c != nil && c.Browser != nil && c.Browser.Process() != nil {
		log.Debugf("Browser started (pid %d)", c.Browser.Process().Pid)
	}

	return s, nil
}

// run executes actions on the session's tab, cancelled when ctx ends.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (s *chromedpSession) SetViewport(ctx context.Context, vp Viewport) error {
	return s.run(ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height), chromedp.EmulateScale(vp.ScaleFactor)))
}

// Navigate waits for Chrome's own networkIdle lifecycle event for the new
// document. Chrome fixes that window at 500ms, so idle is only logged.
func (s *chromedpSession) Navigate(ctx context.Context, url string, idle time.Duration) error {
	log.Debugf("Waiting for networkIdle on %s (Chrome window, requested %v)", url, idle)

	idleLoaders := make(chan cdp.LoaderID, 16)

	listenCtx, stopListening := context.WithCancel(s.ctx)
	defer stopListening()

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idleLoaders <- e.LoaderID:
			default:
			}
		}
	})

	var loaderID cdp.LoaderID
	err := s.run(ctx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, id, errorText, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errorText != "" {
				return errors.New(errorText)
			}
			loaderID = id
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	for {
		select {
		case id := <-idleLoaders:
			if id == loaderID {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for network idle: %w", ctx.Err())
		}
	}
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close asks the browser to close, bounded by ctx, then cancels the
// allocator, which kills the process if it is still running and waits for it.
func (s *chromedpSession) Close(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- chromedp.Cancel(s.ctx)
	}()

	var err error
	select {
	case err = <-errc:
		if err != nil {
			err = fmt.Errorf("closing browser: %w", err)
		}
	case <-ctx.Done():
		err = fmt.Errorf("closing browser: %w", ctx.Err())
	}

	s.release()
	return err
}

func (s *chromedpSession) release() {
	s.cancelTab()
	s.cancelAlloc()
}
