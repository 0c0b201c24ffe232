package poster

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// brandColor is the poster canvas colour, #7C3AED.
var brandColor = color.RGBA{R: 0x7C, G: 0x3A, B: 0xED, A: 0xFF}

// fakeStrategy always resolves to a fixed binary path.
type fakeStrategy struct {
	err error
}

func (s *fakeStrategy) Name() string { return "fake" }

func (s *fakeStrategy) LaunchSpec() (LaunchSpec, error) {
	if s.err != nil {
		return LaunchSpec{}, s.err
	}
	return LaunchSpec{Bin: "/fake/chrome", Flags: []Flag{{Name: "no-sandbox"}}}, nil
}

// spyDriver counts launches and closes and hands out fakeSessions.
type spyDriver struct {
	mu       sync.Mutex
	launches int
	closes   int

	launchErr error
	session   fakeSession
}

func (d *spyDriver) Name() string { return "spy" }

func (d *spyDriver) Launch(ctx context.Context, spec LaunchSpec) (Session, error) {
	d.mu.Lock()
	d.launches++
	d.mu.Unlock()

	if d.launchErr != nil {
		return nil, d.launchErr
	}

	s := d.session
	s.driver = d
	return &s, nil
}

func (d *spyDriver) counts() (launches, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.launches, d.closes
}

// fakeSession rasterizes the poster with gg instead of a browser.
type fakeSession struct {
	driver *spyDriver

	viewportErr    error
	navigateErr    error
	screenshotErr  error
	hangNavigate   bool
	hangScreenshot bool
	panicOnCapture bool
	scale          float64

	viewport Viewport
	text     string
}

func (s *fakeSession) SetViewport(ctx context.Context, vp Viewport) error {
	s.viewport = vp
	return s.viewportErr
}

func (s *fakeSession) Navigate(ctx context.Context, rawURL string, idle time.Duration) error {
	if s.hangNavigate {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.navigateErr != nil {
		return s.navigateErr
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	s.text = u.Query().Get("text")
	return nil
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if s.panicOnCapture {
		panic("renderer crashed")
	}
	if s.hangScreenshot {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.screenshotErr != nil {
		return nil, s.screenshotErr
	}

	scale := s.scale
	if scale == 0 {
		scale = 1
	}
	return rasterize(s.text, int(float64(s.viewport.Width)*scale), int(float64(s.viewport.Height)*scale))
}

func (s *fakeSession) Close(ctx context.Context) error {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	s.driver.closes++
	return nil
}

// rasterize draws a poster canvas of the given size.
func rasterize(text string, width, height int) ([]byte, error) {
	dc := gg.NewContext(width, height)
	dc.SetColor(brandColor)
	dc.Clear()

	if text != "" {
		dc.SetColor(color.White)
		dc.SetFontFace(basicfont.Face7x13)
		dc.DrawStringAnchored(text, float64(width)/2, float64(height)/2, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fakeBinary creates an empty file usable as a browser path.
func fakeBinary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chrome")
	if err := os.WriteFile(path, nil, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

var errBoom = errors.New("boom")
