package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/root4loot/poster/pkg/poster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

var fakePNG = poster.Image("\x89PNG\r\n\x1a\nfake")

type fakeCapturer struct {
	mu    sync.Mutex
	texts []string
	err   error
	panic bool
}

func (f *fakeCapturer) Capture(ctx context.Context, text string) (*poster.Result, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()

	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := poster.ValidateText(text, 280); err != nil {
		return nil, &poster.CaptureError{Kind: poster.KindInput, Err: err}
	}
	return &poster.Result{Text: text, Image: fakePNG}, nil
}

func (f *fakeCapturer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newTestServer(capturer Capturer, config Config) *Server {
	s := New(capturer, config)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerateJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantText string
	}{
		{name: "text field", body: `{"text":"Hello World"}`, wantText: "Hello World"},
		{name: "unicode", body: `{"text":"포스터 ✨"}`, wantText: "포스터 ✨"},
		{name: "empty body", body: "", wantText: ""},
		{name: "missing text", body: `{}`, wantText: ""},
		{name: "numeric text", body: `{"text":42}`, wantText: ""},
		{name: "null text", body: `{"text":null}`, wantText: ""},
		{name: "extra fields", body: `{"text":"hi","color":"red"}`, wantText: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capturer := &fakeCapturer{}
			s := newTestServer(capturer, Config{})

			rec := do(t, s.Handler(), http.MethodPost, "/generate", tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			encoded := gjson.Get(rec.Body.String(), "imageBase64")
			require.True(t, encoded.Exists())
			decoded, err := base64.StdEncoding.DecodeString(encoded.String())
			require.NoError(t, err)
			assert.Equal(t, []byte(fakePNG), decoded)

			assert.Equal(t, []string{tt.wantText}, capturer.calls())
		})
	}
}

func TestGenerateJSON_MalformedBody(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestServer(capturer, Config{})

	rec := do(t, s.Handler(), http.MethodPost, "/generate", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid input", gjson.Get(rec.Body.String(), "error").String())
	assert.Empty(t, capturer.calls(), "malformed bodies must not reach the browser")
}

func TestGenerateJSON_BodyTooLarge(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestServer(capturer, Config{})

	body := fmt.Sprintf(`{"text":"%s"}`, strings.Repeat("a", maxBodySize))
	rec := do(t, s.Handler(), http.MethodPost, "/generate", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, capturer.calls())
}

func TestGenerate_InvalidInput(t *testing.T) {
	s := newTestServer(&fakeCapturer{}, Config{})

	rec := do(t, s.Handler(), http.MethodPost, "/generate", fmt.Sprintf(`{"text":"%s"}`, strings.Repeat("x", 281)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "invalid input", gjson.Get(body, "error").String())
	assert.Contains(t, gjson.Get(body, "details").String(), "max 280")
	assert.NotContains(t, gjson.Get(body, "details").String(), "input: ")
}

func TestGenerate_CaptureFailure(t *testing.T) {
	internal := errors.New("exec: /opt/chromium: permission denied")

	tests := []struct {
		name        string
		kind        poster.ErrorKind
		wantDetails string
	}{
		{name: "launch", kind: poster.KindLaunch, wantDetails: poster.KindLaunch.Message()},
		{name: "navigation", kind: poster.KindNavigation, wantDetails: poster.KindNavigation.Message()},
		{name: "capture", kind: poster.KindCapture, wantDetails: poster.KindCapture.Message()},
		{name: "timeout", kind: poster.KindTimeout, wantDetails: poster.KindTimeout.Message()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capturer := &fakeCapturer{err: &poster.CaptureError{Kind: tt.kind, Err: internal}}
			s := newTestServer(capturer, Config{})

			for _, req := range []struct{ method, target, body string }{
				{http.MethodPost, "/generate", `{"text":"hi"}`},
				{http.MethodGet, "/generate?text=hi", ""},
			} {
				rec := do(t, s.Handler(), req.method, req.target, req.body)
				require.Equal(t, http.StatusInternalServerError, rec.Code)

				body := rec.Body.String()
				assert.Equal(t, "Failed to generate poster screenshot", gjson.Get(body, "error").String())
				assert.Equal(t, tt.wantDetails, gjson.Get(body, "details").String())
				assert.NotContains(t, body, "/opt/chromium", "internal paths must not leak")
			}
		})
	}
}

func TestGenerateDownload(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestServer(capturer, Config{})

	rec := do(t, s.Handler(), http.MethodGet, "/generate?text=Hello%20World", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="poster-1700000000000.png"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, []byte(fakePNG), rec.Body.Bytes())
	assert.Equal(t, []string{"Hello World"}, capturer.calls())
}

func TestRenderRoute(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestServer(capturer, Config{})

	rec := do(t, s.Handler(), http.MethodGet, "/render?text=%3Cb%3Ehi%3C%2Fb%3E", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "&lt;b&gt;hi&lt;/b&gt;")
	assert.Empty(t, capturer.calls(), "render must not start a capture")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(&fakeCapturer{}, Config{Strategy: "local", Driver: "rod"})

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "ok", gjson.Get(body, "status").String())
	assert.Equal(t, "local", gjson.Get(body, "strategy").String())
	assert.Equal(t, "rod", gjson.Get(body, "driver").String())
}

func TestNotFound(t *testing.T) {
	s := newTestServer(&fakeCapturer{}, Config{})

	rec := do(t, s.Handler(), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", gjson.Get(rec.Body.String(), "error").String())
}

func TestRequestID(t *testing.T) {
	s := newTestServer(&fakeCapturer{}, Config{})

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	generated := rec.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 65))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestRecovery(t *testing.T) {
	s := newTestServer(&fakeCapturer{panic: true}, Config{})

	rec := do(t, s.Handler(), http.MethodPost, "/generate", `{"text":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", gjson.Get(rec.Body.String(), "error").String())
}

func TestRateLimit(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestServer(capturer, Config{RateLimit: 0.001, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := do(t, s.Handler(), http.MethodGet, "/generate?text=hi", "")
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Len(t, capturer.calls(), 2)

	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not rate limited")
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := newTestServer(&fakeCapturer{}, Config{ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Post("http://"+ln.Addr().String()+"/generate", "application/json", bytes.NewBufferString(`{"text":"hi"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	client.CloseIdleConnections()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
