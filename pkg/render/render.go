// Package render produces the HTML poster page that the capture pipeline
// screenshots. Output depends only on the text.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Path is where the poster page is served.
const Path = "/render"

// Canvas geometry and colours.
const (
	CanvasWidth  = 1080
	CanvasHeight = 1080
	Background   = "#7C3AED"
	Foreground   = "#FFFFFF"
)

//go:embed templates/poster.html
var templateFS embed.FS

var posterTemplate = template.Must(template.ParseFS(templateFS, "templates/poster.html"))

type pageData struct {
	Text       string
	Width      int
	Height     int
	Background template.CSS
	Foreground template.CSS
}

// Write renders the poster page for text to w. Text is escaped by
// html/template, so markup in it is displayed literally.
func Write(w io.Writer, text string) error {
	return posterTemplate.Execute(w, pageData{
		Text:       text,
		Width:      CanvasWidth,
		Height:     CanvasHeight,
		Background: template.CSS(Background),
		Foreground: template.CSS(Foreground),
	})
}

// Page renders the poster page into memory.
func Page(text string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, text); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Handler serves the poster page. The text query parameter is optional.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := Page(r.URL.Query().Get("text"))
		if err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

// URL returns the address of the poster page for text under base.
func URL(base, text string) string {
	q := url.Values{}
	q.Set("text", text)
	return strings.TrimRight(base, "/") + Path + "?" + q.Encode()
}
