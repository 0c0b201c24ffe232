package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/poster/pkg/poster"
	"github.com/tidwall/gjson"
)

// maxBodySize limits POST /generate bodies.
const maxBodySize = 64 << 10

// generateJSON handles POST /generate with {"text": "..."} and answers with
// the poster as base64. A missing body or a non-string text renders an empty
// poster.
func (s *Server) generateJSON(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": "request body too large or unreadable"})
		return
	}

	text, err := textFromBody(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	result, ok := s.capture(c, text)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"imageBase64": base64.StdEncoding.EncodeToString(result.Image),
	})
}

// generateDownload handles GET /generate?text=... and answers with the PNG as
// an attachment.
func (s *Server) generateDownload(c *gin.Context) {
	result, ok := s.capture(c, c.Query("text"))
	if !ok {
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", poster.Filename(s.now())))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", result.Image)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"strategy": s.config.Strategy,
		"driver":   s.config.Driver,
	})
}

// capture runs one capture for the request and writes the error response
// when it fails.
func (s *Server) capture(c *gin.Context, text string) (*poster.Result, bool) {
	result, err := s.capturer.Capture(c.Request.Context(), text)
	if err == nil {
		return result, true
	}

	id := c.GetString(requestIDKey)
	kind := poster.KindOf(err)

	if kind == poster.KindInput {
		log.Debugf("[%s] Rejected input: %v", id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": inputDetails(err)})
		return nil, false
	}

	log.Errorf("[%s] Capture failed: %s", id, poster.FullErrorMessage(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Failed to generate poster screenshot",
		"details": kind.Message(),
	})
	return nil, false
}

// inputDetails strips the kind prefix from a validation error.
func inputDetails(err error) string {
	var ce *poster.CaptureError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}

// textFromBody extracts the text field. Only malformed JSON is an error.
func textFromBody(body []byte) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("request body is not valid JSON")
	}

	field := gjson.GetBytes(body, "text")
	if field.Type != gjson.String {
		return "", nil
	}
	return field.String(), nil
}
