package poster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeImage(t *testing.T) {
	exact, err := rasterize("x", 1080, 1080)
	require.NoError(t, err)
	large, err := rasterize("x", 2160, 2160)
	require.NoError(t, err)
	small, err := rasterize("x", 540, 300)
	require.NoError(t, err)

	tests := []struct {
		name      string
		raw       []byte
		wantSame  bool
		wantError bool
	}{
		{name: "exact size is returned unchanged", raw: exact, wantSame: true},
		{name: "larger image is scaled down", raw: large},
		{name: "smaller image is scaled up", raw: small},
		{name: "not a png", raw: []byte("GIF89a"), wantError: true},
		{name: "truncated png", raw: exact[:16], wantError: true},
		{name: "empty", raw: nil, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := NormalizeImage(tt.raw, PosterViewport)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			require.NoError(t, err)

			w, h, err := img.Dimensions()
			require.NoError(t, err)
			assert.Equal(t, 1080, w)
			assert.Equal(t, 1080, h)
			assert.True(t, img.IsPNG())

			if tt.wantSame {
				assert.Equal(t, tt.raw, []byte(img))
			}
		})
	}
}

func TestFilename(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	assert.Equal(t, "poster-1700000000123.png", Filename(ts))
}

func TestResult_SaveToFolder(t *testing.T) {
	raw, err := rasterize("saved", 1080, 1080)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "out")
	result := Result{Image: raw}

	path, err := result.SaveToFolder(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "poster-"))
	assert.Equal(t, ".png", filepath.Ext(path))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, written)
}

func TestResult_SaveToFolder_EmptyImage(t *testing.T) {
	_, err := Result{}.SaveToFolder(t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidImage)
}
