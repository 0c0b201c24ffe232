package poster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/image/draw"
)

// Image is a PNG-encoded poster.
type Image []byte

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// IsPNG reports whether the image starts with the PNG signature.
func (img Image) IsPNG() bool {
	return bytes.HasPrefix(img, pngMagic)
}

// Dimensions decodes only the PNG header.
func (img Image) Dimensions() (width, height int, err error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return cfg.Width, cfg.Height, nil
}

// NormalizeImage checks a raw screenshot and guarantees it is exactly the
// viewport size. Screenshots that come back at another size (a device scale
// factor the browser did not honour, for instance) are rescaled.
func NormalizeImage(raw []byte, vp Viewport) (Image, error) {
	img := Image(raw)
	if !img.IsPNG() {
		return nil, fmt.Errorf("%w: missing PNG signature", ErrInvalidImage)
	}

	w, h, err := img.Dimensions()
	if err != nil {
		return nil, err
	}
	if w == vp.Width && h == vp.Height {
		return img, nil
	}

	src, err := png.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, vp.Width, vp.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("%w: encoding: %v", ErrInvalidImage, err)
	}
	return buf.Bytes(), nil
}

// Result contains the result of a poster capture.
type Result struct {
	Text      string
	RenderURL string
	Image     Image
	Duration  time.Duration
}

// Filename returns the download name for a poster created at t.
func Filename(t time.Time) string {
	return "poster-" + strconv.FormatInt(t.UnixMilli(), 10) + ".png"
}

// SaveToFolder writes the image into folder and returns the file path.
func (result Result) SaveToFolder(folder string) (filename string, err error) {
	if len(result.Image) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}

	filename = filepath.Join(folder, Filename(time.Now()))

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := file.Write(result.Image); err != nil {
		return "", err
	}

	return filename, nil
}
