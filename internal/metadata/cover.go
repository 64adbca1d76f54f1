package metadata

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"sync"

	"github.com/nfnt/resize"
)

const (
	placeholderSize = 800
	// DefaultTint is used when a cover can't be decoded
	DefaultTint = "#1a1a1a"
)

var placeholderColor = color.RGBA{R: 0x22, G: 0x22, B: 0x22, A: 0xff}

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// PlaceholderCover returns the neutral cover shown when a track has none:
// an 800x800 #222222 PNG, encoded once per process.
func PlaceholderCover() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: placeholderColor}, image.Point{}, draw.Src)

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			placeholderPNG = buf.Bytes()
		}
	})
	return placeholderPNG
}

// Tint derives a background colour from cover art: the average colour of
// the image, darkened by half, as #rrggbb.
func Tint(cover []byte) string {
	if len(cover) == 0 {
		return DefaultTint
	}

	img, _, err := image.Decode(bytes.NewReader(cover))
	if err != nil {
		return DefaultTint
	}

	// Shrinking to one pixel averages the whole image.
	pixel := resize.Resize(1, 1, img, resize.Bilinear)
	r, g, b, _ := pixel.At(pixel.Bounds().Min.X, pixel.Bounds().Min.Y).RGBA()

	return fmt.Sprintf("#%02x%02x%02x", (r>>8)/2, (g>>8)/2, (b>>8)/2)
}
