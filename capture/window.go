package capture

import (
	"errors"
	"fmt"
	"image"
)

var ErrWindowGrab = errors.New("window capture unavailable")

// bgrxToRGBA converts a 32 bits per pixel, LSB-first ZPixmap into an opaque
// RGBA image.
func bgrxToRGBA(data []byte, w, h int) (*image.RGBA, error) {
	if len(data) < w*h*4 {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrNoFrame, len(data), w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h*4; i += 4 {
		img.Pix[i] = data[i+2]
		img.Pix[i+1] = data[i+1]
		img.Pix[i+2] = data[i]
		img.Pix[i+3] = 0xff
	}
	return img, nil
}
