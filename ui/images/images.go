// Package images prepares frames and thumbnails for display in Tk photos.
package images

import (
	"bytes"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// EncodePNG encodes img as PNG. Errors yield nil.
func EncodePNG(img image.Image) []byte {
	if img == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

// ScaleToFit shrinks src to fit within maxW x maxH keeping its aspect ratio.
// Images that already fit are returned unchanged.
func ScaleToFit(src image.Image, maxW, maxH int) image.Image {
	if src == nil {
		return nil
	}
	maxW, maxH = max(maxW, 1), max(maxH, 1)
	b := src.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return src
	}
	return imaging.Fit(src, maxW, maxH, imaging.Linear)
}

// Placeholder is a blank image of the given size.
func Placeholder(w, h int) image.Image {
	return imaging.New(max(w, 1), max(h, 1), image.Black.C)
}

// DecodeThumbnail decodes PNG thumbnail bytes and fits them to size. It
// returns nil for empty or undecodable data.
func DecodeThumbnail(data []byte, size int) image.Image {
	if len(data) == 0 {
		return nil
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	return ScaleToFit(img, size, size)
}
