package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"document-index/internal/models"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode returns the decoded form of img, decoding Data when needed.
func Decode(img models.Image) (image.Image, error) {
	if img.Decoded != nil {
		return img.Decoded, nil
	}
	if len(img.Data) == 0 {
		return nil, errors.New("image has no data")
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", img.Name, err)
	}
	return decoded, nil
}

// Grayscale converts img to a single 8-bit channel.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}
