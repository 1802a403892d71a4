// Package ocr turns the images of an extraction result into text.
package ocr

import (
	"context"
	"errors"
	"strings"

	"document-index/internal/models"

	"github.com/rs/zerolog/log"
)

// ShouldRun reports whether the extraction result needs OCR. Nothing happens
// without images; with images, OCR runs for possibly-scanned sources, image
// inputs, or text shorter than charsPerImage per image.
func ShouldRun(res models.ExtractionResult, imageInput bool, charsPerImage int) bool {
	n := len(res.Images)
	if n == 0 {
		return false
	}
	if res.PossiblyScanned || imageInput {
		return true
	}
	text := strings.TrimSpace(res.Text)
	return text == "" || len(text) < charsPerImage*n
}

// Run recognises every image and joins the non-empty results with the OCR
// separator. Images that fail to decode or recognise are skipped; a missing
// engine aborts the run with models.ErrOCRUnavailable.
func Run(ctx context.Context, engine Engine, images []models.Image, fileName string) (string, int, error) {
	if engine == nil {
		return "", 0, models.ErrOCRUnavailable
	}

	log.Info().Str("file", fileName).Int("images", len(images)).Msg("Performing OCR")
	var parts []string
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		decoded, err := Decode(img)
		if err != nil {
			log.Warn().Err(err).Int("image", i+1).Str("file", fileName).Msg("Skipping undecodable image")
			continue
		}
		text, err := engine.Recognize(ctx, Grayscale(decoded))
		if err != nil {
			if errors.Is(err, models.ErrOCRUnavailable) {
				return "", 0, err
			}
			log.Error().Err(err).Int("image", i+1).Str("file", fileName).Msg("OCR failed for image")
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	out := strings.TrimSpace(strings.Join(parts, models.OCRSeparator))
	log.Info().Str("file", fileName).Int("chars", len(out)).Int("images_recognized", len(parts)).Msg("OCR finished")
	return out, len(parts), nil
}
