package ocr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"

	"document-index/internal/config"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
)

// Engine recognises the text in one image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// CommandRunner executes an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	Binary   string
	Language string
	Runner   CommandRunner
}

// NewEngine builds the configured engine. It returns a nil Engine when OCR is
// disabled or the binary is not installed; callers treat that as absent.
func NewEngine(cfg config.OCRConfig) Engine {
	switch cfg.Engine {
	case "", "none":
		return nil
	}
	binary := cfg.Binary
	if binary == "" {
		binary = "tesseract"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		log.Warn().Err(err).Str("binary", binary).Msg("OCR engine not found, scanned documents will fail")
		return nil
	}
	return &Tesseract{Binary: path, Language: cfg.Language, Runner: execRunner{}}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	f, err := os.CreateTemp("", "docindex-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}

	args := []string{f.Name(), "stdout"}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	runner := t.Runner
	if runner == nil {
		runner = execRunner{}
	}
	out, err := runner.Run(ctx, t.Binary, args...)
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return "", fmt.Errorf("%w: %v", models.ErrOCRUnavailable, err)
		}
		return "", fmt.Errorf("failed to run tesseract: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
