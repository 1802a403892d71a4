package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
	"testing"

	"document-index/internal/config"
	"document-index/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	texts []string
	calls int
	err   error
	seen  []image.Image
}

func (f *fakeEngine) Recognize(_ context.Context, img image.Image) (string, error) {
	f.seen = append(f.seen, img)
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.texts[(f.calls-1)%len(f.texts)], nil
}

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestShouldRun(t *testing.T) {
	img := []models.Image{{Name: "a"}}
	tests := []struct {
		name       string
		res        models.ExtractionResult
		imageInput bool
		want       bool
	}{
		{"no images", models.ExtractionResult{PossiblyScanned: true}, true, false},
		{"scanned", models.ExtractionResult{Text: strings.Repeat("x", 500), Images: img, PossiblyScanned: true}, false, true},
		{"image input", models.ExtractionResult{Images: img}, true, true},
		{"no text", models.ExtractionResult{Text: "  ", Images: img}, false, true},
		{"short text", models.ExtractionResult{Text: "caption", Images: img}, false, true},
		{"enough text", models.ExtractionResult{Text: strings.Repeat("x", 250), Images: img}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRun(tt.res, tt.imageInput, 200))
		})
	}
}

func TestRunJoinsResultsWithSeparator(t *testing.T) {
	engine := &fakeEngine{texts: []string{"first page", "  ", "third page"}}
	images := []models.Image{
		{Name: "a.png", Data: pngBytes(t)},
		{Name: "b.png", Decoded: image.NewRGBA(image.Rect(0, 0, 2, 2))},
		{Name: "broken.png", Data: []byte("nope")},
		{Name: "c.png", Data: pngBytes(t)},
	}

	text, recognized, err := Run(context.Background(), engine, images, "doc.pdf")
	require.NoError(t, err)

	assert.Equal(t, "first page"+models.OCRSeparator+"third page", text)
	assert.Equal(t, 2, recognized)
	assert.Equal(t, 3, engine.calls)
	for _, img := range engine.seen {
		assert.IsType(t, &image.Gray{}, img)
	}
}

func TestRunWithoutEngineFails(t *testing.T) {
	_, _, err := Run(context.Background(), nil, []models.Image{{Name: "a"}}, "scan.png")
	assert.ErrorIs(t, err, models.ErrOCRUnavailable)
}

func TestRunSkipsFailingImages(t *testing.T) {
	engine := &fakeEngine{err: errors.New("garbled")}
	text, recognized, err := Run(context.Background(), engine, []models.Image{{Name: "a", Data: pngBytes(t)}}, "x")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, recognized)
}

func TestRunPropagatesUnavailableEngine(t *testing.T) {
	engine := &fakeEngine{err: models.ErrOCRUnavailable}
	_, _, err := Run(context.Background(), engine, []models.Image{{Name: "a", Data: pngBytes(t)}}, "x")
	assert.ErrorIs(t, err, models.ErrOCRUnavailable)
}

func TestTesseractRecognize(t *testing.T) {
	runner := &mockRunner{output: []byte("  Hello OCR\n")}
	engine := &Tesseract{Binary: "/usr/bin/tesseract", Language: "eng", Runner: runner}

	text, err := engine.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 3, 3)))
	require.NoError(t, err)

	assert.Equal(t, "Hello OCR", text)
	assert.Equal(t, "/usr/bin/tesseract", runner.name)
	require.Len(t, runner.args, 4)
	assert.Equal(t, []string{"stdout", "-l", "eng"}, runner.args[1:])
	_, statErr := os.Stat(runner.args[0])
	assert.True(t, os.IsNotExist(statErr), "temp image is removed")
}

func TestTesseractRunnerError(t *testing.T) {
	engine := &Tesseract{Binary: "tesseract", Runner: &mockRunner{err: errors.New("exit status 1")}}
	_, err := engine.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrOCRUnavailable)
}

func TestNewEngineDisabled(t *testing.T) {
	assert.Nil(t, NewEngine(config.OCRConfig{Engine: "none"}))
	assert.Nil(t, NewEngine(config.OCRConfig{Engine: "tesseract", Binary: "definitely-not-a-real-binary-xyz"}))
}

func TestGrayscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	gray := Grayscale(src)
	assert.Equal(t, uint8(255), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), gray.GrayAt(1, 0).Y)
}
