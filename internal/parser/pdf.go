package parser

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"document-index/internal/config"
	"document-index/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

const (
	pageSeparator   = "\n\n"
	cellAlignPoints = 2.0
)

type pdfExtractor struct {
	scan config.ScanConfig
}

func (e *pdfExtractor) Extract(ctx context.Context, filePath string) (res models.ExtractionResult, err error) {
	defer recoverPanic(&err, filePath)

	f, reader, err := pdf.Open(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	plainPages := make([]string, 0, numPages)
	layoutPages := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Str("file", filePath).Msg("Skipping unreadable page text")
		} else if strings.TrimSpace(pageText) != "" {
			plainPages = append(plainPages, pageText)
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			log.Warn().Err(err).Int("page", i).Str("file", filePath).Msg("Skipping page layout")
		} else {
			lines, tables := layoutRows(rows)
			if len(lines) > 0 {
				layoutPages = append(layoutPages, strings.Join(lines, "\n"))
			}
			res.Tables = append(res.Tables, tables...)
		}

		res.Images = append(res.Images, pageImages(page, i, filePath)...)
	}

	plain := strings.Join(plainPages, pageSeparator)
	layout := strings.Join(layoutPages, pageSeparator)
	res.Text = plain
	if len(strings.TrimSpace(layout)) > len(strings.TrimSpace(plain)) {
		res.Text = layout
	}

	res.Properties = pdfProperties(reader)
	res.Properties.PageCount = numPages
	res.PossiblyScanned = possiblyScanned(e.scan, res.Text, numPages)
	return res, nil
}

// a cell is every run of text that starts at the same x position in a row
type pdfCell struct {
	x    float64
	text string
}

func rowCells(row *pdf.Row) []pdfCell {
	var cells []pdfCell
	for _, t := range row.Content {
		if len(cells) > 0 && math.Abs(cells[len(cells)-1].x-t.X) < cellAlignPoints {
			cells[len(cells)-1].text += t.S
			continue
		}
		cells = append(cells, pdfCell{x: t.X, text: t.S})
	}
	out := cells[:0]
	for _, c := range cells {
		if strings.TrimSpace(c.text) != "" {
			c.text = strings.TrimSpace(c.text)
			out = append(out, c)
		}
	}
	return out
}

func alignedCells(a, b []pdfCell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i].x-b[i].x) >= cellAlignPoints {
			return false
		}
	}
	return true
}

// layoutRows rebuilds the page text row by row. Runs of at least two
// consecutive rows whose cells share the same column positions are also
// returned as tables.
func layoutRows(rows pdf.Rows) ([]string, []models.Table) {
	var (
		lines   []string
		tables  []models.Table
		pending [][]pdfCell
	)

	flush := func() {
		if len(pending) >= 2 {
			grid := make([][]string, 0, len(pending))
			for _, cells := range pending {
				row := make([]string, len(cells))
				for i, c := range cells {
					row[i] = c.text
				}
				grid = append(grid, row)
			}
			tables = append(tables, newTable(grid))
		}
		for _, cells := range pending {
			lines = append(lines, joinCells(cells))
		}
		pending = nil
	}

	for _, row := range rows {
		cells := rowCells(row)
		if len(cells) == 0 {
			continue
		}
		if len(cells) >= 2 && (len(pending) == 0 || alignedCells(pending[len(pending)-1], cells)) {
			pending = append(pending, cells)
			continue
		}
		flush()
		if len(cells) >= 2 {
			pending = append(pending, cells)
			continue
		}
		lines = append(lines, joinCells(cells))
	}
	flush()
	return lines, tables
}

func joinCells(cells []pdfCell) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = c.text
	}
	return strings.Join(parts, " ")
}

func pdfProperties(reader *pdf.Reader) models.DocumentProperties {
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return models.DocumentProperties{}
	}
	return models.DocumentProperties{
		Title:    strings.TrimSpace(info.Key("Title").Text()),
		Author:   strings.TrimSpace(info.Key("Author").Text()),
		Created:  parsePDFDate(info.Key("CreationDate").Text()),
		Modified: parsePDFDate(info.Key("ModDate").Text()),
	}
}

var pdfDateLayouts = []string{
	"20060102150405-0700",
	"20060102150405Z",
	"20060102150405",
	"200601021504",
	"2006010215",
	"20060102",
	"200601",
	"2006",
}

// parsePDFDate converts "D:YYYYMMDDHHmmSS+HH'mm'" style dates to RFC3339.
// Unparseable values are returned unchanged.
func parsePDFDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "D:")
	s = strings.ReplaceAll(s, "'", "")
	if strings.HasSuffix(s, "Z00") {
		s = strings.TrimSuffix(s, "00")
	}
	for _, layout := range pdfDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return raw
}

// pageImages decodes the raw or Flate-compressed image XObjects of a page.
// Other filters are skipped.
func pageImages(page pdf.Page, pageNum int, filePath string) []models.Image {
	xobjects := page.Resources().Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil
	}

	keys := xobjects.Keys()
	sort.Strings(keys)
	var images []models.Image
	for _, name := range keys {
		x := xobjects.Key(name)
		if x.Key("Subtype").Name() != "Image" {
			continue
		}
		img, err := decodePDFImage(x)
		if err != nil {
			log.Warn().Err(err).Int("page", pageNum).Str("image", name).Str("file", filePath).Msg("Skipping embedded image")
			continue
		}
		images = append(images, models.Image{
			Name:    fmt.Sprintf("page%d_%s", pageNum, name),
			Decoded: img,
		})
	}
	return images
}

func decodePDFImage(x pdf.Value) (img image.Image, err error) {
	defer recoverPanic(&err, "image stream")

	filter := x.Key("Filter")
	if filter.Kind() == pdf.Name && filter.Name() != "FlateDecode" {
		return nil, fmt.Errorf("unsupported image filter %s", filter.Name())
	}
	if filter.Kind() == pdf.Array {
		return nil, fmt.Errorf("unsupported filter chain")
	}
	if bpc := x.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, fmt.Errorf("unsupported bits per component %d", bpc)
	}

	width := int(x.Key("Width").Int64())
	height := int(x.Key("Height").Int64())
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}

	channels := 0
	switch x.Key("ColorSpace").Name() {
	case "DeviceGray":
		channels = 1
	case "DeviceRGB":
		channels = 3
	default:
		return nil, fmt.Errorf("unsupported color space %v", x.Key("ColorSpace"))
	}

	rc := x.Reader()
	defer rc.Close()
	data := make([]byte, width*height*channels)
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	if channels == 1 {
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, data)
		return gray, nil
	}
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		rgba.Set(i%width, i/width, color.RGBA{R: data[3*i], G: data[3*i+1], B: data[3*i+2], A: 255})
	}
	return rgba, nil
}
