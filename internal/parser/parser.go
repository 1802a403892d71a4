package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"document-index/internal/config"
	"document-index/internal/models"

	"github.com/rs/zerolog/log"
)

// Format is the closed set of source formats the extraction layer knows.
type Format int

const (
	FormatText Format = iota
	FormatPDF
	FormatDOCX
	FormatPPTX
	FormatSpreadsheet
	FormatCSV
	FormatMarkdown
	FormatMarkup
	FormatImage
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatPPTX:
		return "pptx"
	case FormatSpreadsheet:
		return "spreadsheet"
	case FormatCSV:
		return "csv"
	case FormatMarkdown:
		return "markdown"
	case FormatMarkup:
		return "markup"
	case FormatImage:
		return "image"
	default:
		return "text"
	}
}

// DetectFormat maps a file extension to its Format. Unknown extensions are plain text.
func DetectFormat(filePath string) Format {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".pptx":
		return FormatPPTX
	case ".xlsx", ".xlsm", ".xltx":
		return FormatSpreadsheet
	case ".csv":
		return FormatCSV
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm", ".xml":
		return FormatMarkup
	case ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp", ".gif", ".webp":
		return FormatImage
	default:
		return FormatText
	}
}

// Extractor is the common contract of every format adapter.
type Extractor interface {
	Extract(ctx context.Context, filePath string) (models.ExtractionResult, error)
}

// Parser dispatches files to the adapter of their Format.
type Parser struct {
	scan     config.ScanConfig
	adapters map[Format]Extractor
}

// New builds a parser using the possibly-scanned thresholds from cfg.
func New(cfg config.ScanConfig) *Parser {
	if cfg.MinCharsPerPage <= 0 {
		cfg.MinCharsPerPage = 50
	}
	if cfg.MinTotalChars <= 0 {
		cfg.MinTotalChars = 200
	}
	p := &Parser{scan: cfg}
	p.adapters = map[Format]Extractor{
		FormatPDF:         &pdfExtractor{scan: cfg},
		FormatDOCX:        docxExtractor{},
		FormatPPTX:        pptxExtractor{},
		FormatSpreadsheet: spreadsheetExtractor{},
		FormatCSV:         csvExtractor{},
		FormatMarkdown:    markdownExtractor{},
		FormatMarkup:      markupExtractor{},
		FormatImage:       imageExtractor{},
		FormatText:        textExtractor{},
	}
	return p
}

// Extract runs the adapter for filePath. Adapter failures degrade to an empty
// result; the caller decides whether that is fatal.
func (p *Parser) Extract(ctx context.Context, filePath string) (models.ExtractionResult, Format) {
	format := DetectFormat(filePath)
	res, err := p.adapters[format].Extract(ctx, filePath)
	if err != nil {
		log.Warn().Err(err).Str("file", filePath).Str("format", format.String()).Msg("Extraction failed, continuing with empty result")
		return models.ExtractionResult{}, format
	}
	log.Debug().
		Str("file", filePath).
		Str("format", format.String()).
		Int("text_len", len(res.Text)).
		Int("tables", len(res.Tables)).
		Int("images", len(res.Images)).
		Bool("possibly_scanned", res.PossiblyScanned).
		Msg("Extracted document")
	return res, format
}

// possiblyScanned applies the page-oriented heuristic: too little text per page
// and in total, or no text at all despite having pages.
func possiblyScanned(scan config.ScanConfig, text string, pages int) bool {
	if pages <= 0 {
		return false
	}
	total := countVisible(text)
	if total == 0 {
		return true
	}
	avg := total / pages
	return avg < scan.MinCharsPerPage && total < scan.MinTotalChars
}

func countVisible(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// newTable promotes the first row to a header when every cell in it is a
// non-empty, non-numeric string.
func newTable(rows [][]string) models.Table {
	if len(rows) > 1 && isHeaderRow(rows[0]) {
		return models.Table{Header: rows[0], Rows: rows[1:]}
	}
	return models.Table{Rows: rows}
}

func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	for _, cell := range row {
		c := strings.TrimSpace(cell)
		if c == "" {
			return false
		}
		if _, err := strconv.ParseFloat(c, 64); err == nil {
			return false
		}
	}
	return true
}

// stringifyTable renders a table as tab-separated lines for the text channel.
func stringifyTable(t models.Table) string {
	var sb strings.Builder
	if len(t.Header) > 0 {
		sb.WriteString(strings.Join(t.Header, "\t"))
		sb.WriteString("\n")
	}
	for _, row := range t.Rows {
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// recoverPanic turns a library panic into an error for per-item handling.
func recoverPanic(err *error, what string) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("failed to read %s: %v", what, r)
	}
}
