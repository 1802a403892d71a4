package parser

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"document-index/internal/models"

	"github.com/gogs/chardet"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	scriptStyleRe = regexp.MustCompile(models.ScriptStyleRegex)
	tagRe         = regexp.MustCompile(models.TagRegex)
	titleRe       = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
	hSpaceRe      = regexp.MustCompile(`[ \t]+`)
)

// decodeText returns data as UTF-8, guessing the source charset when needed.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	if best, err := chardet.NewTextDetector().DetectBest(data); err == nil {
		if enc, err := htmlindex.Get(best.Charset); err == nil {
			if out, err := enc.NewDecoder().Bytes(data); err == nil {
				return string(out)
			}
		}
		log.Debug().Str("charset", best.Charset).Msg("Charset not decodable, replacing invalid bytes")
	}
	return strings.ToValidUTF8(string(data), "�")
}

func readText(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return decodeText(data), nil
}

type textExtractor struct{}

func (textExtractor) Extract(_ context.Context, filePath string) (models.ExtractionResult, error) {
	text, err := readText(filePath)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	return models.ExtractionResult{Text: text}, nil
}

type markupExtractor struct{}

// Extract strips script and style blocks and every tag from HTML or XML input.
func (markupExtractor) Extract(_ context.Context, filePath string) (models.ExtractionResult, error) {
	var res models.ExtractionResult
	raw, err := readText(filePath)
	if err != nil {
		return res, err
	}
	if m := titleRe.FindStringSubmatch(raw); m != nil {
		res.Properties.Title = strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(m[1], "")))
	}
	res.Text = stripMarkup(raw)
	return res, nil
}

func stripMarkup(s string) string {
	s = scriptStyleRe.ReplaceAllString(s, " ")
	s = titleRe.ReplaceAllString(s, " ")
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = hSpaceRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

type markdownExtractor struct{}

// Extract renders the markdown AST to plain text and lifts GFM tables out as Tables.
func (markdownExtractor) Extract(_ context.Context, filePath string) (models.ExtractionResult, error) {
	var res models.ExtractionResult
	data, err := os.ReadFile(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to read file: %w", err)
	}
	src := []byte(decodeText(data))

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var blocks []string
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *extast.Table:
			res.Tables = append(res.Tables, markdownTable(node, src))
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			t := inlineText(node, src)
			if node.Level == 1 && res.Properties.Title == "" {
				res.Properties.Title = t
			}
			blocks = append(blocks, t)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			blocks = append(blocks, inlineText(node, src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			blocks = append(blocks, strings.TrimRight(blockLines(node, src), "\n"))
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock:
			blocks = append(blocks, stripMarkup(blockLines(node, src)))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to walk markdown: %w", err)
	}

	var kept []string
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			kept = append(kept, b)
		}
	}
	res.Text = strings.Join(kept, "\n\n")
	res.Properties.Title = strings.TrimSpace(res.Properties.Title)
	return res, nil
}

func markdownTable(t *extast.Table, src []byte) models.Table {
	var table models.Table
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(inlineText(cell, src)))
		}
		if _, ok := row.(*extast.TableHeader); ok {
			table.Header = cells
			continue
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}

func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.AutoLink:
			sb.Write(t.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func blockLines(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

type imageExtractor struct{}

// Extract treats the whole file as one image that needs OCR.
func (imageExtractor) Extract(_ context.Context, filePath string) (models.ExtractionResult, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("failed to read image: %w", err)
	}
	return models.ExtractionResult{
		Images:          []models.Image{{Name: filepath.Base(filePath), Data: data}},
		PossiblyScanned: true,
		Properties:      models.DocumentProperties{PageCount: 1},
	}, nil
}
