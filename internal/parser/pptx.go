package parser

import (
	"archive/zip"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"document-index/internal/models"

	"github.com/rs/zerolog/log"
)

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type pptxExtractor struct{}

type slideEntry struct {
	num  int
	file *zip.File
}

func (pptxExtractor) Extract(ctx context.Context, filePath string) (res models.ExtractionResult, err error) {
	defer recoverPanic(&err, filePath)

	z, err := zip.OpenReader(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer z.Close()

	var slides []slideEntry
	for _, f := range z.File {
		m := slidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slideEntry{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var texts []string
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := readZipEntry(s.file)
		if err != nil {
			log.Warn().Err(err).Int("slide", s.num).Str("file", filePath).Msg("Skipping unreadable slide")
			continue
		}
		body, err := walkOOXML(data)
		if err != nil {
			log.Warn().Err(err).Int("slide", s.num).Str("file", filePath).Msg("Skipping malformed slide")
			continue
		}
		if t := body.text(); strings.TrimSpace(t) != "" {
			texts = append(texts, t)
		}
		res.Tables = append(res.Tables, body.Tables...)
	}

	res.Text = strings.Join(texts, pageSeparator)
	res.Images = zipMedia(z.File, "ppt/media/")

	props, app := officeProperties(z.File)
	props.PageCount = len(slides)
	if props.PageCount == 0 {
		props.PageCount = atoiOrZero(app.Slides)
	}
	res.Properties = props
	res.PossiblyScanned = countVisible(res.Text) == 0 && len(res.Tables) == 0 && len(res.Images) > 0
	return res, nil
}
