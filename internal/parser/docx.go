package parser

import (
	"archive/zip"
	"context"
	"fmt"

	"document-index/internal/models"

	"github.com/nguyenthenguyen/docx"
)

// paragraphs per page when the file carries no page statistics
const paragraphsPerPage = 20

type docxExtractor struct{}

func (docxExtractor) Extract(ctx context.Context, filePath string) (res models.ExtractionResult, err error) {
	defer recoverPanic(&err, filePath)

	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to open docx: %w", err)
	}
	defer r.Close()

	body, err := walkOOXML([]byte(r.Editable().GetContent()))
	if err != nil {
		return res, fmt.Errorf("failed to parse docx body: %w", err)
	}
	res.Text = body.text()
	res.Tables = body.Tables

	z, err := zip.OpenReader(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to open docx archive: %w", err)
	}
	defer z.Close()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Images = zipMedia(z.File, "word/media/")

	props, app := officeProperties(z.File)
	props.PageCount = atoiOrZero(app.Pages)
	if props.PageCount == 0 {
		props.PageCount = max(1, len(body.Paragraphs)/paragraphsPerPage)
	}
	res.Properties = props
	res.PossiblyScanned = countVisible(res.Text) == 0 && len(res.Tables) == 0 && len(res.Images) > 0
	return res, nil
}
