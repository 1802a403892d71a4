package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"document-index/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
)

type spreadsheetExtractor struct{}

// Extract reads every sheet into one Table. excelize is tried first; tealeg/xlsx
// handles workbooks excelize refuses.
func (spreadsheetExtractor) Extract(ctx context.Context, filePath string) (res models.ExtractionResult, err error) {
	defer recoverPanic(&err, filePath)

	sheets, props, err := readExcelize(ctx, filePath)
	if err != nil {
		log.Warn().Err(err).Str("file", filePath).Msg("excelize failed, retrying with xlsx")
		sheets, err = readTealeg(filePath)
		if err != nil {
			return res, fmt.Errorf("failed to open spreadsheet: %w", err)
		}
	}

	var text []string
	for _, s := range sheets {
		rows := padRows(s.rows)
		if len(rows) == 0 {
			continue
		}
		t := newTable(rows)
		res.Tables = append(res.Tables, t)
		text = append(text, fmt.Sprintf("## Sheet: %s\n%s", s.name, stringifyTable(t)))
	}
	res.Text = strings.Join(text, pageSeparator)
	props.PageCount = len(sheets)
	res.Properties = props
	return res, nil
}

type sheetRows struct {
	name string
	rows [][]string
}

func readExcelize(ctx context.Context, filePath string) ([]sheetRows, models.DocumentProperties, error) {
	var props models.DocumentProperties
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, props, err
	}
	defer f.Close()

	if dp, err := f.GetDocProps(); err == nil && dp != nil {
		props.Title = dp.Title
		props.Author = dp.Creator
		props.Created = dp.Created
		props.Modified = dp.Modified
	}

	var sheets []sheetRows
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, props, err
		}
		rows, err := f.GetRows(name)
		if err != nil {
			log.Warn().Err(err).Str("sheet", name).Str("file", filePath).Msg("Skipping unreadable sheet")
			continue
		}
		sheets = append(sheets, sheetRows{name: name, rows: rows})
	}
	return sheets, props, nil
}

func readTealeg(filePath string) ([]sheetRows, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	var sheets []sheetRows
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, sheetRows{name: sheet.Name, rows: rows})
	}
	return sheets, nil
}

// padRows drops fully empty rows and pads the rest to the widest row.
func padRows(rows [][]string) [][]string {
	width := 0
	var out [][]string
	for _, row := range rows {
		empty := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		width = max(width, len(row))
		out = append(out, row)
	}
	for i, row := range out {
		if len(row) < width {
			padded := make([]string, width)
			copy(padded, row)
			out[i] = padded
		}
	}
	return out
}

type csvExtractor struct{}

// Extract parses the file into one Table whose first record is the header.
func (csvExtractor) Extract(_ context.Context, filePath string) (models.ExtractionResult, error) {
	var res models.ExtractionResult
	f, err := os.Open(filePath)
	if err != nil {
		return res, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("file", filePath).Msg("Skipping malformed csv record")
			continue
		}
		rows = append(rows, rec)
	}
	rows = padRows(rows)
	if len(rows) == 0 {
		return res, nil
	}

	t := models.Table{Header: rows[0], Rows: rows[1:]}
	res.Tables = []models.Table{t}
	res.Text = stringifyTable(t)
	return res, nil
}
