package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"document-index/internal/models"

	"github.com/rs/zerolog/log"
)

// ooxmlBody is the paragraph and table content of one OOXML part.
type ooxmlBody struct {
	Paragraphs []string
	Tables     []models.Table
}

// walkOOXML collects paragraphs outside tables and table cells inside them.
// WordprocessingML (w:) and DrawingML (a:) share the local names it looks at.
func walkOOXML(data []byte) (ooxmlBody, error) {
	var (
		body   ooxmlBody
		para   strings.Builder
		inText bool
		depth  int // table nesting
		rows   [][]string
		row    []string
		cell   strings.Builder
		inPara bool
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return body, fmt.Errorf("failed to decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
				if depth == 1 {
					rows = nil
				}
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					cell.Reset()
				}
			case "p":
				inPara = true
				if depth == 0 {
					para.Reset()
				} else if cell.Len() > 0 {
					cell.WriteString(" ")
				}
			case "t":
				inText = true
			case "tab":
				writeOOXML(depth, &para, &cell, "\t")
			case "br", "cr":
				writeOOXML(depth, &para, &cell, "\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inPara = false
				if depth == 0 {
					body.Paragraphs = append(body.Paragraphs, para.String())
				}
			case "tc":
				if depth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if depth == 1 && len(row) > 0 {
					rows = append(rows, row)
				}
			case "tbl":
				if depth == 1 && len(rows) > 0 {
					body.Tables = append(body.Tables, newOOXMLTable(rows))
				}
				depth--
			}
		case xml.CharData:
			if inText && inPara {
				writeOOXML(depth, &para, &cell, string(t))
			}
		}
	}
	return body, nil
}

func writeOOXML(depth int, para, cell *strings.Builder, s string) {
	if depth > 0 {
		cell.WriteString(s)
		return
	}
	para.WriteString(s)
}

// office tables promote the first row when all of its cells are filled
func newOOXMLTable(rows [][]string) models.Table {
	if len(rows) > 1 {
		filled := true
		for _, c := range rows[0] {
			if c == "" {
				filled = false
				break
			}
		}
		if filled {
			return models.Table{Header: rows[0], Rows: rows[1:]}
		}
	}
	return models.Table{Rows: rows}
}

// text returns the non-empty paragraphs joined by newlines.
func (b ooxmlBody) text() string {
	var lines []string
	for _, p := range b.Paragraphs {
		if strings.TrimSpace(p) != "" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n")
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func findZipEntry(files []*zip.File, name string) *zip.File {
	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// zipMedia returns every image under prefix, in archive name order.
func zipMedia(files []*zip.File, prefix string) []models.Image {
	var images []models.Image
	for _, f := range files {
		if !strings.HasPrefix(f.Name, prefix) || !isRasterName(f.Name) {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			log.Warn().Err(err).Str("entry", f.Name).Msg("Skipping unreadable media entry")
			continue
		}
		images = append(images, models.Image{Name: path.Base(f.Name), Data: data})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images
}

func isRasterName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

type coreProperties struct {
	Title    string `xml:"title"`
	Creator  string `xml:"creator"`
	Created  string `xml:"created"`
	Modified string `xml:"modified"`
}

type appProperties struct {
	Pages  string `xml:"Pages"`
	Slides string `xml:"Slides"`
}

// officeProperties reads docProps/core.xml and docProps/app.xml when present.
func officeProperties(files []*zip.File) (models.DocumentProperties, appProperties) {
	var props models.DocumentProperties
	var app appProperties

	if f := findZipEntry(files, "docProps/core.xml"); f != nil {
		if data, err := readZipEntry(f); err == nil {
			var core coreProperties
			if err := xml.Unmarshal(data, &core); err != nil {
				log.Warn().Err(err).Msg("Skipping malformed core properties")
			} else {
				props.Title = strings.TrimSpace(core.Title)
				props.Author = strings.TrimSpace(core.Creator)
				props.Created = strings.TrimSpace(core.Created)
				props.Modified = strings.TrimSpace(core.Modified)
			}
		}
	}
	if f := findZipEntry(files, "docProps/app.xml"); f != nil {
		if data, err := readZipEntry(f); err == nil {
			_ = xml.Unmarshal(data, &app)
		}
	}
	return props, app
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
