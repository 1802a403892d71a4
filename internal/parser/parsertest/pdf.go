// Package parsertest writes document fixtures for tests.
package parsertest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Run is one line of text drawn at (X, Y).
type Run struct {
	X, Y float64
	Text string
}

// Page holds the text runs of one page and an optional image.
type Page struct {
	Runs  []Run
	Image []byte // 2x2 DeviceGray pixels, optional
}

// WritePDF writes a minimal uncompressed PDF with one Tm-positioned Tj per
// run to dir/name and returns its path.
func WritePDF(t *testing.T, dir, name, title string, pages []Page) string {
	t.Helper()

	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) int {
		offsets = append(offsets, buf.Len())
		n := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, body)
		return n
	}
	stream := func(dict string, data []byte) int {
		offsets = append(offsets, buf.Len())
		n := len(offsets)
		fmt.Fprintf(&buf, "%d 0 obj\n<< %s /Length %d >>\nstream\n", n, dict, len(data))
		buf.Write(data)
		buf.WriteString("\nendstream\nendobj\n")
		return n
	}

	buf.WriteString("%PDF-1.4\n")
	// catalog and page tree are written first with fixed numbers
	pagesObj := 2
	firstPage := 5
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+3*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	obj(fmt.Sprintf("<< /Title (%s) /Author (Jane Roe) /CreationDate (D:20240102030405Z) >>", title))

	for _, p := range pages {
		var content strings.Builder
		content.WriteString("BT\n/F1 12 Tf\n")
		for _, r := range p.Runs {
			fmt.Fprintf(&content, "1 0 0 1 %.0f %.0f Tm\n(%s) Tj\n", r.X, r.Y, escapePDF(r.Text))
		}
		content.WriteString("ET\n")
		if p.Image != nil {
			content.WriteString("q 100 0 0 100 72 72 cm /Im1 Do Q\n")
		}

		pageNum := len(offsets) + 1
		xobject := ""
		if p.Image != nil {
			xobject = fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", pageNum+2)
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >>%s >> /Contents %d 0 R >>",
			pagesObj, xobject, pageNum+1))
		stream("", []byte(content.String()))
		if p.Image != nil {
			stream("/Type /XObject /Subtype /Image /Width 2 /Height 2 /ColorSpace /DeviceGray /BitsPerComponent 8", p.Image)
		} else {
			obj("null")
		}
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func escapePDF(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
