// Package testutil provides synthetic document builders shared by tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// PDFPage describes one page of a synthetic document.
type PDFPage struct {
	Lines []string
}

// BuildPDF renders a minimal but structurally valid PDF with one content
// stream per page. Good enough for pdfcpu validation and vector text
// extraction without shipping binary fixtures.
func BuildPDF(pages ...PDFPage) []byte {
	if len(pages) == 0 {
		pages = []PDFPage{{}}
	}

	n := len(pages)
	// Object layout: 1 catalog, 2 page tree, 3 font, 4..3+n pages,
	// 4+n..3+2n content streams.
	objCount := 3 + 2*n
	offsets := make([]int, objCount+1)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+i)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i := range pages {
		writeObj(4+i, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
			4+n+i))
	}

	for i, page := range pages {
		stream := contentStream(page.Lines)
		writeObj(4+n+i, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", objCount+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= objCount; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xrefStart)

	return buf.Bytes()
}

// BuildTextPDF builds a document with one string per page.
func BuildTextPDF(pageTexts ...string) []byte {
	pages := make([]PDFPage, len(pageTexts))
	for i, text := range pageTexts {
		if text != "" {
			pages[i] = PDFPage{Lines: strings.Split(text, "\n")}
		}
	}
	return BuildPDF(pages...)
}

func contentStream(lines []string) string {
	var sb strings.Builder
	sb.WriteString("BT\n/F1 12 Tf\n72 720 Td\n14 TL\n")
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("T*\n")
		}
		fmt.Fprintf(&sb, "(%s) Tj\n", escapePDFString(line))
	}
	sb.WriteString("ET\n")
	return sb.String()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)")
	return r.Replace(s)
}
