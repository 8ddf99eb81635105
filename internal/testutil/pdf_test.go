package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPDFStructure(t *testing.T) {
	doc := BuildPDF(PDFPage{Lines: []string{"Ground Floor", "Kitchen"}})

	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-1.4")))
	assert.True(t, bytes.HasSuffix(doc, []byte("%%EOF\n")))
	assert.Contains(t, string(doc), "/Type /Catalog")
	assert.Contains(t, string(doc), "(Ground Floor) Tj")
}

func TestBuildPDFPageCount(t *testing.T) {
	doc := BuildPDF(PDFPage{}, PDFPage{}, PDFPage{})
	assert.Contains(t, string(doc), "/Count 3")

	// No pages still yields a one-page document; PDFs need at least one page.
	doc = BuildPDF()
	assert.Contains(t, string(doc), "/Count 1")
}

func TestBuildPDFXrefOffsetsAreAccurate(t *testing.T) {
	doc := BuildPDF(PDFPage{Lines: []string{"content"}})

	// Each xref entry must point at the "N 0 obj" it claims to.
	idx := bytes.Index(doc, []byte("xref\n"))
	require.Positive(t, idx)

	lines := bytes.Split(doc[idx:], []byte("\n"))
	// lines[0]="xref", lines[1]="0 N", lines[2]=free entry, objects follow.
	for objNum, line := range lines[3:] {
		if len(line) < 10 || line[0] < '0' || line[0] > '9' {
			break
		}
		var offset int
		for _, c := range line[:10] {
			offset = offset*10 + int(c-'0')
		}
		expected := []byte{byte('1' + objNum), ' ', '0', ' ', 'o', 'b', 'j'}
		assert.True(t, bytes.HasPrefix(doc[offset:], expected),
			"object %d offset %d points at %q", objNum+1, offset, doc[offset:offset+7])
	}
}

func TestBuildTextPDF(t *testing.T) {
	doc := BuildTextPDF("First Floor\nKitchen tile", "Second Floor")

	s := string(doc)
	assert.Contains(t, s, "(First Floor) Tj")
	assert.Contains(t, s, "(Kitchen tile) Tj")
	assert.Contains(t, s, "(Second Floor) Tj")
	assert.Contains(t, s, "/Count 2")
}

func TestEscapePDFString(t *testing.T) {
	assert.Equal(t, `room \(wet\)`, escapePDFString("room (wet)"))
	assert.Equal(t, `back\\slash`, escapePDFString(`back\slash`))
}
