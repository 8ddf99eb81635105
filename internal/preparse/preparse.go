// Package preparse extracts machine-readable structure directly from PDF
// chunks without invoking external recognition. Output is best-effort and
// used as a prior by the structured mapper.
package preparse

import (
	"bytes"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/buildscan/qto/internal/splitter"
)

// PageText is directly-extractable vector text for one source page.
type PageText struct {
	Page    int     `json:"page"`
	Text    string  `json:"text"`
	Quality float64 `json:"quality"`
}

// FloorAnchor is a page-header style floor label found in vector text. It
// lets the mapper confirm floor labels that OCR read with low confidence.
type FloorAnchor struct {
	Page  int    `json:"page"`
	Label string `json:"label"`
}

// Hints is the pre-parse output for one chunk. An empty hint set is valid:
// fully scanned pages simply carry no vector text.
type Hints struct {
	ChunkIndex int           `json:"chunk_index"`
	Pages      []PageText    `json:"pages,omitempty"`
	Anchors    []FloorAnchor `json:"anchors,omitempty"`
}

// Empty reports whether nothing usable was extracted.
func (h Hints) Empty() bool { return len(h.Pages) == 0 && len(h.Anchors) == 0 }

// Parser extracts vector text and layout anchors from chunk payloads.
type Parser struct {
	minQuality float64
}

// New creates a Parser. Pages scoring below minQuality are dropped from the
// hint set (garbage text from broken encodings hurts more than no text).
func New(minQuality float64) *Parser {
	if minQuality <= 0 {
		minQuality = 0.3
	}
	return &Parser{minQuality: minQuality}
}

// Parse extracts hints from the chunk. Absence of extractable structure is
// not an error; any parse failure yields an empty hint set.
func (p *Parser) Parse(chunk splitter.Chunk) Hints {
	hints := Hints{ChunkIndex: chunk.Index}

	reader, err := pdf.NewReader(bytes.NewReader(chunk.Data), int64(len(chunk.Data)))
	if err != nil {
		return hints
	}

	for rel := 1; rel <= reader.NumPage(); rel++ {
		text := extractPageText(reader, rel)
		if text == "" {
			continue
		}
		quality := assessQuality(text)
		if quality < p.minQuality {
			continue
		}
		page := chunk.StartPage + rel - 1
		hints.Pages = append(hints.Pages, PageText{Page: page, Text: text, Quality: quality})
		for _, label := range FindFloorLabels(text) {
			hints.Anchors = append(hints.Anchors, FloorAnchor{Page: page, Label: label})
		}
	}
	return hints
}

func extractPageText(reader *pdf.Reader, pageNum int) (text string) {
	// dslipak/pdf panics on some malformed content streams; a chunk page
	// that cannot be read contributes nothing.
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return ""
	}

	var sb strings.Builder
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		for _, row := range rows {
			for _, t := range row.Content {
				sb.WriteString(t.S)
				sb.WriteString(" ")
			}
			sb.WriteString("\n")
		}
		return strings.TrimSpace(sb.String())
	}

	fonts := make(map[string]*pdf.Font)
	plain, err := page.GetPlainText(fonts)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(plain)
}

// assessQuality scores extracted text on character distribution. Vector text
// layers produced by broken generators tend to decode into symbol soup.
func assessQuality(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	score := 0.2
	var wordlike, total int
	for _, r := range trimmed {
		if r == ' ' || r == '\n' || r == '\t' {
			continue
		}
		total++
		if isWordRune(r) {
			wordlike++
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(wordlike) / float64(total)
	if ratio >= 0.5 {
		score += 0.4
		// Word count only counts for anything when the runes themselves
		// look like words.
		if len(strings.Fields(trimmed)) > 5 {
			score += 0.2
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r >= 0x05D0 && r <= 0x05EA: // Hebrew letters
		return true
	}
	return false
}
