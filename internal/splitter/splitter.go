package splitter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Chunk is a contiguous page range of the source PDF with its own payload.
// Chunks are non-overlapping and, taken in order, cover the full page range
// of the source document.
type Chunk struct {
	Index     int
	StartPage int
	EndPage   int
	Data      []byte
}

// PageCount returns the number of pages in the chunk.
func (c Chunk) PageCount() int { return c.EndPage - c.StartPage + 1 }

// PageRange renders the chunk's page range as "start-end".
func (c Chunk) PageRange() string {
	if c.StartPage == c.EndPage {
		return fmt.Sprintf("%d", c.StartPage)
	}
	return fmt.Sprintf("%d-%d", c.StartPage, c.EndPage)
}

// Config bounds chunk sizes. A chunk is closed as soon as either limit would
// be exceeded by the next page.
type Config struct {
	MaxPagesPerChunk int
	MaxChunkBytes    int64
}

// DefaultConfig returns splitter defaults sized for typical OCR request limits.
func DefaultConfig() Config {
	return Config{
		MaxPagesPerChunk: 8,
		MaxChunkBytes:    8 * 1024 * 1024,
	}
}

// Splitter partitions PDF documents into page-range chunks.
type Splitter struct {
	cfg Config
}

// New creates a Splitter with the given config, applying defaults for
// unset limits.
func New(cfg Config) *Splitter {
	if cfg.MaxPagesPerChunk <= 0 {
		cfg.MaxPagesPerChunk = DefaultConfig().MaxPagesPerChunk
	}
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = DefaultConfig().MaxChunkBytes
	}
	return &Splitter{cfg: cfg}
}

// Split partitions the document into ordered chunks. Page order is preserved
// and every source page lands in exactly one chunk. Returns
// MalformedDocumentError when the bytes cannot be parsed into pages.
func (s *Splitter) Split(pdfBytes []byte) (chunks []Chunk, err error) {
	// pdfcpu panics on some truncated or corrupt inputs instead of
	// returning an error.
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = &MalformedDocumentError{Reason: fmt.Sprintf("unable to parse PDF: %v", r)}
		}
	}()

	conf := model.NewDefaultConfiguration()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdfBytes), conf)
	if err != nil {
		if isEncryptionError(err) {
			return nil, &MalformedDocumentError{Reason: "document is encrypted", Err: err}
		}
		return nil, &MalformedDocumentError{Reason: "unable to parse PDF", Err: err}
	}
	if ctx.PageCount < 1 {
		return nil, &MalformedDocumentError{Reason: "document has no pages"}
	}

	pageSizes, err := s.measurePages(pdfBytes, ctx.PageCount, conf)
	if err != nil {
		return nil, err
	}

	start := 1
	var pages int
	var size int64
	for page := 1; page <= ctx.PageCount; page++ {
		if pages > 0 && (pages >= s.cfg.MaxPagesPerChunk || size+pageSizes[page] > s.cfg.MaxChunkBytes) {
			chunk, err := s.buildChunk(pdfBytes, len(chunks), start, page-1, conf)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, chunk)
			start = page
			pages = 0
			size = 0
		}
		pages++
		size += pageSizes[page]
	}
	chunk, err := s.buildChunk(pdfBytes, len(chunks), start, ctx.PageCount, conf)
	if err != nil {
		return nil, err
	}
	chunks = append(chunks, chunk)

	return chunks, nil
}

// measurePages extracts each page individually to get a real per-page byte
// weight. Estimating from total size misattributes shared resources to
// small pages.
func (s *Splitter) measurePages(pdfBytes []byte, pageCount int, conf *model.Configuration) (map[int]int64, error) {
	sizes := make(map[int]int64, pageCount)
	for page := 1; page <= pageCount; page++ {
		var buf bytes.Buffer
		sel := []string{fmt.Sprintf("%d", page)}
		if err := api.Trim(bytes.NewReader(pdfBytes), &buf, sel, conf); err != nil {
			return nil, &MalformedDocumentError{
				Reason: fmt.Sprintf("unable to extract page %d", page),
				Err:    err,
			}
		}
		sizes[page] = int64(buf.Len())
	}
	return sizes, nil
}

func (s *Splitter) buildChunk(pdfBytes []byte, index, startPage, endPage int, conf *model.Configuration) (Chunk, error) {
	var buf bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", startPage, endPage)}
	if err := api.Trim(bytes.NewReader(pdfBytes), &buf, sel, conf); err != nil {
		return Chunk{}, &MalformedDocumentError{
			Reason: fmt.Sprintf("unable to extract pages %d-%d", startPage, endPage),
			Err:    err,
		}
	}
	return Chunk{
		Index:     index,
		StartPage: startPage,
		EndPage:   endPage,
		Data:      buf.Bytes(),
	}, nil
}

// isEncryptionError checks whether a pdfcpu error indicates password
// protection rather than corruption.
func isEncryptionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encrypted") ||
		strings.Contains(msg, "password") ||
		strings.Contains(msg, "decrypt")
}
