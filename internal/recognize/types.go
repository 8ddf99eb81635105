// Package recognize adapts a remote OCR service into the pipeline's
// intermediate representation.
package recognize

import (
	"context"

	"github.com/buildscan/qto/internal/splitter"
)

// BoundingBox is an axis-aligned region in page coordinates (points).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TextBlock is one recognized text region. Page numbers are absolute
// source-document pages, not chunk-relative.
type TextBlock struct {
	Page       int         `json:"page"`
	Box        BoundingBox `json:"box"`
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
}

// Table is a recognized tabular region with ordered rows and cells.
type Table struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}

// Result is the per-chunk intermediate representation. It is owned by the
// chunk that produced it and never mutated after creation.
type Result struct {
	ChunkIndex int         `json:"chunk_index"`
	StartPage  int         `json:"start_page"`
	EndPage    int         `json:"end_page"`
	Blocks     []TextBlock `json:"blocks"`
	Tables     []Table     `json:"tables,omitempty"`
}

// Recognizer converts a chunk's pixels into raw text and table structure.
// Implementations make no retries; retry policy belongs to the caller.
type Recognizer interface {
	Recognize(ctx context.Context, chunk splitter.Chunk) (*Result, error)
}
