// Package aggregate merges per-chunk mapped drafts into one document-level
// result with deduplicated floors and rooms and exact quantity totals.
package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a chunk-level failure in the final result.
type ErrorKind string

const (
	ErrRecognitionTimeout     ErrorKind = "recognition_timeout"
	ErrRecognitionQuota       ErrorKind = "recognition_quota_exceeded"
	ErrRecognitionUnavailable ErrorKind = "recognition_unavailable"
	ErrMappingFailed          ErrorKind = "mapping_failed"
	ErrDeadlineExceeded       ErrorKind = "deadline_exceeded"
)

// ChunkFailure records a page range that contributed nothing to the result.
type ChunkFailure struct {
	ChunkIndex int       `json:"chunk_index"`
	StartPage  int       `json:"-"`
	EndPage    int       `json:"-"`
	PageRange  string    `json:"page_range"`
	Kind       ErrorKind `json:"error_kind"`
	Message    string    `json:"message,omitempty"`
}

// NewChunkFailure builds a failure marker for the given page range.
func NewChunkFailure(chunkIndex, startPage, endPage int, kind ErrorKind, message string) ChunkFailure {
	pr := fmt.Sprintf("%d-%d", startPage, endPage)
	if startPage == endPage {
		pr = fmt.Sprintf("%d", startPage)
	}
	return ChunkFailure{
		ChunkIndex: chunkIndex,
		StartPage:  startPage,
		EndPage:    endPage,
		PageRange:  pr,
		Kind:       kind,
		Message:    message,
	}
}

// QuantityItem is a merged material quantity within a room.
type QuantityItem struct {
	Material   string          `json:"material"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
	Confidence float64         `json:"confidence"`
}

// Room holds merged quantity items, unique by normalized label within its
// floor.
type Room struct {
	Label string         `json:"label"`
	Items []QuantityItem `json:"items"`
}

// Floor holds ordered rooms, unique by normalized label across the document.
type Floor struct {
	Label string `json:"label"`
	Rooms []Room `json:"rooms"`
}

// MaterialTotal is the document-wide total for one (material, unit) pair.
type MaterialTotal struct {
	Material string          `json:"material"`
	Unit     string          `json:"unit"`
	Total    decimal.Decimal `json:"total"`
}

// Result is the final document-level extraction outcome. Partial is true
// whenever any chunk failed; the failed page ranges are always listed.
type Result struct {
	Floors           []Floor         `json:"floors"`
	Summary          []MaterialTotal `json:"summary"`
	Partial          bool            `json:"partial"`
	Failures         []ChunkFailure  `json:"failures,omitempty"`
	ChunksTotal      int             `json:"chunks_total"`
	ChunksSucceeded  int             `json:"chunks_succeeded"`
	DroppedItems     int             `json:"dropped_items"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
}
