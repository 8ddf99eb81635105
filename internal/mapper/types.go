// Package mapper turns raw recognition output into typed floor, room and
// quantity objects using an LLM-backed extraction service.
package mapper

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
)

// Language selects prompt and vocabulary conventions for extraction.
type Language string

const (
	LanguageHebrew  Language = "he"
	LanguageEnglish Language = "en"
)

// Valid reports whether the language is one the mapper supports.
func (l Language) Valid() bool {
	return l == LanguageHebrew || l == LanguageEnglish
}

// QuantityItem is a single material quantity extracted for a room.
type QuantityItem struct {
	Material   string          `json:"material"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       string          `json:"unit"`
	Confidence float64         `json:"confidence"`
}

// RoomDraft is a room as seen by a single chunk. Identity across chunks is
// reconciled later by the aggregator.
type RoomDraft struct {
	Label string         `json:"label"`
	Items []QuantityItem `json:"items"`
}

// FloorDraft groups room drafts under a chunk-local floor label.
type FloorDraft struct {
	Label string      `json:"label"`
	Rooms []RoomDraft `json:"rooms"`
}

// MappedChunk is the mapper's validated output for one chunk. DroppedItems
// counts extraction results discarded for missing or unparsable quantities.
type MappedChunk struct {
	ChunkIndex   int          `json:"chunk_index"`
	StartPage    int          `json:"start_page"`
	EndPage      int          `json:"end_page"`
	Floors       []FloorDraft `json:"floors"`
	DroppedItems int          `json:"dropped_items"`
}

// Mapper converts a chunk's recognition result into domain drafts.
type Mapper interface {
	MapChunk(ctx context.Context, rec *recognize.Result, hints preparse.Hints, lang Language) (*MappedChunk, error)
}

// ServiceError indicates the remote mapping call itself failed. Imperfect
// output is not a ServiceError; invalid items are dropped instead.
type ServiceError struct {
	ChunkIndex int
	Err        error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("mapping service failed for chunk %d: %v", e.ChunkIndex, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
