package mapper

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
)

// Stub is a deterministic Mapper for tests and offline runs. If Fn is set it
// is invoked per chunk. Otherwise block texts that themselves contain the
// extraction JSON are decoded directly, which lets fixtures script exact
// mapper output through the recognition layer.
type Stub struct {
	Fn    func(rec *recognize.Result, hints preparse.Hints, lang Language) (*MappedChunk, error)
	Calls atomic.Int64
}

// MapChunk implements Mapper.
func (s *Stub) MapChunk(_ context.Context, rec *recognize.Result, hints preparse.Hints, lang Language) (*MappedChunk, error) {
	s.Calls.Add(1)
	if s.Fn != nil {
		return s.Fn(rec, hints, lang)
	}

	var raw rawChunk
	for _, b := range rec.Blocks {
		text := strings.TrimSpace(b.Text)
		if !strings.HasPrefix(text, "{") {
			continue
		}
		var page rawChunk
		if err := json.Unmarshal([]byte(text), &page); err != nil {
			continue
		}
		raw.Floors = append(raw.Floors, page.Floors...)
	}
	return validate(raw, rec.ChunkIndex, rec.StartPage, rec.EndPage), nil
}
