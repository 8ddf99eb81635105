package recognize

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/buildscan/qto/internal/splitter"
)

// Stub is a deterministic in-process Recognizer for tests and offline runs.
// If Fn is set it is invoked per chunk; otherwise one synthetic block per
// page is produced.
type Stub struct {
	Fn    func(chunk splitter.Chunk) (*Result, error)
	Calls atomic.Int64
}

// Recognize implements Recognizer.
func (s *Stub) Recognize(_ context.Context, chunk splitter.Chunk) (*Result, error) {
	s.Calls.Add(1)
	if s.Fn != nil {
		return s.Fn(chunk)
	}
	res := &Result{
		ChunkIndex: chunk.Index,
		StartPage:  chunk.StartPage,
		EndPage:    chunk.EndPage,
	}
	for page := chunk.StartPage; page <= chunk.EndPage; page++ {
		res.Blocks = append(res.Blocks, TextBlock{
			Page:       page,
			Box:        BoundingBox{X: 72, Y: 720, Width: 468, Height: 14},
			Text:       fmt.Sprintf("page %d", page),
			Confidence: 1.0,
		})
	}
	return res, nil
}
