package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildscan/qto/internal/aggregate"
	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
	"github.com/buildscan/qto/internal/splitter"
	"github.com/buildscan/qto/internal/testutil"
)

// scriptedRecognizer returns one block per chunk whose text is the extraction
// JSON the default mapper stub decodes. Keyed by chunk index.
func scriptedRecognizer(payloads map[int]string) *recognize.Stub {
	return &recognize.Stub{Fn: func(chunk splitter.Chunk) (*recognize.Result, error) {
		res := &recognize.Result{
			ChunkIndex: chunk.Index,
			StartPage:  chunk.StartPage,
			EndPage:    chunk.EndPage,
		}
		if payload, ok := payloads[chunk.Index]; ok {
			res.Blocks = append(res.Blocks, recognize.TextBlock{
				Page:       chunk.StartPage,
				Text:       payload,
				Confidence: 1.0,
			})
		}
		return res, nil
	}}
}

func floorJSON(floor, room, material, qty, unit string) string {
	return fmt.Sprintf(
		`{"floors":[{"label":%q,"rooms":[{"label":%q,"items":[{"material":%q,"quantity":%q,"unit":%q,"confidence":0.9}]}]}]}`,
		floor, room, material, qty, unit)
}

func buildTestOrchestrator(t *testing.T, rec recognize.Recognizer, mpr mapper.Mapper) *Orchestrator {
	t.Helper()
	orch, err := NewBuilder().
		WithSplitter(splitter.Config{MaxPagesPerChunk: 1, MaxChunkBytes: 64 * 1024 * 1024}).
		WithRecognizer(rec).
		WithMapper(mpr).
		Build()
	require.NoError(t, err)
	return orch
}

func TestBuilderValidation(t *testing.T) {
	_, err := NewBuilder().Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recognizer")

	_, err = NewBuilder().WithRecognizer(&recognize.Stub{}).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper")

	orch, err := NewBuilder().
		WithRecognizer(&recognize.Stub{}).
		WithMapper(&mapper.Stub{}).
		Build()
	require.NoError(t, err)
	assert.NotNil(t, orch)
}

func TestBuilderDefaults(t *testing.T) {
	cfg := NewBuilder().Config()
	assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, int64(4), cfg.MaxInFlightChunks)
	assert.Equal(t, 5*time.Minute, cfg.PipelineTimeout)

	// Zero or negative overrides are ignored.
	cfg = NewBuilder().WithMaxUploadBytes(0).WithMaxInFlightChunks(-1).Config()
	assert.Equal(t, int64(20*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, int64(4), cfg.MaxInFlightChunks)
}

func TestExtractHappyPath(t *testing.T) {
	rec := scriptedRecognizer(map[int]string{
		0: floorJSON("Floor 1", "Kitchen", "concrete", "2", "m3"),
		1: floorJSON("Floor 1", "Kitchen", "concrete", "3", "m3"),
	})
	orch := buildTestOrchestrator(t, rec, &mapper.Stub{})

	result, err := orch.Extract(context.Background(), Request{
		PDF:      testutil.BuildTextPDF("Sheet one", "Sheet two"),
		Language: mapper.LanguageEnglish,
	})
	require.NoError(t, err)

	assert.False(t, result.Partial)
	assert.Equal(t, 2, result.ChunksTotal)
	assert.Equal(t, 2, result.ChunksSucceeded)
	require.Len(t, result.Floors, 1)
	require.Len(t, result.Floors[0].Rooms, 1)
	require.Len(t, result.Floors[0].Rooms[0].Items, 1)
	assert.True(t, result.Floors[0].Rooms[0].Items[0].Quantity.Equal(decimal.NewFromInt(5)))
	assert.GreaterOrEqual(t, result.ProcessingTimeMS, int64(0))
}

func TestExtractCountsStubCallsAcrossConcurrentChunks(t *testing.T) {
	pages := make([]string, 16)
	for i := range pages {
		pages[i] = fmt.Sprintf("Sheet %d", i+1)
	}
	rec := &recognize.Stub{}
	mpr := &mapper.Stub{}
	orch, err := NewBuilder().
		WithSplitter(splitter.Config{MaxPagesPerChunk: 1, MaxChunkBytes: 64 * 1024 * 1024}).
		WithMaxInFlightChunks(8).
		WithRecognizer(rec).
		WithMapper(mpr).
		Build()
	require.NoError(t, err)

	_, err = orch.Extract(context.Background(), Request{
		PDF:      testutil.BuildTextPDF(pages...),
		Language: mapper.LanguageEnglish,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(pages)), rec.Calls.Load())
	assert.Equal(t, int64(len(pages)), mpr.Calls.Load())
}

func TestExtractIsIdempotent(t *testing.T) {
	payloads := map[int]string{
		0: floorJSON("Floor 1", "Kitchen", "tile", "12.5", "m2"),
		1: floorJSON("Floor 2", "Office", "carpet", "30", "m2"),
	}
	pdf := testutil.BuildTextPDF("Sheet one", "Sheet two")

	var results []*aggregate.Result
	for range 2 {
		orch := buildTestOrchestrator(t, scriptedRecognizer(payloads), &mapper.Stub{})
		result, err := orch.Extract(context.Background(), Request{PDF: pdf, Language: mapper.LanguageEnglish})
		require.NoError(t, err)
		results = append(results, result)
	}

	assert.Equal(t, results[0].Floors, results[1].Floors)
	assert.Equal(t, results[0].Summary, results[1].Summary)
	assert.Equal(t, results[0].DroppedItems, results[1].DroppedItems)
}

func TestExtractRejectionsHappenBeforeAnyWork(t *testing.T) {
	tooBig := make([]byte, 100)
	copy(tooBig, "%PDF-1.4")

	tests := []struct {
		name string
		req  Request
		kind string
	}{
		{
			name: "empty document",
			req:  Request{Language: mapper.LanguageEnglish},
			kind: RejectEmpty,
		},
		{
			name: "oversized document",
			req:  Request{PDF: tooBig, Language: mapper.LanguageEnglish},
			kind: RejectTooLarge,
		},
		{
			name: "not a pdf",
			req:  Request{PDF: []byte("plain text content"), Language: mapper.LanguageEnglish},
			kind: RejectNotPDF,
		},
		{
			name: "unsupported language",
			req:  Request{PDF: []byte("%PDF-1.4 small doc"), Language: "fr"},
			kind: RejectLanguage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recognize.Stub{}
			mpr := &mapper.Stub{}
			orch, err := NewBuilder().
				WithMaxUploadBytes(50).
				WithRecognizer(rec).
				WithMapper(mpr).
				Build()
			require.NoError(t, err)

			_, err = orch.Extract(context.Background(), tt.req)
			var invalidErr *InvalidRequestError
			require.ErrorAs(t, err, &invalidErr)
			assert.Equal(t, tt.kind, invalidErr.Kind)

			// Rejected requests never reach the remote services.
			assert.Zero(t, rec.Calls.Load())
			assert.Zero(t, mpr.Calls.Load())
		})
	}
}

func TestExtractMalformedDocument(t *testing.T) {
	orch := buildTestOrchestrator(t, &recognize.Stub{}, &mapper.Stub{})

	_, err := orch.Extract(context.Background(), Request{
		PDF:      []byte("%PDF-1.4 but truncated garbage"),
		Language: mapper.LanguageEnglish,
	})
	var malformed *splitter.MalformedDocumentError
	assert.ErrorAs(t, err, &malformed)
}

func TestExtractPartialOnRecognitionFailure(t *testing.T) {
	rec := &recognize.Stub{Fn: func(chunk splitter.Chunk) (*recognize.Result, error) {
		if chunk.Index == 1 {
			return nil, &recognize.TimeoutError{ChunkIndex: chunk.Index, Timeout: time.Second}
		}
		return &recognize.Result{
			ChunkIndex: chunk.Index,
			StartPage:  chunk.StartPage,
			EndPage:    chunk.EndPage,
			Blocks: []recognize.TextBlock{{
				Page:       chunk.StartPage,
				Text:       floorJSON("Floor 1", "Kitchen", "concrete", "5", "m3"),
				Confidence: 1.0,
			}},
		}, nil
	}}
	orch := buildTestOrchestrator(t, rec, &mapper.Stub{})

	result, err := orch.Extract(context.Background(), Request{
		PDF:      testutil.BuildTextPDF("one", "two", "three"),
		Language: mapper.LanguageEnglish,
	})
	require.NoError(t, err, "chunk failures must not fail the request")

	assert.True(t, result.Partial)
	assert.Equal(t, 3, result.ChunksTotal)
	assert.Equal(t, 2, result.ChunksSucceeded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].ChunkIndex)
	assert.Equal(t, aggregate.ErrRecognitionTimeout, result.Failures[0].Kind)
	assert.Equal(t, "2", result.Failures[0].PageRange)

	// Successful chunks still contribute.
	require.Len(t, result.Floors, 1)
}

func TestExtractFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		recErr   error
		expected aggregate.ErrorKind
	}{
		{
			name:     "recognition timeout",
			recErr:   &recognize.TimeoutError{ChunkIndex: 0, Timeout: time.Second},
			expected: aggregate.ErrRecognitionTimeout,
		},
		{
			name:     "quota exceeded",
			recErr:   &recognize.QuotaExceededError{ChunkIndex: 0, RetryAfter: time.Minute},
			expected: aggregate.ErrRecognitionQuota,
		},
		{
			name:     "unavailable",
			recErr:   &recognize.UnavailableError{ChunkIndex: 0, Err: fmt.Errorf("refused")},
			expected: aggregate.ErrRecognitionUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recognize.Stub{Fn: func(chunk splitter.Chunk) (*recognize.Result, error) {
				return nil, tt.recErr
			}}
			orch := buildTestOrchestrator(t, rec, &mapper.Stub{})

			result, err := orch.Extract(context.Background(), Request{
				PDF:      testutil.BuildTextPDF("page"),
				Language: mapper.LanguageEnglish,
			})
			require.NoError(t, err)
			require.Len(t, result.Failures, 1)
			assert.Equal(t, tt.expected, result.Failures[0].Kind)
		})
	}
}

func TestExtractMappingFailure(t *testing.T) {
	mpr := &mapper.Stub{Fn: func(rec *recognize.Result, hints preparse.Hints, lang mapper.Language) (*mapper.MappedChunk, error) {
		return nil, &mapper.ServiceError{ChunkIndex: rec.ChunkIndex, Err: fmt.Errorf("model overloaded")}
	}}
	orch := buildTestOrchestrator(t, &recognize.Stub{}, mpr)

	result, err := orch.Extract(context.Background(), Request{
		PDF:      testutil.BuildTextPDF("page"),
		Language: mapper.LanguageEnglish,
	})
	require.NoError(t, err)

	assert.True(t, result.Partial)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, aggregate.ErrMappingFailed, result.Failures[0].Kind)
}

func TestExtractDeadlineYieldsPartialResult(t *testing.T) {
	block := make(chan struct{})
	rec := &recognize.Stub{Fn: func(chunk splitter.Chunk) (*recognize.Result, error) {
		<-block
		return nil, context.DeadlineExceeded
	}}
	orch, err := NewBuilder().
		WithSplitter(splitter.Config{MaxPagesPerChunk: 1, MaxChunkBytes: 64 * 1024 * 1024}).
		WithPipelineTimeout(50 * time.Millisecond).
		WithRecognizer(rec).
		WithMapper(&mapper.Stub{}).
		Build()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(100 * time.Millisecond)
		close(block)
	}()

	result, err := orch.Extract(context.Background(), Request{
		PDF:      testutil.BuildTextPDF("one", "two"),
		Language: mapper.LanguageEnglish,
	})
	<-done
	require.NoError(t, err, "deadline expiry yields a partial result, not an error")

	assert.True(t, result.Partial)
	assert.Equal(t, 0, result.ChunksSucceeded)
	require.Len(t, result.Failures, 2)
	for _, f := range result.Failures {
		assert.Equal(t, aggregate.ErrDeadlineExceeded, f.Kind)
	}
}

func TestExtractWithProgressReportsEveryChunk(t *testing.T) {
	rec := scriptedRecognizer(map[int]string{})
	orch := buildTestOrchestrator(t, rec, &mapper.Stub{})

	var mu sync.Mutex
	var events []ProgressEvent
	result, err := orch.ExtractWithProgress(context.Background(),
		Request{PDF: testutil.BuildTextPDF("one", "two", "three"), Language: mapper.LanguageEnglish},
		func(ev ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ChunksSucceeded)

	require.Len(t, events, 3)
	seen := make(map[int]bool)
	for _, ev := range events {
		assert.Equal(t, 3, ev.TotalChunks)
		assert.False(t, ev.Failed)
		seen[ev.ChunkIndex] = true
	}
	assert.Len(t, seen, 3)
	// CompletedChunks counts monotonically; calls are serialized.
	for i, ev := range events {
		assert.Equal(t, i+1, ev.CompletedChunks)
	}
}

func TestExtractAssignsCorrelationID(t *testing.T) {
	orch := buildTestOrchestrator(t, &recognize.Stub{}, &mapper.Stub{})

	// An explicit correlation ID is accepted; absence of one is filled in.
	// Either way the request must succeed.
	_, err := orch.Extract(context.Background(), Request{
		PDF:           testutil.BuildTextPDF("page"),
		Language:      mapper.LanguageHebrew,
		CorrelationID: "req-123",
	})
	require.NoError(t, err)

	_, err = orch.Extract(context.Background(), Request{
		PDF:      testutil.BuildTextPDF("page"),
		Language: mapper.LanguageHebrew,
	})
	require.NoError(t, err)
}

func TestInvalidRequestErrorMessage(t *testing.T) {
	err := &InvalidRequestError{Kind: RejectTooLarge, Reason: "document is 30 bytes, limit is 20"}
	assert.Contains(t, err.Error(), "too_large")
	assert.Contains(t, err.Error(), "limit is 20")
}
