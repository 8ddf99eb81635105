package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/buildscan/qto/internal/aggregate"
	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
	"github.com/buildscan/qto/internal/splitter"
)

var pdfMagic = []byte("%PDF-")

// chunkOutcome is the immutable per-chunk result returned by each worker.
// Exactly one of mapped or failure is set.
type chunkOutcome struct {
	mapped  *mapper.MappedChunk
	failure *aggregate.ChunkFailure
}

// Extract runs the full pipeline for one request. Request-level problems
// (bad size, bad format, unparsable document) return an error; chunk-level
// failures and deadline expiry yield a partial result instead.
func (o *Orchestrator) Extract(ctx context.Context, req Request) (*aggregate.Result, error) {
	return o.ExtractWithProgress(ctx, req, nil)
}

// ExtractWithProgress is Extract with per-chunk completion callbacks.
func (o *Orchestrator) ExtractWithProgress(ctx context.Context, req Request, progress ProgressFunc) (*aggregate.Result, error) {
	started := time.Now()

	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}
	logger := o.logger.With("correlation_id", req.CorrelationID)

	if err := o.validate(req); err != nil {
		logger.Warn("request rejected", "error", err)
		return nil, err
	}

	chunks, err := o.splitter.Split(req.PDF)
	if err != nil {
		logger.Warn("document split failed", "error", err)
		return nil, err
	}
	logger.Info("document split",
		"chunks", len(chunks),
		"pages", chunks[len(chunks)-1].EndPage,
		"language", string(req.Language))

	outcomes := o.processChunks(ctx, logger, chunks, req.Language, progress)

	var mapped []*mapper.MappedChunk
	var failures []aggregate.ChunkFailure
	for _, oc := range outcomes {
		switch {
		case oc.mapped != nil:
			mapped = append(mapped, oc.mapped)
		case oc.failure != nil:
			failures = append(failures, *oc.failure)
		}
	}

	result := aggregate.Aggregate(mapped, failures)
	result.ProcessingTimeMS = time.Since(started).Milliseconds()

	logger.Info("extraction complete",
		"floors", len(result.Floors),
		"failed_chunks", len(result.Failures),
		"dropped_items", result.DroppedItems,
		"partial", result.Partial,
		"duration_ms", result.ProcessingTimeMS)
	return result, nil
}

// validate enforces request invariants before any pipeline work begins.
func (o *Orchestrator) validate(req Request) error {
	if len(req.PDF) == 0 {
		return &InvalidRequestError{Kind: RejectEmpty, Reason: "no document content"}
	}
	if int64(len(req.PDF)) > o.cfg.MaxUploadBytes {
		return &InvalidRequestError{
			Kind:   RejectTooLarge,
			Reason: fmt.Sprintf("document is %d bytes, limit is %d", len(req.PDF), o.cfg.MaxUploadBytes),
		}
	}
	if !bytes.HasPrefix(req.PDF, pdfMagic) {
		return &InvalidRequestError{Kind: RejectNotPDF, Reason: "content is not a PDF (magic bytes mismatch)"}
	}
	if !req.Language.Valid() {
		return &InvalidRequestError{
			Kind:   RejectLanguage,
			Reason: fmt.Sprintf("language %q is not supported (he, en)", req.Language),
		}
	}
	return nil
}

// processChunks fans chunk work out under the in-flight limiter and the
// pipeline deadline. Each worker writes only its own slot, so no lock guards
// the outcome slice; merging stays single-threaded in the aggregator.
func (o *Orchestrator) processChunks(ctx context.Context, logger *slog.Logger, chunks []splitter.Chunk, lang mapper.Language, progress ProgressFunc) []chunkOutcome {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PipelineTimeout)
	defer cancel()

	sem := semaphore.NewWeighted(o.cfg.MaxInFlightChunks)
	outcomes := make([]chunkOutcome, len(chunks))

	var completed int
	var progressMu sync.Mutex
	report := func(chunk splitter.Chunk, failed bool) {
		if progress == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		progress(ProgressEvent{
			ChunkIndex:      chunk.Index,
			PageRange:       chunk.PageRange(),
			CompletedChunks: completed,
			TotalChunks:     len(chunks),
			Failed:          failed,
		})
	}

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func(slot int, chunk splitter.Chunk) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[slot] = deadlineOutcome(chunk)
				report(chunk, true)
				return
			}
			defer sem.Release(1)

			outcomes[slot] = o.processChunk(ctx, logger, chunk, lang)
			report(chunk, outcomes[slot].failure != nil)
		}(i, chunk)
	}
	wg.Wait()

	return outcomes
}

// processChunk runs pre-parse and recognition concurrently, then mapping.
func (o *Orchestrator) processChunk(ctx context.Context, logger *slog.Logger, chunk splitter.Chunk, lang mapper.Language) chunkOutcome {
	var (
		hints preparse.Hints
		rec   *recognize.Result
		rerr  error
		wg    sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		hints = o.preparser.Parse(chunk)
	}()
	go func() {
		defer wg.Done()
		rec, rerr = o.recognizer.Recognize(ctx, chunk)
	}()
	wg.Wait()

	if rerr != nil {
		failure := classifyFailure(ctx, chunk, rerr)
		logger.Warn("chunk recognition failed",
			"chunk", chunk.Index, "pages", chunk.PageRange(), "kind", string(failure.Kind), "error", rerr)
		return chunkOutcome{failure: &failure}
	}

	mapped, merr := o.mapper.MapChunk(ctx, rec, hints, lang)
	if merr != nil {
		failure := classifyFailure(ctx, chunk, merr)
		logger.Warn("chunk mapping failed",
			"chunk", chunk.Index, "pages", chunk.PageRange(), "kind", string(failure.Kind), "error", merr)
		return chunkOutcome{failure: &failure}
	}

	logger.Debug("chunk mapped",
		"chunk", chunk.Index, "pages", chunk.PageRange(),
		"floors", len(mapped.Floors), "dropped_items", mapped.DroppedItems)
	return chunkOutcome{mapped: mapped}
}

// classifyFailure translates component errors into result failure kinds. A
// pipeline deadline expiry takes precedence over how the interrupted call
// happened to fail.
func classifyFailure(ctx context.Context, chunk splitter.Chunk, err error) aggregate.ChunkFailure {
	if ctx.Err() != nil {
		return deadlineFailure(chunk)
	}

	var (
		timeoutErr     *recognize.TimeoutError
		quotaErr       *recognize.QuotaExceededError
		unavailableErr *recognize.UnavailableError
		mappingErr     *mapper.ServiceError
	)
	kind := aggregate.ErrRecognitionUnavailable
	switch {
	case errors.As(err, &timeoutErr):
		kind = aggregate.ErrRecognitionTimeout
	case errors.As(err, &quotaErr):
		kind = aggregate.ErrRecognitionQuota
	case errors.As(err, &unavailableErr):
		kind = aggregate.ErrRecognitionUnavailable
	case errors.As(err, &mappingErr):
		kind = aggregate.ErrMappingFailed
	}
	return aggregate.NewChunkFailure(chunk.Index, chunk.StartPage, chunk.EndPage, kind, err.Error())
}

func deadlineFailure(chunk splitter.Chunk) aggregate.ChunkFailure {
	return aggregate.NewChunkFailure(chunk.Index, chunk.StartPage, chunk.EndPage,
		aggregate.ErrDeadlineExceeded, "pipeline deadline exceeded before chunk completed")
}

func deadlineOutcome(chunk splitter.Chunk) chunkOutcome {
	failure := deadlineFailure(chunk)
	return chunkOutcome{failure: &failure}
}
