// Package support holds the godog step definitions for the extraction
// pipeline integration suite. The pipeline runs in-process against stub
// recognition and mapping services so scenarios are deterministic.
package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/buildscan/qto/internal/aggregate"
	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/pipeline"
	"github.com/buildscan/qto/internal/recognize"
	"github.com/buildscan/qto/internal/splitter"
	"github.com/buildscan/qto/internal/testutil"
)

// TestContext holds per-scenario state.
type TestContext struct {
	maxUploadBytes int64

	pagePayloads map[int]string
	pageFailures map[int]error
	maxPage      int

	recognizer *recognize.Stub

	result *aggregate.Result
	err    error
}

// NewTestContext creates a fresh scenario context.
func NewTestContext() *TestContext {
	return &TestContext{
		pagePayloads: make(map[int]string),
		pageFailures: make(map[int]error),
	}
}

// RegisterSteps wires all step definitions.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an extraction pipeline with stub services$`, tc.anExtractionPipeline)
	sc.Step(`^an extraction pipeline with stub services limited to (\d+) upload bytes$`, tc.anExtractionPipelineLimitedTo)
	sc.Step(`^recognition of page (\d+) yields floor "([^"]*)" room "([^"]*)" with "([^"]*)" "([^"]*)" of "([^"]*)"$`, tc.pageYields)
	sc.Step(`^recognition of page (\d+) fails with a timeout$`, tc.pageFailsWithTimeout)
	sc.Step(`^I extract quantities from the document in "([^"]*)"$`, tc.extractDocument)
	sc.Step(`^I extract quantities from a non-PDF payload$`, tc.extractNonPDF)
	sc.Step(`^the extraction succeeds completely$`, tc.extractionSucceeds)
	sc.Step(`^the result is partial$`, tc.resultIsPartial)
	sc.Step(`^the request is rejected as "([^"]*)"$`, tc.requestRejectedAs)
	sc.Step(`^no recognition calls were made$`, tc.noRecognitionCalls)
	sc.Step(`^floor "([^"]*)" room "([^"]*)" contains "([^"]*)" "([^"]*)" of "([^"]*)"$`, tc.roomContains)
	sc.Step(`^the floors are "([^"]*)"$`, tc.floorsAre)
	sc.Step(`^the summary total for "([^"]*)" in "([^"]*)" is "([^"]*)"$`, tc.summaryTotalIs)
	sc.Step(`^page "([^"]*)" is reported failed with kind "([^"]*)"$`, tc.pageReportedFailed)
}

func (tc *TestContext) anExtractionPipeline() error {
	tc.maxUploadBytes = 0
	return nil
}

func (tc *TestContext) anExtractionPipelineLimitedTo(limit int) error {
	tc.maxUploadBytes = int64(limit)
	return nil
}

func (tc *TestContext) pageYields(page int, floor, room, quantity, unit, material string) error {
	tc.pagePayloads[page] = fmt.Sprintf(
		`{"floors":[{"label":%q,"rooms":[{"label":%q,"items":[{"material":%q,"quantity":%q,"unit":%q,"confidence":0.9}]}]}]}`,
		floor, room, material, quantity, unit)
	if page > tc.maxPage {
		tc.maxPage = page
	}
	return nil
}

func (tc *TestContext) pageFailsWithTimeout(page int) error {
	tc.pageFailures[page] = &recognize.TimeoutError{ChunkIndex: page - 1, Timeout: time.Second}
	if page > tc.maxPage {
		tc.maxPage = page
	}
	return nil
}

// buildOrchestrator wires the pipeline so every document page becomes its own
// chunk, letting scenarios script per-page outcomes.
func (tc *TestContext) buildOrchestrator() (*pipeline.Orchestrator, error) {
	tc.recognizer = &recognize.Stub{Fn: func(chunk splitter.Chunk) (*recognize.Result, error) {
		if err, ok := tc.pageFailures[chunk.StartPage]; ok {
			return nil, err
		}
		res := &recognize.Result{
			ChunkIndex: chunk.Index,
			StartPage:  chunk.StartPage,
			EndPage:    chunk.EndPage,
		}
		if payload, ok := tc.pagePayloads[chunk.StartPage]; ok {
			res.Blocks = append(res.Blocks, recognize.TextBlock{
				Page:       chunk.StartPage,
				Text:       payload,
				Confidence: 1.0,
			})
		}
		return res, nil
	}}

	builder := pipeline.NewBuilder().
		WithSplitter(splitter.Config{MaxPagesPerChunk: 1, MaxChunkBytes: 64 * 1024 * 1024}).
		WithRecognizer(tc.recognizer).
		WithMapper(&mapper.Stub{})
	if tc.maxUploadBytes > 0 {
		builder = builder.WithMaxUploadBytes(tc.maxUploadBytes)
	}
	return builder.Build()
}

func (tc *TestContext) buildDocument() []byte {
	pages := tc.maxPage
	if pages == 0 {
		pages = 1
	}
	texts := make([]string, pages)
	for i := range texts {
		texts[i] = fmt.Sprintf("Sheet %d", i+1)
	}
	return testutil.BuildTextPDF(texts...)
}

func (tc *TestContext) extractDocument(language string) error {
	orch, err := tc.buildOrchestrator()
	if err != nil {
		return err
	}
	tc.result, tc.err = orch.Extract(context.Background(), pipeline.Request{
		PDF:      tc.buildDocument(),
		Language: mapper.Language(language),
	})
	return nil
}

func (tc *TestContext) extractNonPDF() error {
	orch, err := tc.buildOrchestrator()
	if err != nil {
		return err
	}
	tc.result, tc.err = orch.Extract(context.Background(), pipeline.Request{
		PDF:      []byte("plain text, not a document"),
		Language: mapper.LanguageEnglish,
	})
	return nil
}

func (tc *TestContext) extractionSucceeds() error {
	if tc.err != nil {
		return fmt.Errorf("extraction failed: %w", tc.err)
	}
	if tc.result.Partial {
		return fmt.Errorf("expected complete result, got partial with %d failures", len(tc.result.Failures))
	}
	return nil
}

func (tc *TestContext) resultIsPartial() error {
	if tc.err != nil {
		return fmt.Errorf("extraction failed outright: %w", tc.err)
	}
	if !tc.result.Partial {
		return errors.New("expected a partial result")
	}
	return nil
}

func (tc *TestContext) requestRejectedAs(kind string) error {
	if tc.err == nil {
		return errors.New("expected the request to be rejected")
	}
	var invalidErr *pipeline.InvalidRequestError
	if !errors.As(tc.err, &invalidErr) {
		return fmt.Errorf("expected InvalidRequestError, got %T: %v", tc.err, tc.err)
	}
	if invalidErr.Kind != kind {
		return fmt.Errorf("expected rejection kind %q, got %q", kind, invalidErr.Kind)
	}
	return nil
}

func (tc *TestContext) noRecognitionCalls() error {
	if n := tc.recognizer.Calls.Load(); n != 0 {
		return fmt.Errorf("expected no recognition calls, got %d", n)
	}
	return nil
}

func (tc *TestContext) findRoom(floorLabel, roomLabel string) (*aggregate.Room, error) {
	if tc.result == nil {
		return nil, errors.New("no extraction result")
	}
	for _, floor := range tc.result.Floors {
		if floor.Label != floorLabel {
			continue
		}
		for i := range floor.Rooms {
			if floor.Rooms[i].Label == roomLabel {
				return &floor.Rooms[i], nil
			}
		}
		return nil, fmt.Errorf("room %q not found on floor %q", roomLabel, floorLabel)
	}
	return nil, fmt.Errorf("floor %q not found", floorLabel)
}

func (tc *TestContext) roomContains(floorLabel, roomLabel, quantity, unit, material string) error {
	room, err := tc.findRoom(floorLabel, roomLabel)
	if err != nil {
		return err
	}
	expected, err := decimal.NewFromString(quantity)
	if err != nil {
		return fmt.Errorf("bad expected quantity %q: %w", quantity, err)
	}
	for _, item := range room.Items {
		if item.Material == material && item.Unit == unit {
			if !item.Quantity.Equal(expected) {
				return fmt.Errorf("%s in %s/%s: expected %s %s, got %s",
					material, floorLabel, roomLabel, expected, unit, item.Quantity)
			}
			return nil
		}
	}
	return fmt.Errorf("item %q (%s) not found in %s/%s", material, unit, floorLabel, roomLabel)
}

func (tc *TestContext) floorsAre(expected string) error {
	if tc.result == nil {
		return errors.New("no extraction result")
	}
	var labels string
	for i, floor := range tc.result.Floors {
		if i > 0 {
			labels += ", "
		}
		labels += floor.Label
	}
	if labels != expected {
		return fmt.Errorf("expected floors %q, got %q", expected, labels)
	}
	return nil
}

func (tc *TestContext) summaryTotalIs(material, unit, total string) error {
	if tc.result == nil {
		return errors.New("no extraction result")
	}
	expected, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("bad expected total %q: %w", total, err)
	}
	for _, mt := range tc.result.Summary {
		if mt.Material == material && mt.Unit == unit {
			if !mt.Total.Equal(expected) {
				return fmt.Errorf("summary for %s (%s): expected %s, got %s", material, unit, expected, mt.Total)
			}
			return nil
		}
	}
	return fmt.Errorf("no summary entry for %s (%s)", material, unit)
}

func (tc *TestContext) pageReportedFailed(pageRange, kind string) error {
	if tc.result == nil {
		return errors.New("no extraction result")
	}
	for _, f := range tc.result.Failures {
		if f.PageRange == pageRange {
			if string(f.Kind) != kind {
				return fmt.Errorf("pages %s: expected failure kind %q, got %q", pageRange, kind, f.Kind)
			}
			return nil
		}
	}
	return fmt.Errorf("no failure reported for pages %s", pageRange)
}
