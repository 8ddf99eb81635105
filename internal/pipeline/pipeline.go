// Package pipeline orchestrates the end-to-end quantity extraction run:
// request validation, document splitting, concurrent per-chunk pre-parse and
// recognition, structured mapping, and final aggregation.
package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
	"github.com/buildscan/qto/internal/splitter"
)

// Config holds configuration for the extraction pipeline.
type Config struct {
	MaxUploadBytes     int64
	Splitter           splitter.Config
	PreParseMinQuality float64
	MaxInFlightChunks  int64
	PipelineTimeout    time.Duration
}

// DefaultConfig returns pipeline defaults matching the platform's upload
// limits.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes:     20 * 1024 * 1024,
		Splitter:           splitter.DefaultConfig(),
		PreParseMinQuality: 0.3,
		MaxInFlightChunks:  4,
		PipelineTimeout:    5 * time.Minute,
	}
}

// Request is the immutable input to one extraction run.
type Request struct {
	PDF           []byte
	Language      mapper.Language
	CorrelationID string
}

// ProgressEvent reports completion of one chunk during a run.
type ProgressEvent struct {
	ChunkIndex      int    `json:"chunk_index"`
	PageRange       string `json:"page_range"`
	CompletedChunks int    `json:"completed_chunks"`
	TotalChunks     int    `json:"total_chunks"`
	Failed          bool   `json:"failed"`
}

// ProgressFunc receives chunk completion events. Calls are serialized.
type ProgressFunc func(ProgressEvent)

// Builder constructs an Orchestrator with fluent configuration.
type Builder struct {
	cfg        Config
	recognizer recognize.Recognizer
	mapper     mapper.Mapper
	logger     *slog.Logger
}

// NewBuilder creates a pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithMaxUploadBytes sets the request size ceiling.
func (b *Builder) WithMaxUploadBytes(n int64) *Builder {
	if n > 0 {
		b.cfg.MaxUploadBytes = n
	}
	return b
}

// WithSplitter sets chunking bounds.
func (b *Builder) WithSplitter(cfg splitter.Config) *Builder {
	b.cfg.Splitter = cfg
	return b
}

// WithPreParseMinQuality sets the vector-text quality floor for hints.
func (b *Builder) WithPreParseMinQuality(q float64) *Builder {
	if q > 0 {
		b.cfg.PreParseMinQuality = q
	}
	return b
}

// WithMaxInFlightChunks bounds concurrent chunk processing, which also caps
// concurrent calls to the remote recognition and mapping services.
func (b *Builder) WithMaxInFlightChunks(n int64) *Builder {
	if n > 0 {
		b.cfg.MaxInFlightChunks = n
	}
	return b
}

// WithPipelineTimeout sets the wall-clock budget for a whole run.
func (b *Builder) WithPipelineTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.cfg.PipelineTimeout = d
	}
	return b
}

// WithRecognizer sets the recognition backend.
func (b *Builder) WithRecognizer(r recognize.Recognizer) *Builder {
	b.recognizer = r
	return b
}

// WithMapper sets the structured mapping backend.
func (b *Builder) WithMapper(m mapper.Mapper) *Builder {
	b.mapper = m
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the builder holds everything a run needs.
func (b *Builder) Validate() error {
	if b.recognizer == nil {
		return errors.New("recognizer is not configured")
	}
	if b.mapper == nil {
		return errors.New("mapper is not configured")
	}
	return nil
}

// Build initializes the orchestrator and its local components.
func (b *Builder) Build() (*Orchestrator, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        b.cfg,
		splitter:   splitter.New(b.cfg.Splitter),
		preparser:  preparse.New(b.cfg.PreParseMinQuality),
		recognizer: b.recognizer,
		mapper:     b.mapper,
		logger:     logger,
	}, nil
}

// Orchestrator owns the lifecycle of one extraction call. It holds no state
// across calls and is safe for concurrent use.
type Orchestrator struct {
	cfg        Config
	splitter   *splitter.Splitter
	preparser  *preparse.Parser
	recognizer recognize.Recognizer
	mapper     mapper.Mapper
	logger     *slog.Logger
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config { return o.cfg }
