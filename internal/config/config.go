package config

import (
	"fmt"
	"time"

	"github.com/buildscan/qto/internal/mapper"
	"github.com/buildscan/qto/internal/pipeline"
	"github.com/buildscan/qto/internal/recognize"
	"github.com/buildscan/qto/internal/splitter"
)

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Pipeline.MaxUploadMB <= 0 {
		return fmt.Errorf("pipeline.max_upload_mb must be > 0, got %d", c.Pipeline.MaxUploadMB)
	}
	if c.Pipeline.MaxPagesPerChunk <= 0 {
		return fmt.Errorf("pipeline.max_pages_per_chunk must be > 0, got %d", c.Pipeline.MaxPagesPerChunk)
	}
	if c.Pipeline.MaxChunkMB <= 0 {
		return fmt.Errorf("pipeline.max_chunk_mb must be > 0, got %d", c.Pipeline.MaxChunkMB)
	}
	if c.Pipeline.TimeoutSec <= 0 {
		return fmt.Errorf("pipeline.timeout_sec must be > 0, got %d", c.Pipeline.TimeoutSec)
	}
	if c.Pipeline.MaxInFlightChunks <= 0 {
		return fmt.Errorf("pipeline.max_in_flight_chunks must be > 0, got %d", c.Pipeline.MaxInFlightChunks)
	}
	if c.Pipeline.PreParseMinQuality < 0 || c.Pipeline.PreParseMinQuality > 1 {
		return fmt.Errorf("pipeline.preparse_min_quality must be in [0, 1], got %g", c.Pipeline.PreParseMinQuality)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535], got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must be >= 0, got %d", c.Server.RateLimitPerMinute)
	}
	if c.Server.DailyUploadMB < 0 {
		return fmt.Errorf("server.daily_upload_mb must be >= 0, got %d", c.Server.DailyUploadMB)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// PipelineSettings converts the loaded config into pipeline configuration.
func (c *Config) PipelineSettings() pipeline.Config {
	return pipeline.Config{
		MaxUploadBytes: c.Pipeline.MaxUploadMB * 1024 * 1024,
		Splitter: splitter.Config{
			MaxPagesPerChunk: c.Pipeline.MaxPagesPerChunk,
			MaxChunkBytes:    c.Pipeline.MaxChunkMB * 1024 * 1024,
		},
		PreParseMinQuality: c.Pipeline.PreParseMinQuality,
		MaxInFlightChunks:  c.Pipeline.MaxInFlightChunks,
		PipelineTimeout:    time.Duration(c.Pipeline.TimeoutSec) * time.Second,
	}
}

// RecognitionSettings converts the loaded config into recognition client
// configuration.
func (c *Config) RecognitionSettings() recognize.Config {
	return recognize.Config{
		Endpoint: c.Recognition.Endpoint,
		APIKey:   c.Recognition.APIKey,
		Timeout:  time.Duration(c.Recognition.TimeoutSec) * time.Second,
	}
}

// MappingSettings converts the loaded config into mapper configuration.
func (c *Config) MappingSettings() mapper.Config {
	return mapper.Config{
		APIKey:  c.Mapping.APIKey,
		Model:   c.Mapping.Model,
		Timeout: time.Duration(c.Mapping.TimeoutSec) * time.Second,
	}
}
