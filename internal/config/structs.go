package config

// Config represents the complete configuration for the qto service. It
// supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Extraction pipeline settings
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Remote recognition (OCR) service settings
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`

	// LLM structured-mapping service settings
	Mapping MappingConfig `mapstructure:"mapping" yaml:"mapping" json:"mapping"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// PipelineConfig contains extraction pipeline settings.
type PipelineConfig struct {
	MaxUploadMB        int64   `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	MaxPagesPerChunk   int     `mapstructure:"max_pages_per_chunk" yaml:"max_pages_per_chunk" json:"max_pages_per_chunk"`
	MaxChunkMB         int64   `mapstructure:"max_chunk_mb" yaml:"max_chunk_mb" json:"max_chunk_mb"`
	TimeoutSec         int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxInFlightChunks  int64   `mapstructure:"max_in_flight_chunks" yaml:"max_in_flight_chunks" json:"max_in_flight_chunks"`
	PreParseMinQuality float64 `mapstructure:"preparse_min_quality" yaml:"preparse_min_quality" json:"preparse_min_quality"`
}

// RecognitionConfig contains remote OCR service settings.
type RecognitionConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key" json:"-"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Stub       bool   `mapstructure:"stub" yaml:"stub" json:"stub"`
}

// MappingConfig contains LLM mapping service settings.
type MappingConfig struct {
	Model      string `mapstructure:"model" yaml:"model" json:"model"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key" json:"-"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	Stub       bool   `mapstructure:"stub" yaml:"stub" json:"stub"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Per-client upload limits; zero disables the check.
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	DailyUploadMB      int64 `mapstructure:"daily_upload_mb" yaml:"daily_upload_mb" json:"daily_upload_mb"`
}
