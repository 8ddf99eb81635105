package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/buildscan/qto/internal/splitter"
)

// Config holds settings for the remote OCR client.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// DefaultConfig returns recognition client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
	}
}

// Client calls a remote OCR service over HTTP. One request per chunk, no
// retries.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a recognition client. The underlying http.Client carries
// no timeout of its own; the per-chunk timeout is applied via context so
// cancellation from the pipeline deadline also propagates.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("recognition endpoint is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{cfg: cfg, http: &http.Client{}}, nil
}

// wireBlock mirrors the provider response schema. Page numbers are relative
// to the submitted chunk.
type wireBlock struct {
	Page       int     `json:"page"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type wireTable struct {
	Page int        `json:"page"`
	Rows [][]string `json:"rows"`
}

type wireResponse struct {
	Blocks []wireBlock `json:"blocks"`
	Tables []wireTable `json:"tables"`
}

// Recognize submits the chunk payload and normalizes the provider response.
// Page numbers in the returned result are rebased to absolute source-document
// pages.
func (c *Client) Recognize(ctx context.Context, chunk splitter.Chunk) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(chunk.Data))
	if err != nil {
		return nil, &UnavailableError{ChunkIndex: chunk.Index, Err: err}
	}
	req.Header.Set("Content-Type", "application/pdf")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{ChunkIndex: chunk.Index, Timeout: c.cfg.Timeout}
		}
		return nil, &UnavailableError{ChunkIndex: chunk.Index, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &QuotaExceededError{
			ChunkIndex: chunk.Index,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, &TimeoutError{ChunkIndex: chunk.Index, Timeout: c.cfg.Timeout}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UnavailableError{
			ChunkIndex: chunk.Index,
			Err:        fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &UnavailableError{ChunkIndex: chunk.Index, Err: fmt.Errorf("decode response: %w", err)}
	}

	return rebase(chunk, wire), nil
}

// rebase converts chunk-relative page numbers (1-based) into absolute source
// pages and builds the immutable result.
func rebase(chunk splitter.Chunk, wire wireResponse) *Result {
	res := &Result{
		ChunkIndex: chunk.Index,
		StartPage:  chunk.StartPage,
		EndPage:    chunk.EndPage,
		Blocks:     make([]TextBlock, 0, len(wire.Blocks)),
	}
	for _, b := range wire.Blocks {
		res.Blocks = append(res.Blocks, TextBlock{
			Page:       chunk.StartPage + b.Page - 1,
			Box:        BoundingBox{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height},
			Text:       b.Text,
			Confidence: b.Confidence,
		})
	}
	for _, t := range wire.Tables {
		res.Tables = append(res.Tables, Table{
			Page: chunk.StartPage + t.Page - 1,
			Rows: t.Rows,
		})
	}
	return res
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
