package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/buildscan/qto/internal/preparse"
	"github.com/buildscan/qto/internal/recognize"
)

// Config holds settings for the Gemini-backed mapper.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultConfig returns mapper defaults.
func DefaultConfig() Config {
	return Config{
		Model:   "gemini-1.5-flash",
		Timeout: 90 * time.Second,
	}
}

// Gemini maps recognition output to domain drafts via the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    Config
}

// NewGemini creates the Gemini mapper client.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("mapper API key is empty")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// MapChunk sends the chunk's recognition output to the model and validates
// the structured response. Only transport or model failures produce a
// ServiceError; invalid items in an otherwise well-formed response are
// dropped and counted.
func (g *Gemini) MapChunk(ctx context.Context, rec *recognize.Result, hints preparse.Hints, lang Language) (*MappedChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	m := g.client.GenerativeModel(g.cfg.Model)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt(lang))},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(buildUserPrompt(rec, hints)))
	if err != nil {
		return nil, &ServiceError{ChunkIndex: rec.ChunkIndex, Err: err}
	}

	text := collectText(resp)
	if text == "" {
		return nil, &ServiceError{ChunkIndex: rec.ChunkIndex, Err: errors.New("model returned no content")}
	}

	var raw rawChunk
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, &ServiceError{ChunkIndex: rec.ChunkIndex, Err: fmt.Errorf("model returned invalid JSON: %w", err)}
	}

	return validate(raw, rec.ChunkIndex, rec.StartPage, rec.EndPage), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite the response MIME type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
