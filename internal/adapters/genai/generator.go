// Package genai implements the ContentGenerator port on Google's Gemini API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/example/cotflow/internal/ports/secondary"
)

const (
	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTimeout bounds one Generate call.
	DefaultTimeout = 60 * time.Second
)

// ErrNoAPIKey is returned when no key is configured.
var ErrNoAPIKey = errors.New("genai API key is required")

// Config holds generator settings.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	// BaseURL overrides the API endpoint; empty uses the library default.
	BaseURL string
}

// Generator produces step content with a Gemini model.
type Generator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// NewGenerator creates a Gemini-backed generator.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Generator{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log.Named("genai"),
	}, nil
}

// Generate runs one prompt with an optional system instruction.
func (g *Generator) Generate(ctx context.Context, req secondary.GenerateRequest) (*secondary.GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var config *genai.GenerateContentConfig
	if req.System != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("generation timeout after %s: %w", g.timeout, err)
		}
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, errors.New("generation failed: empty response")
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	g.log.Debug("generated content",
		zap.String("model", g.model),
		zap.Int("tokens", tokens),
		zap.Duration("elapsed", time.Since(start)))

	return &secondary.GenerateResponse{Text: text, Tokens: tokens}, nil
}

// Ensure Generator implements the interface
var _ secondary.ContentGenerator = (*Generator)(nil)
