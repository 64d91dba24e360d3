package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gemini "google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// ErrEmptyResponse is returned when Gemini produces no text.
var ErrEmptyResponse = errors.New("empty response")

// contentGenerator is the subset of *gemini.Models used by GeminiClient.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error)
}

// GeminiClient calls Google Gemini in JSON response mode.
type GeminiClient struct {
	models              contentGenerator
	model               string
	temperature         float64
	maxCompletionTokens int
	debugMode           bool
	stateDir            string
}

// NewGeminiClient creates a Gemini API client. An API key is required.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	cfg := buildOpts(DefaultGeminiModel, opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	client, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	slog.Debug("genai.NewGeminiClient: Gemini client created", "model", cfg.Model, "debug", cfg.DebugMode)
	return &GeminiClient{
		models:              client.Models,
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
		debugMode:           cfg.DebugMode,
		stateDir:            cfg.StateDir,
	}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// GenerateJSON asks Gemini for an application/json response and returns its text.
func (c *GeminiClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &gemini.GenerateContentConfig{
		SystemInstruction: gemini.NewContentFromText(systemPrompt, gemini.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       gemini.Ptr(float32(c.temperature)),
	}
	if c.maxCompletionTokens > 0 {
		config.MaxOutputTokens = int32(c.maxCompletionTokens)
	}
	contents := gemini.Text(userPrompt)

	slog.Debug("genai.GeminiClient.GenerateJSON: calling model", "model", c.model, "systemLen", len(systemPrompt), "userLen", len(userPrompt))
	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		slog.Error("genai.GeminiClient.GenerateJSON: generate content failed", "model", c.model, "error", err)
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if c.debugMode {
		writeDebugLog(c.stateDir, "GeminiGenerateJSON", c.model, map[string]any{
			"system":   systemPrompt,
			"contents": contents,
			"config":   config,
		}, resp)
	}
	if resp == nil {
		return "", ErrEmptyResponse
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
