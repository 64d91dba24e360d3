package genai

import (
	"context"
	"errors"
	"testing"

	gemini "google.golang.org/genai"
)

type mockContentGenerator struct {
	resp   *gemini.GenerateContentResponse
	err    error
	model  string
	config *gemini.GenerateContentConfig
}

func (m *mockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error) {
	m.model = model
	m.config = config
	return m.resp, m.err
}

func textResponse(text string) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{
		Candidates: []*gemini.Candidate{{Content: gemini.NewContentFromText(text, gemini.RoleModel)}},
	}
}

func TestGeminiGenerateJSON_Success(t *testing.T) {
	mock := &mockContentGenerator{resp: textResponse(`[{"operation":"none"}]`)}
	client := &GeminiClient{models: mock, model: "gemini-test", maxCompletionTokens: 256}

	out, err := client.GenerateJSON(context.Background(), "sys", "usr")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `[{"operation":"none"}]` {
		t.Errorf("unexpected text %q", out)
	}
	if mock.model != "gemini-test" {
		t.Errorf("expected model gemini-test, got %q", mock.model)
	}
	if mock.config.ResponseMIMEType != "application/json" {
		t.Errorf("expected JSON response type, got %q", mock.config.ResponseMIMEType)
	}
	if mock.config.SystemInstruction == nil {
		t.Error("expected system instruction")
	}
	if mock.config.MaxOutputTokens != 256 {
		t.Errorf("expected max tokens 256, got %d", mock.config.MaxOutputTokens)
	}
}

func TestGeminiGenerateJSON_Errors(t *testing.T) {
	client := &GeminiClient{models: &mockContentGenerator{err: errors.New("quota exceeded")}}
	if _, err := client.GenerateJSON(context.Background(), "sys", "usr"); err == nil {
		t.Error("expected service error")
	}

	client = &GeminiClient{models: &mockContentGenerator{resp: &gemini.GenerateContentResponse{}}}
	if _, err := client.GenerateJSON(context.Background(), "sys", "usr"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected empty response error, got %v", err)
	}
}

func TestNewGeminiClient_NoKey(t *testing.T) {
	if _, err := NewGeminiClient(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected missing key error, got %v", err)
	}
}
