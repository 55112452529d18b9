package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"sheetpulse/pkg/config"
)

// serviceBackend posts the raw texts to an internal summarization
// service: {"comments": [...], "field": "..."} in, {"summary": "..."} out.
type serviceBackend struct {
	endpoint string
	http     *http.Client
	name     string
}

func newServiceBackend(cfg config.LLMConfig) *serviceBackend {
	return &serviceBackend{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.Timeout},
		name:     cfg.Model,
	}
}

func (s *serviceBackend) model() string {
	if s.name == "" {
		return "service"
	}
	return s.name
}

func (s *serviceBackend) complete(ctx context.Context, system string, texts []string) (string, error) {
	body, err := json.Marshal(map[string]any{"comments": texts, "field": system})
	if err != nil {
		return "", fmt.Errorf("failed to encode service request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call summarization service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("summarization service status=%d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Summary string `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode service response: %w", err)
	}
	return out.Summary, nil
}

type openaiBackend struct {
	client openai.Client
	cfg    config.LLMConfig
}

func newOpenAIBackend(cfg config.LLMConfig) *openaiBackend {
	opts := []openaiopt.RequestOption{openaiopt.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.Endpoint))
	}
	return &openaiBackend{client: openai.NewClient(opts...), cfg: cfg}
}

func (o *openaiBackend) model() string { return o.cfg.Model }

func (o *openaiBackend) complete(ctx context.Context, system string, texts []string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(joinTexts(texts)),
		},
		MaxTokens:   openai.Int(int64(o.cfg.MaxTokens)),
		Temperature: openai.Float(float64(o.cfg.Temperature)),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicBackend struct {
	client anthropic.Client
	cfg    config.LLMConfig
}

func newAnthropicBackend(cfg config.LLMConfig) *anthropicBackend {
	opts := []anthropicopt.RequestOption{anthropicopt.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, anthropicopt.WithBaseURL(cfg.Endpoint))
	}
	return &anthropicBackend{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (a *anthropicBackend) model() string { return a.cfg.Model }

func (a *anthropicBackend) complete(ctx context.Context, system string, texts []string) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   int64(a.cfg.MaxTokens),
		Temperature: anthropic.Float(float64(a.cfg.Temperature)),
		System: []anthropic.TextBlockParam{{
			Text: system,
			Type: "text",
		}},
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(joinTexts(texts))},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		sb.WriteString(block.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return sb.String(), nil
}

type ollamaBackend struct {
	client *api.Client
	cfg    config.LLMConfig
}

func newOllamaBackend(cfg config.LLMConfig) *ollamaBackend {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil || cfg.Endpoint == "" {
		parsed, _ = url.Parse("http://localhost:11434")
	}
	return &ollamaBackend{client: api.NewClient(parsed, http.DefaultClient), cfg: cfg}
}

func (o *ollamaBackend) model() string { return o.cfg.Model }

func (o *ollamaBackend) complete(ctx context.Context, system string, texts []string) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model: o.cfg.Model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: joinTexts(texts)},
		},
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.cfg.Temperature,
			"num_predict": o.cfg.MaxTokens,
		},
	}
	var response api.ChatResponse
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama completion failed: %w", err)
	}
	return response.Message.Content, nil
}

// geminiBackend defers client creation to the first call because the
// genai constructor requires a context.
type geminiBackend struct {
	client *genai.Client
	cfg    config.LLMConfig
}

func newGeminiBackend(cfg config.LLMConfig) *geminiBackend {
	return &geminiBackend{cfg: cfg}
}

func (g *geminiBackend) model() string { return g.cfg.Model }

func (g *geminiBackend) complete(ctx context.Context, system string, texts []string) (string, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return "", fmt.Errorf("failed to create gemini client: %w", err)
		}
		g.client = client
	}
	temp := g.cfg.Temperature
	gcfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(g.cfg.MaxTokens),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	}
	result, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(joinTexts(texts)), gcfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return result.Text(), nil
}
