package llm

import (
	"context"
	"fmt"
	"strings"

	"sheetpulse/pkg/config"
	"sheetpulse/pkg/logx"
	"sheetpulse/pkg/metrics"
)

// Summarizer condenses a corpus of issue texts into one spreadsheet
// cell's worth of prose.
type Summarizer interface {
	// Summarize reduces texts to a single summary. fieldHint steers the
	// angle (an ai column prompt or tag llm directive); empty means a
	// general summary.
	Summarize(ctx context.Context, texts []string, fieldHint string) (string, error)
	// Model names the backing model for cell attribution.
	Model() string
}

// backend is one completion transport behind the Engine.
type backend interface {
	complete(ctx context.Context, system string, texts []string) (string, error)
	model() string
}

const systemPrompt = "You summarize Jira issue activity for a project dashboard. " +
	"Reply with a short plain-text summary, no markdown, no preamble."

// maxReduceDepth bounds the chunk-of-chunks reduction.
const maxReduceDepth = 3

// Engine wraps a backend with token-aware chunking and run attribution.
type Engine struct {
	backend  backend
	chunker  *Chunker
	log      *logx.Logger
	provider string

	// Stamp is the run timestamp prefixed to every summary. Empty
	// disables the prefix.
	Stamp string
}

// New builds the summarizer selected by the configuration.
func New(cfg config.LLMConfig, log *logx.Logger) (*Engine, error) {
	var b backend
	switch cfg.Provider {
	case config.ProviderService:
		b = newServiceBackend(cfg)
	case config.ProviderOpenAI:
		b = newOpenAIBackend(cfg)
	case config.ProviderAnthropic:
		b = newAnthropicBackend(cfg)
	case config.ProviderOllama:
		b = newOllamaBackend(cfg)
	case config.ProviderGemini:
		b = newGeminiBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	chunker, err := NewChunker(cfg.Model)
	if err != nil {
		return nil, err
	}
	return &Engine{backend: b, chunker: chunker, log: log, provider: cfg.Provider}, nil
}

// Model implements Summarizer.
func (e *Engine) Model() string { return e.backend.model() }

// Summarize implements Summarizer. Oversized corpora are reduced in
// rounds: each chunk is summarized, then the chunk summaries are
// summarized again until one chunk remains.
func (e *Engine) Summarize(ctx context.Context, texts []string, fieldHint string) (string, error) {
	system := systemPrompt
	if fieldHint != "" {
		system += " Focus: " + fieldHint
	}

	current := texts
	for depth := 0; ; depth++ {
		chunks := e.chunker.Pack(current)
		if len(chunks) == 0 {
			return "", fmt.Errorf("nothing to summarize")
		}
		if len(chunks) == 1 {
			out, err := e.complete(ctx, system, chunks[0])
			if err != nil {
				return "", fmt.Errorf("failed to summarize: %w", err)
			}
			return e.attribute(out), nil
		}
		if depth >= maxReduceDepth {
			return "", fmt.Errorf("corpus did not reduce below one chunk after %d rounds", maxReduceDepth)
		}
		e.log.Debug("summarizing %d chunks at depth %d", len(chunks), depth)
		reduced := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			out, err := e.complete(ctx, system, chunk)
			if err != nil {
				return "", fmt.Errorf("failed to summarize chunk: %w", err)
			}
			reduced = append(reduced, out)
		}
		current = reduced
	}
}

// complete delegates to the backend, counting the request.
func (e *Engine) complete(ctx context.Context, system string, texts []string) (string, error) {
	if e.provider != "" {
		metrics.LLMRequests.WithLabelValues(e.provider).Inc()
	}
	return e.backend.complete(ctx, system, texts)
}

// attribute prefixes the summary with model and run timestamp.
func (e *Engine) attribute(text string) string {
	text = strings.TrimSpace(text)
	if e.Stamp == "" {
		return text
	}
	return fmt.Sprintf("%s %s: %s", e.backend.model(), e.Stamp, text)
}

// joinTexts renders one chunk as the user prompt for SDK backends.
func joinTexts(texts []string) string {
	return strings.Join(texts, "\n---\n")
}
