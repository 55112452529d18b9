package llm

import (
	"sheetpulse/pkg/config"
)

// Chunker packs input texts into prompt-sized chunks below the model's
// context ceiling, leaving room for the completion.
type Chunker struct {
	counter *TokenCounter
	ceiling int
}

// NewChunker sizes a chunker for the model.
func NewChunker(model string) (*Chunker, error) {
	counter, err := NewTokenCounter(model)
	if err != nil {
		return nil, err
	}
	ceiling := config.ContextTokensFor(model) - config.CompletionReserveTokens
	if ceiling < 1 {
		ceiling = config.DefaultContextTokens - config.CompletionReserveTokens
	}
	return &Chunker{counter: counter, ceiling: ceiling}, nil
}

// Ceiling exposes the per-chunk token budget.
func (c *Chunker) Ceiling() int { return c.ceiling }

// Pack greedily groups texts into chunks whose combined token count
// stays under the ceiling. A single text over the ceiling is hard
// truncated rather than dropped, so every input contributes.
func (c *Chunker) Pack(texts []string) [][]string {
	var chunks [][]string
	var current []string
	used := 0

	for _, t := range texts {
		if t == "" {
			continue
		}
		n := c.counter.CountTokens(t)
		if n > c.ceiling {
			t = c.counter.TruncateToTokenLimit(t, c.ceiling)
			n = c.ceiling
		}
		if used+n > c.ceiling && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			used = 0
		}
		current = append(current, t)
		used += n
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
