package insight

import (
	"context"
	"fmt"
	"strings"

	"github.com/querent-ai/querent-go/internal/engine"
)

// ChatInsight is an installed plugin grounded directly on the teacher's
// engine/rag.Service.Query: embed the query, rank the collection's
// persisted vectors, assemble their sentences into a context block, and
// complete a prompt against a chat model — the same embed → search →
// build-prompt → complete shape, repurposed from a one-shot RAG answer
// into a reusable insight plugin any session can install and configure.
type ChatInsight struct {
	Embedder engine.Embedder
	Chat     engine.ChatModel
}

const defaultChatInsightTopK = 5

const chatInsightSystemPrompt = `Answer the user's question using ONLY the provided context. If the context
does not contain enough information, say so. Cite sources using [doc_id].`

func (p *ChatInsight) ID() string { return "chat" }

func (p *ChatInsight) Options() []OptionSpec {
	return []OptionSpec{
		{Name: "top_k", Kind: KindNumber, Min: 1, Max: 20, Step: 1},
		{Name: "system_prompt", Kind: KindString},
	}
}

func (p *ChatInsight) Run(ctx context.Context, cfg Config, query string) (string, error) {
	if p.Embedder == nil || p.Chat == nil {
		return "", fmt.Errorf("chat insight requires both an embedder and a chat model")
	}

	topK := defaultChatInsightTopK
	if v, ok := cfg.Options["top_k"]; ok {
		if n, ok := asFloat64(v); ok && n > 0 {
			topK = int(n)
		}
	}
	systemPrompt := chatInsightSystemPrompt
	if v, ok := cfg.Options["system_prompt"].(string); ok && v != "" {
		systemPrompt = v
	}

	embedding, err := p.Embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	rows, err := cfg.Storage.SimilaritySearchL2(ctx, "", query, cfg.CollectionID, embedding, topK, 0, false)
	if err != nil {
		return "", fmt.Errorf("similarity search: %w", err)
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nContext:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "[%s] %s\n", r.DocID, r.Sentence)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", query)

	answer, err := p.Chat.Complete(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return answer, nil
}

var _ Plugin = (*ChatInsight)(nil)
