// Package engine defines the contract semantic-extraction engines satisfy
// inside a pipeline: consume a stream of ingested tokens, produce a stream
// of knowledge events, and terminate with exactly one Success or Failure
// control event.
//
// Concrete model-backed engines (attention-based graph extraction, LLM
// chat-driven extraction) depend on model weights and inference runtimes
// that are out of scope here; Embedder and ChatModel are the seams a real
// engine plugs into, and MockEngine is the only shipped implementation.
package engine

import (
	"context"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// Engine consumes a finite stream of IngestedTokens and produces a finite
// stream of EventState. Implementations must populate EventID, SourceID and
// document identity on every payload they emit, and must emit exactly one
// terminal EventSuccess after the input stream closes cleanly, or one
// terminal EventFailure carrying a diagnostic Err if processing cannot
// continue. The returned channel is closed once the terminal event has been
// sent.
type Engine interface {
	Process(ctx context.Context, tokens <-chan corepb.IngestedTokens) <-chan corepb.EventState
}

// Embedder turns text into a fixed-dimension embedding vector. A real
// implementation wraps a local or remote inference runtime; it is an
// external concern here.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ChatModel completes a prompt against a chat-tuned language model. A real
// implementation wraps a local or remote inference runtime; it is an
// external concern here.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
