package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// MockEngine emits one Graph event per non-sentinel input token, with a
// fixed placeholder SemanticKnowledgePayload, followed by a terminal
// Success event once the input stream closes. It exists for pipeline
// wiring and integration tests where the cost of real extraction isn't
// warranted.
//
// The fixed "mock" payload mirrors the reference mock engine this is
// grounded on; unlike that reference, every emitted event gets its own
// unique EventID (the Engine contract requires uniqueness even where the
// rest of the payload is canned), and a terminal Success event is emitted
// after the token stream closes, since every Engine implementation must
// produce exactly one terminal event.
type MockEngine struct{}

// NewMockEngine returns a MockEngine.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (MockEngine) Process(ctx context.Context, tokens <-chan corepb.IngestedTokens) <-chan corepb.EventState {
	out := make(chan corepb.EventState, 16)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				out <- corepb.EventState{
					EventType: corepb.EventFailure,
					Err:       ctx.Err(),
				}
				return
			case tok, ok := <-tokens:
				if !ok {
					out <- corepb.EventState{
						EventType: corepb.EventSuccess,
					}
					return
				}
				if tok.IsEndOfDocument() {
					continue
				}

				event := corepb.EventState{
					EventType: corepb.EventGraph,
					File:      tok.File,
					DocSource: tok.DocSource,
					ImageID:   tok.ImageID,
					Graph: &corepb.SemanticKnowledgePayload{
						Subject:       "mock",
						SubjectType:   "mock",
						Predicate:     "mock",
						PredicateType: "mock",
						Object:        "mock",
						ObjectType:    "mock",
						Sentence:      "mock",
						EventID:       uuid.NewString(),
						SourceID:      tok.SourceID,
						Blob:          []byte("mock"),
						ImageID:       tok.ImageID,
					},
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
