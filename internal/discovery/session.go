package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/engine"
	"github.com/querent-ai/querent-go/internal/storage"
)

const (
	defaultTopK = 5
	defaultDepth = 2
)

// sessionBehavior is the actor.Behavior backing one open discovery session:
// bound for its whole life to one Mode and one storage façade, answering
// each routed Request in turn (an actor runs single-threaded over its own
// state, so two Requests to the same session never race).
type sessionBehavior struct {
	req      SessionRequest
	storage  *storage.Facade
	embedder engine.Embedder
	chat     engine.ChatModel
	logger   *slog.Logger
}

func (b *sessionBehavior) Receive(_ *actor.Context, msg any) (any, error) {
	req, ok := msg.(Request)
	if !ok {
		return nil, Wrap(KindInvalidArgument, fmt.Errorf("session %s: unexpected message %T", b.req.SessionID, msg))
	}
	if req.Query == "" {
		return nil, Wrap(KindInvalidArgument, fmt.Errorf("session %s: empty query", b.req.SessionID))
	}

	ctx := context.Background()
	switch b.req.Mode {
	case ModeTraverser:
		return b.traverse(ctx, req)
	default:
		return b.retrieve(ctx, req)
	}
}

// retrieve embeds the query and ranks the collection's persisted vectors by
// distance, the same embed-then-search step rag.Service.Query performs
// before building a chat prompt — here the ranked rows are the response
// itself, with no chat completion stage.
func (b *sessionBehavior) retrieve(ctx context.Context, req Request) (Response, error) {
	if b.embedder == nil {
		return Response{}, Wrap(KindInternal, fmt.Errorf("session %s: retriever mode requires an embedder", b.req.SessionID))
	}
	embedding, err := b.embedder.Embed(ctx, req.Query)
	if err != nil {
		return Response{}, Wrap(KindInternal, fmt.Errorf("embed query: %w", err))
	}

	topK := b.req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	rows, err := b.storage.SimilaritySearchL2(ctx, b.req.SessionID, req.Query, b.req.CollectionID, embedding, topK, 0, true)
	if err != nil {
		return Response{}, Wrap(KindStorageError, err)
	}

	insights := make([]Insight, len(rows))
	for i, r := range rows {
		insights[i] = Insight{
			DocID:          r.DocID,
			DocSource:      r.DocSource,
			Sentence:       r.Sentence,
			Score:          r.Score,
			CosineDistance: r.CosineDistance,
		}
	}
	b.logger.Info("discovery retriever search", "session", b.req.SessionID, "results", len(insights))
	return Response{SessionID: b.req.SessionID, Query: req.Query, Insights: insights}, nil
}

// traverse asks the chat model which entity to anchor the walk on, then
// follows the persisted graph out to Depth hops from it, the Traverser
// mode's "graph traversal guided by an LLM" per spec.md §4.G.
func (b *sessionBehavior) traverse(ctx context.Context, req Request) (Response, error) {
	start := req.Query
	if b.chat != nil {
		if anchor, err := b.chat.Complete(ctx, anchorPrompt(req.Query)); err != nil {
			b.logger.Warn("discovery traverser anchor completion failed, using raw query", "session", b.req.SessionID, "err", err)
		} else if a := strings.TrimSpace(anchor); a != "" {
			start = a
		}
	}

	depth := b.req.Depth
	if depth <= 0 {
		depth = defaultDepth
	}

	values, err := b.storage.Neighbors(ctx, start, depth)
	if err != nil {
		return Response{}, Wrap(KindStorageError, err)
	}
	sort.Strings(values)

	insights := make([]Insight, len(values))
	for i, v := range values {
		insights[i] = Insight{Subject: start, Object: v}
	}
	b.logger.Info("discovery traverser walk", "session", b.req.SessionID, "anchor", start, "neighbors", len(insights))
	return Response{SessionID: b.req.SessionID, Query: req.Query, Insights: insights}, nil
}

func anchorPrompt(query string) string {
	return "Identify the single most relevant entity name to start a knowledge-graph traversal for this question. " +
		"Reply with only the entity name.\n\nQuestion: " + query
}
