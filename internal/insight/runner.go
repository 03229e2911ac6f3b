package insight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/querent-ai/querent-go/internal/actor"
)

// runnerBehavior is the actor.Behavior backing one open insight session: a
// fixed plugin and Config for its whole life, answering each routed Query
// by delegating to Plugin.Run.
type runnerBehavior struct {
	sessionID string
	plugin    Plugin
	cfg       Config
	logger    *slog.Logger
}

func (b *runnerBehavior) Receive(_ *actor.Context, msg any) (any, error) {
	q, ok := msg.(Query)
	if !ok {
		return nil, Wrap(KindInternal, fmt.Errorf("session %s: unexpected message %T", b.sessionID, msg))
	}

	output, err := b.plugin.Run(context.Background(), b.cfg, q.Text)
	if err != nil {
		return nil, Wrap(KindInference, fmt.Errorf("plugin %s: %w", b.plugin.ID(), err))
	}
	b.logger.Info("insight query answered", "session", b.sessionID, "plugin", b.plugin.ID())
	return Result{SessionID: b.sessionID, PluginID: b.plugin.ID(), Output: output}, nil
}
