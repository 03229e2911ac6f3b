package eventstream

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/querent-ai/querent-go/internal/corepb"
	"github.com/querent-ai/querent-go/pkg/natsutil"
)

// NatsPublisher adapts a *nats.Conn to the Publisher interface, using
// pkg/natsutil.Publish for JSON encoding and trace-context propagation.
type NatsPublisher struct {
	Conn *nats.Conn
}

// Publish fans batch out to subject as an external observability signal.
func (p *NatsPublisher) Publish(ctx context.Context, subject string, batch *corepb.EventsBatch) error {
	return natsutil.Publish(ctx, p.Conn, subject, batch)
}
