package ingestpipe

import (
	"bufio"
	"bytes"
	"context"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// txtParser emits one chunk per non-blank line, the simplest parser in the
// dispatch table and the baseline every other text-based parser follows for
// identity bookkeeping and the terminal sentinel.
type txtParser struct{}

func (txtParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	id := identityOf(batch)
	data := batch.Concat()
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case out <- corepb.IngestedTokens{Data: []string{line}, File: id.file, DocSource: id.docSource, SourceID: id.sourceID}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- sentinel(id):
		case <-ctx.Done():
		}
	}()
	return out, nil
}
