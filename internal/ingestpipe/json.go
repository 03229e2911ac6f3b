package ingestpipe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// jsonParser emits one chunk per top-level key/value pair, grounded
// directly on original_source/querent/ingestors/src/json/json.rs's
// key/value formatting loop.
type jsonParser struct{}

func (jsonParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	id := identityOf(batch)
	data := batch.Concat()
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err == nil {
			for key, value := range doc {
				line := fmt.Sprintf("%q   %v", key, value)
				select {
				case out <- corepb.IngestedTokens{Data: []string{line}, File: id.file, DocSource: id.docSource, SourceID: id.sourceID}:
				case <-ctx.Done():
					return
				}
			}
		}
		select {
		case out <- sentinel(id):
		case <-ctx.Done():
		}
	}()
	return out, nil
}
