package ingestpipe

import (
	"context"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// codeParser emits the whole concatenated source file as one chunk, matching
// original_source/querent/ingestors/src/code/code.rs (one content chunk then
// the sentinel). It is the dispatch target for every extension in
// codeExtensions and always runs with a textCleanupProcessor, mirroring
// CodeIngestor::new's default processor chain.
type codeParser struct {
	processors []Processor
}

func (p *codeParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	id := identityOf(batch)
	content := string(batch.Concat())
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		if content != "" {
			tokens := corepb.IngestedTokens{Data: []string{content}, File: id.file, DocSource: id.docSource, SourceID: id.sourceID}
			for _, proc := range p.processors {
				if processed, err := proc.ProcessText(ctx, tokens); err == nil {
					tokens = processed
				}
			}
			select {
			case out <- tokens:
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
