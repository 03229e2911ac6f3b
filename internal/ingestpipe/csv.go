package ingestpipe

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// csvParser emits one chunk per row, columns joined by a single space, the
// same row-wise granularity the original Rust ingestor used. No CSV library
// appears anywhere in the retrieved pack, so it is built on the standard
// library's encoding/csv (see DESIGN.md).
type csvParser struct{}

func (csvParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	id := identityOf(batch)
	data := batch.Concat()
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		reader := csv.NewReader(bytes.NewReader(data))
		reader.FieldsPerRecord = -1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				continue // a malformed row is skipped, not fatal to the document
			}
			select {
			case out <- corepb.IngestedTokens{Data: []string{strings.Join(record, " ")}, File: id.file, DocSource: id.docSource, SourceID: id.sourceID}:
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
