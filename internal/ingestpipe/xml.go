package ingestpipe

import (
	"bytes"
	"context"
	stdxml "encoding/xml"
	"strings"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// xmlParser walks every StartElement/CharData event and concatenates them
// into a single chunk, grounded directly on
// original_source/querent/ingestors/src/xml/xml.rs's EventReader walk.
// encoding/xml is stdlib; the teacher itself reaches for encoding/xml in
// engine/scraper/transcript.go for an equivalent streaming-decode need, so
// this mirrors the teacher's own choice rather than reaching past it for a
// third-party XML library (see DESIGN.md).
type xmlParser struct{}

func (xmlParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	id := identityOf(batch)
	data := batch.Concat()
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		decoder := stdxml.NewDecoder(bytes.NewReader(data))
		var content strings.Builder
		for {
			tok, err := decoder.Token()
			if err != nil {
				break
			}
			switch t := tok.(type) {
			case stdxml.StartElement:
				content.WriteString(t.Name.Local)
				content.WriteString("   ")
			case stdxml.CharData:
				content.Write(t)
				content.WriteString("\n")
			}
		}
		if content.Len() > 0 {
			select {
			case out <- corepb.IngestedTokens{Data: []string{content.String()}, File: id.file, DocSource: id.docSource, SourceID: id.sourceID}:
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
