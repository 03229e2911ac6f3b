package ingestpipe

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// htmlParser emits one chunk per non-empty body text node, adapted from
// original_source/querent/ingestors/src/html/html.rs's HtmlParser.get_body_elements,
// using goquery's DOM selection instead of the original's hand-rolled HTML
// tokenizer (goquery is carried from dohr-michael-ozzie's dependency stack).
type htmlParser struct{}

func (htmlParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	id := identityOf(batch)
	data := batch.Concat()
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			select {
			case out <- sentinel(id):
			case <-ctx.Done():
			}
			return
		}
		doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
			if sel.Children().Length() > 0 {
				return // only leaf text nodes, matching the original's body-element walk
			}
			text := strings.TrimSpace(sel.Text())
			if text == "" {
				return
			}
			select {
			case out <- corepb.IngestedTokens{Data: []string{text}, File: id.file, DocSource: id.docSource, SourceID: id.sourceID}:
			case <-ctx.Done():
			}
		})
		select {
		case out <- sentinel(id):
		case <-ctx.Done():
		}
	}()
	return out, nil
}
