package ingestpipe

import (
	"context"
	"regexp"
	"strings"

	"github.com/querent-ai/querent-go/internal/corepb"
)

var collapseWhitespace = regexp.MustCompile(`[ \t]+`)

// textCleanupProcessor trims surrounding whitespace and collapses runs of
// spaces/tabs within each chunk. It is codeParser's default processor,
// named after (but not a line-for-line port of, since the source file isn't
// in the retrieved pack) TextCleanupProcessor referenced in
// original_source/querent/ingestors/src/code/code.rs.
type textCleanupProcessor struct{}

func (textCleanupProcessor) ProcessText(ctx context.Context, tokens corepb.IngestedTokens) (corepb.IngestedTokens, error) {
	cleaned := make([]string, len(tokens.Data))
	for i, line := range tokens.Data {
		cleaned[i] = strings.TrimSpace(collapseWhitespace.ReplaceAllString(line, " "))
	}
	tokens.Data = cleaned
	return tokens, nil
}
