// Package ingestpipe resolves a per-extension parser for each
// CollectionBatch and turns it into a finite, lazy stream of IngestedTokens,
// bounded by a shared in-flight-file semaphore.
//
// Grounded on original_source/querent/ingestors/src/ingestor.rs's extension
// dispatch table and per-format stream! generators, translated from Rust
// async streams to goroutine-fed channels.
package ingestpipe

import (
	"context"
	"errors"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// ErrNotSupportedYet is returned by BinaryFormatParser stubs for formats
// whose concrete parsing (pdf/docx/pptx/odp/xlsx/image OCR) is an external
// collaborator, out of scope for this repository.
var ErrNotSupportedYet = errors.New("ingestpipe: binary format parser not implemented")

// Parser transforms one document's concatenated bytes into a finite,
// lazy, non-restartable sequence of IngestedTokens delivered over a
// channel. The final item always carries an empty Data slice and the
// document identity — the sentinel downstream stages rely on.
type Parser interface {
	Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error)
}

// Processor runs sequentially over every emitted chunk before it leaves the
// ingestor; a processor error fails only that chunk, not the document.
type Processor interface {
	ProcessText(ctx context.Context, tokens corepb.IngestedTokens) (corepb.IngestedTokens, error)
}

// documentIdentity is pulled from the first well-formed CollectedBytes item
// and carried onto every emitted chunk and the terminal sentinel, mirroring
// every Rust ingestor's file/doc_source/source_id bookkeeping loop.
type documentIdentity struct {
	file      string
	docSource string
	sourceID  string
}

func identityOf(batch *corepb.CollectionBatch) documentIdentity {
	var id documentIdentity
	for _, cb := range batch.Items {
		if id.file == "" {
			id.file = cb.File
		}
		if id.docSource == "" {
			id.docSource = cb.DocSource
		}
		id.sourceID = cb.SourceID
	}
	return id
}

func sentinel(id documentIdentity) corepb.IngestedTokens {
	return corepb.IngestedTokens{File: id.file, DocSource: id.docSource, SourceID: id.sourceID}
}

// codeExtensions is the closed set of source-code extensions routed to the
// generic code parser, carried verbatim from
// original_source/querent/ingestors/src/ingestor.rs's programming_languages list.
var codeExtensions = map[string]bool{
	"py": true, "pyw": true, "pyp": true, "js": true, "mjs": true, "java": true,
	"cpp": true, "h": true, "hpp": true, "c": true, "cs": true, "rb": true,
	"swift": true, "php": true, "php3": true, "php4": true, "php5": true,
	"phtml": true, "css": true, "go": true, "rs": true, "kt": true, "ts": true,
	"pl": true, "sql": true, "r": true, "m": true, "sh": true, "bash": true,
	"zsh": true, "dart": true, "scala": true, "groovy": true, "lua": true, "vb": true,
}

// binaryExtensions route to BinaryFormatParser, out of scope per spec
// Non-goals but present in the dispatch table so the closed set and the
// unsupported-format boundary are both exercised.
var binaryExtensions = map[string]bool{
	"pdf": true, "docx": true, "pptx": true, "odp": true, "xlsx": true,
	"jpeg": true, "jpg": true, "png": true,
}

// Registry resolves a Parser for an extension and runs it, applying the
// configured processor chain to every emitted chunk.
type Registry struct {
	processors []Processor
}

// NewRegistry builds a Registry whose every resolved parser applies procs,
// in order, to each chunk it emits.
func NewRegistry(procs ...Processor) *Registry {
	return &Registry{processors: procs}
}

// Resolve returns the Parser bound to extension, per the closed dispatch
// table in spec.md §4.C. Unknown extensions resolve to unsupportedParser,
// which yields an empty stream rather than an error.
func (r *Registry) Resolve(extension string) Parser {
	switch extension {
	case "txt":
		return &txtParser{}
	case "html", "htm":
		return &htmlParser{}
	case "csv":
		return &csvParser{}
	case "xml":
		return &xmlParser{}
	case "json":
		return &jsonParser{}
	case "doc", "docx", "pdf", "pptx", "odp", "xlsx":
		return &binaryFormatParser{format: extension}
	case "jpeg", "jpg", "png":
		return &binaryFormatParser{format: extension}
	default:
		if codeExtensions[extension] {
			return &codeParser{processors: []Processor{textCleanupProcessor{}}}
		}
		return &unsupportedParser{}
	}
}

// Ingest resolves the parser for batch.Ext and runs it, applying the
// registry's processor chain to every non-sentinel chunk. Callers must
// drain the returned channel to completion (or cancel ctx) to release the
// permit embedded in batch.
func (r *Registry) Ingest(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	parser := r.Resolve(batch.Ext)
	raw, err := parser.Parse(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make(chan corepb.IngestedTokens)
	go func() {
		defer close(out)
		defer batch.Release()
		for {
			select {
			case <-ctx.Done():
				return
			case tokens, ok := <-raw:
				if !ok {
					return
				}
				if !tokens.IsEndOfDocument() {
					tokens = r.applyProcessors(ctx, tokens)
				}
				select {
				case out <- tokens:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Registry) applyProcessors(ctx context.Context, tokens corepb.IngestedTokens) corepb.IngestedTokens {
	for _, p := range r.processors {
		processed, err := p.ProcessText(ctx, tokens)
		if err != nil {
			continue // a processor error fails only this chunk's transform, not the document
		}
		tokens = processed
	}
	return tokens
}

// unsupportedParser yields an empty stream, matching UnsupportedIngestor in
// original_source/querent/ingestors/src/ingestor.rs.
type unsupportedParser struct{}

func (unsupportedParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	out := make(chan corepb.IngestedTokens)
	close(out)
	return out, nil
}

// binaryFormatParser stubs every format whose concrete parsing this repo
// treats as an external collaborator (spec.md §1 Non-goals).
type binaryFormatParser struct {
	format string
}

func (p *binaryFormatParser) Parse(ctx context.Context, batch *corepb.CollectionBatch) (<-chan corepb.IngestedTokens, error) {
	return nil, ErrNotSupportedYet
}
