// Package corepb defines the core data-model types that flow through the
// ingestion pipeline: collected bytes, ingested tokens, semantic and vector
// payloads, events and event batches, and discovery result rows.
//
// These are plain Go structs rather than wire-generated protobuf types:
// concrete wire codecs are an external concern (see internal/api).
package corepb

import "time"

// DocumentIdentity is the stable foreign key documents are attributed by
// throughout the pipeline.
type DocumentIdentity struct {
	DocumentID     string
	DocumentSource string
	SourceID       string
	ImageID        string // optional, empty when not an image
}

// Permit is an owned concurrency permit released exactly once. Records that
// embed a Permit must call Release on every exit path (including parser
// failure) so the NUMBER_FILES_IN_MEMORY semaphore never leaks.
type Permit interface {
	Release()
}

// noopPermit satisfies Permit when no semaphore is in play (e.g. in tests).
type noopPermit struct{}

func (noopPermit) Release() {}

// NoopPermit is a Permit that does nothing on Release.
var NoopPermit Permit = noopPermit{}

// CollectedBytes is one chunk of raw document content.
type CollectedBytes struct {
	Data       []byte
	File       string
	DocSource  string
	Extension  string
	Size       int64
	EOF        bool
	SourceID   string
	Permit     Permit
}

// Release releases the owned permit, if any. Safe to call multiple times.
func (c *CollectedBytes) Release() {
	if c.Permit != nil {
		c.Permit.Release()
		c.Permit = nil
	}
}

// CollectionBatch is the ordered sequence of CollectedBytes belonging to one
// document, as delivered to the Ingestor.
type CollectionBatch struct {
	Items  []CollectedBytes
	File   string
	Ext    string
	Permit Permit
}

// Release releases the batch's own permit and every item's permit.
func (b *CollectionBatch) Release() {
	if b.Permit != nil {
		b.Permit.Release()
		b.Permit = nil
	}
	for i := range b.Items {
		b.Items[i].Release()
	}
}

// Concat returns the concatenated bytes of every item in arrival order.
func (b *CollectionBatch) Concat() []byte {
	total := 0
	for _, it := range b.Items {
		total += len(it.Data)
	}
	out := make([]byte, 0, total)
	for _, it := range b.Items {
		out = append(out, it.Data...)
	}
	return out
}

// IngestedTokens is a chunk of extracted text produced by the Ingestor. An
// empty Data slice with the identity set is the sentinel marking the logical
// end of a document; this is distinct from end-of-stream (channel close).
type IngestedTokens struct {
	Data          []string
	File          string
	DocSource     string
	SourceID      string
	IsTokenStream bool
	ImageID       string
}

// IsEndOfDocument reports whether this chunk is the end-of-document sentinel.
func (t IngestedTokens) IsEndOfDocument() bool {
	return len(t.Data) == 0
}

// SemanticKnowledgePayload is one semantic triple extracted by an engine.
type SemanticKnowledgePayload struct {
	Subject       string
	SubjectType   string
	Predicate     string
	PredicateType string
	Object        string
	ObjectType    string
	Sentence      string
	EventID       string
	SourceID      string
	Blob          []byte
	ImageID       string
}

// VectorPayload is one embedding record produced by an engine.
type VectorPayload struct {
	Embedding []float32
	Score     float32
	EventID   string
	SourceID  string
	Sentence  string
}

// EventType is a closed tagged variant identifying the kind of EventState.
type EventType int

const (
	EventGraph EventType = iota
	EventVector
	EventSuccess
	EventFailure
)

func (t EventType) String() string {
	switch t {
	case EventGraph:
		return "graph"
	case EventVector:
		return "vector"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the event type is a terminal control event.
func (t EventType) IsTerminal() bool {
	return t == EventSuccess || t == EventFailure
}

// EventState is the envelope emitted by an Engine for each produced item.
type EventState struct {
	EventType EventType
	Timestamp int64 // unix milliseconds
	Graph     *SemanticKnowledgePayload
	Vector    *VectorPayload
	File      string
	DocSource string
	ImageID   string
	Err       error // populated for EventFailure
}

// EventsBatch groups events by type for one pipeline tick.
type EventsBatch struct {
	PipelineID string
	Timestamp  time.Time
	Events     map[EventType][]EventState
}

// NewEventsBatch creates an empty batch for the given pipeline.
func NewEventsBatch(pipelineID string) *EventsBatch {
	return &EventsBatch{
		PipelineID: pipelineID,
		Timestamp:  time.Now(),
		Events:     make(map[EventType][]EventState),
	}
}

// Add appends an event to its type's group.
func (b *EventsBatch) Add(e EventState) {
	b.Events[e.EventType] = append(b.Events[e.EventType], e)
}

// Len returns the total number of events across all types.
func (b *EventsBatch) Len() int {
	n := 0
	for _, v := range b.Events {
		n += len(v)
	}
	return n
}

// DocumentPayload is a discovery/insight result row.
type DocumentPayload struct {
	DocID          string
	DocSource      string
	Sentence       string
	Subject        string
	Object         string
	CosineDistance *float64
	QueryEmbedding []float32
	Query          string
	SessionID      string
	Score          float32
	CollectionID   string
}
