package ingestpipe

import (
	"sync"

	"github.com/querent-ai/querent-go/internal/corepb"
)

// DefaultNumberFilesInMemory is NUMBER_FILES_IN_MEMORY's default, bounding
// how many CollectionBatch documents may be in flight at once.
const DefaultNumberFilesInMemory = 100

// Semaphore bounds in-flight batch memory: the Collector acquires a permit
// before sending a batch and the permit is released exactly once, on every
// exit path, when the batch is dropped — implemented here as a
// buffered-channel counting semaphore, the same idiom
// internal/actor.Runtime's NonBlocking/Blocking pools use.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore builds a Semaphore with the given capacity. A capacity <= 0
// falls back to DefaultNumberFilesInMemory.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = DefaultNumberFilesInMemory
	}
	return &Semaphore{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free and returns a corepb.Permit whose
// Release returns the slot. Safe to call Release more than once.
func (s *Semaphore) Acquire() corepb.Permit {
	s.slots <- struct{}{}
	return &semaphorePermit{slots: s.slots}
}

// TryAcquire returns (permit, true) if a slot was immediately available, or
// (nil, false) if the semaphore is full.
func (s *Semaphore) TryAcquire() (corepb.Permit, bool) {
	select {
	case s.slots <- struct{}{}:
		return &semaphorePermit{slots: s.slots}, true
	default:
		return nil, false
	}
}

type semaphorePermit struct {
	slots chan struct{}
	once  sync.Once
}

func (p *semaphorePermit) Release() {
	p.once.Do(func() { <-p.slots })
}
