package actor

import (
	"sync"
	"weak"
)

// TerminateSignal is a node in the cooperative-shutdown tree. Killing a
// node kills every descendant. Parents hold weak references to children;
// children never reference their parent, so the tree cannot leak through a
// reference cycle. Dead slots (children already garbage collected) are
// swept out lazily whenever a new child is attached.
type TerminateSignal struct {
	inner *terminateInner
}

type terminateInner struct {
	mu       sync.Mutex
	alive    bool
	children []weak.Pointer[terminateInner]
}

// NewTerminateSignal creates a live, childless terminate signal — the root
// of a new tree.
func NewTerminateSignal() TerminateSignal {
	return TerminateSignal{inner: &terminateInner{alive: true}}
}

// IsAlive reports whether the signal (and by extension its owner) has not
// been killed.
func (s TerminateSignal) IsAlive() bool {
	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()
	return s.inner.alive
}

// IsDead is the negation of IsAlive.
func (s TerminateSignal) IsDead() bool {
	return !s.IsAlive()
}

// Kill marks the signal dead and recursively kills every surviving child.
// Idempotent.
func (s TerminateSignal) Kill() {
	s.inner.kill()
}

// Child creates a new terminate signal attached below s. If s is already
// dead, the child is born dead: children created after a parent's kill
// inherit the dead state at creation time.
func (s TerminateSignal) Child() TerminateSignal {
	s.inner.mu.Lock()
	defer s.inner.mu.Unlock()

	child := &terminateInner{alive: s.inner.alive}
	s.inner.children = sweepDead(s.inner.children)
	s.inner.children = append(s.inner.children, weak.Make(child))
	return TerminateSignal{inner: child}
}

func (t *terminateInner) kill() {
	t.mu.Lock()
	t.alive = false
	children := t.children
	t.children = nil
	t.mu.Unlock()

	for _, w := range children {
		if child := w.Value(); child != nil {
			child.kill()
		}
	}
}

// sweepDead drops weak pointers whose target has already been collected.
func sweepDead(children []weak.Pointer[terminateInner]) []weak.Pointer[terminateInner] {
	out := children[:0]
	for _, w := range children {
		if w.Value() != nil {
			out = append(out, w)
		}
	}
	return out
}
