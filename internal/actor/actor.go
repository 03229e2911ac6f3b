// Package actor implements a supervised, message-passing actor runtime:
// two-priority mailboxes, a monotonic five-state lifecycle, a parent-owned
// terminate-signal tree, heartbeat liveness, and a scheduler that can run in
// real time or under cooperative virtual-time acceleration for tests.
package actor

import "fmt"

// Behavior is the message handler an actor runs. Receive is called once per
// domain message (and once per Observe/ask reply cycle); its return value is
// delivered to the asker when the message was sent via Ask.
type Behavior interface {
	Receive(ctx *Context, msg any) (any, error)
}

// Initializer is implemented by behaviors that need setup before the first
// message is processed.
type Initializer interface {
	Initialize(ctx *Context) error
}

// Finalizer is implemented by behaviors that need cleanup when the actor
// exits, regardless of exit reason.
type Finalizer interface {
	Finalize(ctx *Context, status ActorExitStatus) error
}

// Observable is implemented by behaviors that expose a state snapshot via
// the Observe command. Behaviors that don't implement it observe as nil.
type Observable interface {
	ObservableState() any
}

// YieldHint is implemented by behaviors that want the runtime to yield the
// goroutine scheduler between each drained message batch — the teacher's
// yield_after_each_message actor trait method, letting a chatty actor give
// up its worker-pool slot between batches instead of starving siblings on
// the same pool.
type YieldHint interface {
	YieldAfterEachMessage() bool
}

// ActorExitStatus is the terminal reason an actor stopped running.
type ActorExitStatus struct {
	kind exitKind
	err  error
}

type exitKind int

const (
	exitSuccess exitKind = iota
	exitQuit
	exitKilled
	exitDownstreamClosed
	exitFailure
	exitPanicked
)

var (
	// ExitSuccess means the actor ran to completion with no error: it
	// received the ExitWithSuccess command.
	ExitSuccess = ActorExitStatus{kind: exitSuccess}
	// ExitQuit means the actor was asked to Quit.
	ExitQuit = ActorExitStatus{kind: exitQuit}
	// ExitKilled means the actor's terminate signal fired.
	ExitKilled = ActorExitStatus{kind: exitKilled}
	// ExitDownstreamClosed means one of the actor's own mailbox queues was
	// found closed while the actor was waiting for its next message.
	ExitDownstreamClosed = ActorExitStatus{kind: exitDownstreamClosed}
)

// ExitFailure wraps a domain error as a terminal failure.
func ExitFailure(err error) ActorExitStatus { return ActorExitStatus{kind: exitFailure, err: err} }

// ExitPanicked wraps a recovered panic value as a terminal failure.
func ExitPanicked(recovered any) ActorExitStatus {
	return ActorExitStatus{kind: exitPanicked, err: fmt.Errorf("actor panicked: %v", recovered)}
}

// Success reports whether the exit status corresponds to actor.Success.
func (s ActorExitStatus) Success() bool { return s.kind == exitSuccess }

// Err returns the wrapped error for Failure/Panicked, nil otherwise.
func (s ActorExitStatus) Err() error { return s.err }

func (s ActorExitStatus) String() string {
	switch s.kind {
	case exitSuccess:
		return "success"
	case exitQuit:
		return "quit"
	case exitKilled:
		return "killed"
	case exitDownstreamClosed:
		return "downstream-closed"
	case exitFailure:
		return fmt.Sprintf("failure: %v", s.err)
	case exitPanicked:
		return fmt.Sprintf("panicked: %v", s.err)
	default:
		return "unknown"
	}
}

// State returns the five-state lifecycle value this exit status collapses
// to: Success for ExitSuccess/Quit, Failure for anything else terminal.
func (s ActorExitStatus) State() State {
	if s.kind == exitSuccess || s.kind == exitQuit {
		return Success
	}
	return Failure
}
