package actor

import "testing"

func TestAtomicStateIdleProcessingRoundTrip(t *testing.T) {
	a := newAtomicState()
	if got := a.get(); got != Processing {
		t.Fatalf("new state = %v, want Processing", got)
	}
	a.toIdle()
	if got := a.get(); got != Idle {
		t.Fatalf("toIdle = %v, want Idle", got)
	}
	a.toProcessing()
	if got := a.get(); got != Processing {
		t.Fatalf("toProcessing = %v, want Processing", got)
	}
}

func TestAtomicStatePauseResume(t *testing.T) {
	a := newAtomicState()
	a.pause()
	if got := a.get(); got != Paused {
		t.Fatalf("pause from Processing = %v, want Paused", got)
	}
	a.resume()
	if got := a.get(); got != Processing {
		t.Fatalf("resume = %v, want Processing", got)
	}
}

func TestAtomicStatePauseOnTerminalIsNoop(t *testing.T) {
	a := newAtomicState()
	a.exit(true)
	a.pause()
	if got := a.get(); got != Success {
		t.Fatalf("pause on Success = %v, want Success (no-op)", got)
	}
}

func TestAtomicStateResumeOnNonPausedIsNoop(t *testing.T) {
	a := newAtomicState()
	a.resume()
	if got := a.get(); got != Processing {
		t.Fatalf("resume on Processing = %v, want Processing (no-op)", got)
	}
}

func TestAtomicStateExitIsMonotonicMaximum(t *testing.T) {
	a := newAtomicState()
	a.exit(true)
	if got := a.get(); got != Success {
		t.Fatalf("exit(true) = %v, want Success", got)
	}
	a.exit(false)
	if got := a.get(); got != Failure {
		t.Fatalf("exit(false) after Success = %v, want Failure (escalation allowed)", got)
	}
	a.exit(true)
	if got := a.get(); got != Failure {
		t.Fatalf("exit(true) after Failure = %v, want Failure (no de-escalation)", got)
	}
}

func TestStateIsRunningIsExit(t *testing.T) {
	cases := []struct {
		s         State
		isRunning bool
		isExit    bool
	}{
		{Processing, true, false},
		{Idle, true, false},
		{Paused, false, false},
		{Success, false, true},
		{Failure, false, true},
	}
	for _, c := range cases {
		if got := c.s.IsRunning(); got != c.isRunning {
			t.Errorf("%v.IsRunning() = %v, want %v", c.s, got, c.isRunning)
		}
		if got := c.s.IsExit(); got != c.isExit {
			t.Errorf("%v.IsExit() = %v, want %v", c.s, got, c.isExit)
		}
	}
}
