package actor

import (
	"testing"
	"time"
)

func TestRealSchedulerAfterFires(t *testing.T) {
	s := NewRealScheduler()
	select {
	case <-s.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatalf("RealScheduler.After never fired")
	}
}

func TestRealSchedulerGuardIsNoop(t *testing.T) {
	s := NewRealScheduler()
	g := s.NewGuard()
	g.Release()
	g.Release() // must not panic
}

func TestAcceleratedSchedulerAdvancesOnlyWhenUnguarded(t *testing.T) {
	s := NewAcceleratedScheduler()
	defer s.Close()

	guard := s.NewGuard()
	ch := s.After(time.Minute)

	select {
	case <-ch:
		t.Fatalf("timer fired while a guard was outstanding")
	case <-time.After(20 * time.Millisecond):
	}

	guard.Release()

	select {
	case firedAt := <-ch:
		if firedAt.Before(time.Unix(0, 0).Add(time.Minute)) {
			t.Fatalf("fired before the scheduled virtual time")
		}
	case <-time.After(time.Second):
		t.Fatalf("timer never fired after guard release")
	}
}

func TestAcceleratedSchedulerFiresTimersInOrder(t *testing.T) {
	s := NewAcceleratedScheduler()
	defer s.Close()

	thirty := s.After(30 * time.Second)
	ten := s.After(10 * time.Second)
	twenty := s.After(20 * time.Second)

	wait := func(ch <-chan time.Time, label string) time.Time {
		select {
		case v := <-ch:
			return v
		case <-time.After(time.Second):
			t.Fatalf("%s timer never fired", label)
			return time.Time{}
		}
	}

	atTen := wait(ten, "10s")
	atTwenty := wait(twenty, "20s")
	atThirty := wait(thirty, "30s")

	if !atTen.Before(atTwenty) || !atTwenty.Before(atThirty) {
		t.Fatalf("timers did not fire in ascending virtual-time order: %v, %v, %v", atTen, atTwenty, atThirty)
	}
}
