package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestAddFiresNextTick(t *testing.T) {
	s := New(nil)
	fired := 0
	s.Add(func(ctx context.Context) { fired++ }, 0, 0)

	s.tick(context.Background(), time.Now())
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if s.Len() != 0 {
		t.Errorf("one-shot job should be removed, len = %d", s.Len())
	}

	s.tick(context.Background(), time.Now())
	if fired != 1 {
		t.Errorf("fired = %d after second tick, want still 1", fired)
	}
}

func TestNotDueYet(t *testing.T) {
	s := New(nil)
	fired := false
	s.Add(func(ctx context.Context) { fired = true }, time.Hour, 0)

	s.tick(context.Background(), time.Now())
	if fired {
		t.Error("job fired an hour early")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func TestRepeatReanchored(t *testing.T) {
	s := New(nil)
	fired := 0
	s.Add(func(ctx context.Context) { fired++ }, 0, time.Minute)

	now := time.Now()
	s.tick(context.Background(), now)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if s.Len() != 1 {
		t.Fatalf("repeating job should stay scheduled, len = %d", s.Len())
	}

	s.tick(context.Background(), now)
	s.tick(context.Background(), time.Now())
	if fired != 1 {
		t.Errorf("fired = %d, repeating job must not fire again before its interval", fired)
	}
}

func TestRepeatMovesToEnd(t *testing.T) {
	s := New(nil)
	s.Add(func(ctx context.Context) {}, 0, time.Minute)
	s.Add(func(ctx context.Context) {}, time.Hour, 0)

	s.tick(context.Background(), time.Now())
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[0].repeat != 0 {
		t.Error("unfired one-shot job should now be first")
	}
	if s.jobs[1].repeat != time.Minute {
		t.Error("fired repeating job should re-enter at the end of the list")
	}
}

func TestRepeatCancelledByOwnCallbackStaysGone(t *testing.T) {
	s := New(nil)
	s.Add(func(ctx context.Context) { s.Delete(0) }, 0, time.Minute)

	s.tick(context.Background(), time.Now())
	if s.Len() != 0 {
		t.Errorf("len = %d, a repeating job that deleted itself must not be re-added", s.Len())
	}
}

func TestDelete(t *testing.T) {
	s := New(nil)
	if s.Delete(0) {
		t.Error("Delete on empty scheduler should report false")
	}
	if s.Delete(-1) {
		t.Error("Delete with negative index should report false")
	}

	s.Add(func(ctx context.Context) {}, time.Hour, 0)
	if !s.Delete(0) {
		t.Error("Delete of existing job should report true")
	}
	if s.Len() != 0 {
		t.Errorf("len = %d after delete, want 0", s.Len())
	}
}

func TestPanicDoesNotStopOtherJobs(t *testing.T) {
	s := New(nil)
	fired := false
	s.Add(func(ctx context.Context) { panic("boom") }, 0, 0)
	s.Add(func(ctx context.Context) { fired = true }, 0, 0)

	s.tick(context.Background(), time.Now())
	if !fired {
		t.Error("panic in one job stopped the next")
	}
}

func TestCallbackAddedJobWaitsForNextTick(t *testing.T) {
	s := New(nil)
	nested := false
	s.Add(func(ctx context.Context) {
		s.Add(func(ctx context.Context) { nested = true }, 0, 0)
	}, 0, 0)

	s.tick(context.Background(), time.Now())
	if nested {
		t.Error("job added during a tick must not fire in the same tick")
	}

	s.tick(context.Background(), time.Now())
	if !nested {
		t.Error("job added during a tick should fire on the next one")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
