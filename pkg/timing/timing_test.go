package timing

import (
	"context"
	"testing"
	"time"
)

func TestNewTimer_Validation(t *testing.T) {
	for _, freq := range []float64{0, -1, 1e-12} {
		if _, err := NewTimer(freq); err == nil {
			t.Errorf("NewTimer(%g) should fail", freq)
		}
	}
	tm, err := NewTimer(30)
	if err != nil {
		t.Fatalf("NewTimer(30) failed: %v", err)
	}
	if got, want := tm.Period(), time.Second/30; got != want {
		t.Errorf("Period = %v, want %v", got, want)
	}
}

func TestWait_PacesLoop(t *testing.T) {
	tm, err := NewTimer(100)
	if err != nil {
		t.Fatalf("NewTimer failed: %v", err)
	}
	tm.Start()
	for i := 0; i < 5; i++ {
		if err := tm.Wait(context.Background()); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}
	if tm.Ticks() != 5 {
		t.Errorf("Ticks = %d, want 5", tm.Ticks())
	}
	// Five 10ms periods: at least ~50ms must have passed. Upper bound
	// left open; a loaded machine only stretches it.
	if got := tm.Elapsed(); got < 45*time.Millisecond {
		t.Errorf("Elapsed = %v, want >= 45ms", got)
	}
}

func TestWait_ResynchronizesAfterOverrun(t *testing.T) {
	tm, err := NewTimer(100)
	if err != nil {
		t.Fatalf("NewTimer failed: %v", err)
	}

	// Drive the schedule with a fake clock that jumps far past several
	// boundaries.
	base := time.Unix(0, 0)
	current := base
	tm.now = func() time.Time { return current }
	tm.Start()

	current = base.Add(35 * time.Millisecond) // 3.5 periods late
	if err := tm.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if tm.Overruns() != 1 {
		t.Errorf("Overruns = %d, want 1", tm.Overruns())
	}
	// Schedule must have jumped to the next future boundary (40ms),
	// not accumulated a backlog of missed ticks.
	if want := base.Add(40 * time.Millisecond); !tm.target.Equal(want) {
		t.Errorf("target = %v, want %v", tm.target, want)
	}

	// The following wait targets 50ms, one period later.
	current = base.Add(41 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- tm.Wait(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return")
	}
	if tm.Ticks() != 2 {
		t.Errorf("Ticks = %d, want 2", tm.Ticks())
	}
}

func TestWait_Cancellation(t *testing.T) {
	tm, err := NewTimer(1) // 1s period, far longer than the test
	if err != nil {
		t.Fatalf("NewTimer failed: %v", err)
	}
	tm.Start()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tm.Wait(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Wait returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}
