package limiter

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, cooldown time.Duration, daily, dailyAdmin, maxConcurrent int) (*Limiter, *fakeClock) {
	t.Helper()
	l := New(cooldown, daily, dailyAdmin, maxConcurrent)
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %v", err)
	}
	return denied.Reason
}

func TestConcurrencyCap(t *testing.T) {
	l, _ := newTestLimiter(t, 15*time.Second, 30, 50, 2)

	if err := l.Acquire("u1", false); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire("u2", false); err != nil {
		t.Fatal(err)
	}

	// Both slots are in flight, a third caller must bounce.
	err := l.Acquire("u3", false)
	if err == nil {
		t.Fatal("expected busy denial")
	}
	if r := reasonOf(t, err); r != ReasonBusy {
		t.Errorf("expected busy reason, got %s", r)
	}

	l.End()
	if err := l.Acquire("u4", false); err != nil {
		t.Errorf("expected admission after a slot freed, got %v", err)
	}

	if got := l.Active(); got != 2 {
		t.Errorf("expected 2 active, got %d", got)
	}
}

func TestConcurrencyBurstDenials(t *testing.T) {
	const maxC, extra = 2, 3
	l, _ := newTestLimiter(t, 0, 100, 100, maxC)

	denied := 0
	for i := 0; i < maxC+extra; i++ {
		err := l.Acquire(fmt.Sprintf("user%d", i), false)
		if err != nil {
			if r := reasonOf(t, err); r != ReasonBusy {
				t.Fatalf("unexpected reason %s", r)
			}
			denied++
		}
	}
	if denied != extra {
		t.Errorf("expected %d denials, got %d", extra, denied)
	}
}

func TestCooldownRemaining(t *testing.T) {
	l, clock := newTestLimiter(t, 15*time.Second, 30, 50, 2)

	if err := l.Acquire("u1", false); err != nil {
		t.Fatal(err)
	}
	l.End()

	clock.Advance(5 * time.Second)
	err := l.Acquire("u1", false)
	if err == nil {
		t.Fatal("expected cooldown denial")
	}
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %v", err)
	}
	if denied.Reason != ReasonCooldown {
		t.Errorf("expected cooldown reason, got %s", denied.Reason)
	}
	if denied.RetryAfter != 10*time.Second {
		t.Errorf("expected 10s retry-after, got %v", denied.RetryAfter)
	}
	if want := "Please wait 10s before asking again."; denied.Message != want {
		t.Errorf("unexpected message: %q", denied.Message)
	}

	clock.Advance(11 * time.Second) // t=16s since the first request
	if err := l.Acquire("u1", false); err != nil {
		t.Errorf("expected admission after cooldown, got %v", err)
	}
}

func TestDailyQuota(t *testing.T) {
	l, clock := newTestLimiter(t, time.Second, 3, 5, 10)

	for i := 0; i < 3; i++ {
		if err := l.Acquire("u1", false); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		l.End()
		clock.Advance(2 * time.Second)
	}

	err := l.Acquire("u1", false)
	if err == nil {
		t.Fatal("expected daily limit denial")
	}
	if r := reasonOf(t, err); r != ReasonDailyLimit {
		t.Errorf("expected daily_limit reason, got %s", r)
	}

	// Admins carry a higher limit; 3 used of 5 still admits.
	if err := l.Acquire("u2", true); err != nil {
		t.Fatal(err)
	}
	l.End()

	l.ResetDaily()
	clock.Advance(2 * time.Second)
	if err := l.Acquire("u1", false); err != nil {
		t.Errorf("expected admission after daily reset, got %v", err)
	}
}

func TestAttemptsAreCharged(t *testing.T) {
	l, _ := newTestLimiter(t, 0, 30, 50, 2)

	if err := l.Acquire("u1", false); err != nil {
		t.Fatal(err)
	}
	// The downstream call fails; the quota unit stays spent.
	l.End()

	snap := l.Snapshot("u1", false)
	if snap.Used != 1 {
		t.Errorf("expected 1 used after failed attempt, got %d", snap.Used)
	}
	if snap.Remaining != 29 {
		t.Errorf("expected 29 remaining, got %d", snap.Remaining)
	}
	if snap.Limit != 30 {
		t.Errorf("expected limit 30, got %d", snap.Limit)
	}
}

func TestResetUser(t *testing.T) {
	l, _ := newTestLimiter(t, time.Hour, 30, 50, 4)

	if err := l.Acquire("u1", false); err != nil {
		t.Fatal(err)
	}
	l.End()
	if err := l.Acquire("u2", false); err != nil {
		t.Fatal(err)
	}
	l.End()

	// u1 is on cooldown until reset.
	if err := l.Acquire("u1", false); err == nil {
		t.Fatal("expected cooldown denial before reset")
	}

	l.ResetUser("u1")
	if err := l.Acquire("u1", false); err != nil {
		t.Errorf("expected admission after user reset, got %v", err)
	}

	// u2 keeps its state.
	if snap := l.Snapshot("u2", false); snap.Used != 1 {
		t.Errorf("expected u2 usage untouched, got %d", snap.Used)
	}
}

func TestEndNeverGoesNegative(t *testing.T) {
	l, _ := newTestLimiter(t, 0, 30, 50, 2)
	l.End()
	l.End()
	if got := l.Active(); got != 0 {
		t.Errorf("expected 0 active, got %d", got)
	}
	if err := l.Acquire("u1", false); err != nil {
		t.Errorf("limiter unusable after spurious End: %v", err)
	}
}

func TestScenarioCooldownSequence(t *testing.T) {
	// u1, dailyLimit=30, cooldown=15s: allowed at t=0, denied at t=5
	// with 10s remaining, allowed again at t=16.
	l, clock := newTestLimiter(t, 15*time.Second, 30, 50, 2)

	if err := l.Acquire("u1", false); err != nil {
		t.Fatalf("request 1: %v", err)
	}
	l.End()
	if snap := l.Snapshot("u1", false); snap.Used != 1 {
		t.Fatalf("expected counter 1/30, got %d", snap.Used)
	}

	clock.Advance(5 * time.Second)
	err := l.Acquire("u1", false)
	var denied *DeniedError
	if !errors.As(err, &denied) || denied.RetryAfter != 10*time.Second {
		t.Fatalf("expected 10s cooldown denial at t=5, got %v", err)
	}

	clock.Advance(11 * time.Second)
	if err := l.Acquire("u1", false); err != nil {
		t.Fatalf("request 3 at t=16: %v", err)
	}
	l.End()
	if snap := l.Snapshot("u1", false); snap.Used != 2 {
		t.Errorf("expected counter 2/30, got %d", snap.Used)
	}
}

func TestConcurrentAcquireNeverExceedsCap(t *testing.T) {
	const maxC = 2
	l, _ := newTestLimiter(t, 0, 1000, 1000, maxC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := l.Acquire(fmt.Sprintf("user%d", n), false); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if admitted != maxC {
		t.Errorf("expected exactly %d admitted, got %d", maxC, admitted)
	}
	if got := l.Active(); got != maxC {
		t.Errorf("expected %d active, got %d", maxC, got)
	}
}
