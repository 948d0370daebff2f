// Package limiter implements request admission: a global concurrency cap,
// a per-user cooldown, and a per-user daily quota.
package limiter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chatrelay-ai/chatrelay/pkg/models"
)

// Reason identifies which admission gate denied a request.
type Reason string

const (
	ReasonBusy       Reason = "busy"
	ReasonCooldown   Reason = "cooldown"
	ReasonDailyLimit Reason = "daily_limit"
)

// DeniedError is returned when a request fails admission. Message is safe
// to surface verbatim to the requesting user.
type DeniedError struct {
	Reason     Reason
	Message    string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string { return e.Message }

// Limiter tracks admission state for all users. All mutation happens under
// one mutex so the concurrency check-then-increment is a single critical
// section.
type Limiter struct {
	mu sync.Mutex

	cooldown        time.Duration
	dailyLimit      int
	dailyLimitAdmin int
	maxConcurrent   int

	active      int
	lastRequest map[string]time.Time
	dailyUsage  map[string]int

	now func() time.Time
}

// New creates a Limiter with the given gates.
func New(cooldown time.Duration, dailyLimit, dailyLimitAdmin, maxConcurrent int) *Limiter {
	return &Limiter{
		cooldown:        cooldown,
		dailyLimit:      dailyLimit,
		dailyLimitAdmin: dailyLimitAdmin,
		maxConcurrent:   maxConcurrent,
		lastRequest:     make(map[string]time.Time),
		dailyUsage:      make(map[string]int),
		now:             time.Now,
	}
}

func (l *Limiter) limitFor(isAdmin bool) int {
	if isAdmin {
		return l.dailyLimitAdmin
	}
	return l.dailyLimit
}

// check runs the admission gates in order. Caller holds l.mu.
func (l *Limiter) check(userID string, isAdmin bool) *DeniedError {
	if l.active >= l.maxConcurrent {
		return &DeniedError{
			Reason:  ReasonBusy,
			Message: "The system is busy handling other requests, please retry shortly.",
		}
	}

	if last, ok := l.lastRequest[userID]; ok {
		elapsed := l.now().Sub(last)
		if elapsed < l.cooldown {
			remaining := l.cooldown - elapsed
			secs := int(math.Ceil(remaining.Seconds()))
			return &DeniedError{
				Reason:     ReasonCooldown,
				Message:    fmt.Sprintf("Please wait %ds before asking again.", secs),
				RetryAfter: remaining,
			}
		}
	}

	if l.dailyUsage[userID] >= l.limitFor(isAdmin) {
		return &DeniedError{
			Reason:  ReasonDailyLimit,
			Message: "Daily request limit reached. The quota resets in 24 hours.",
		}
	}
	return nil
}

// Check reports whether a request would be admitted right now, without
// consuming anything.
func (l *Limiter) Check(userID string, isAdmin bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d := l.check(userID, isAdmin); d != nil {
		return d
	}
	return nil
}

// Acquire admits a request, holding one critical section across the gate
// checks and the bookkeeping. On success the concurrency slot is taken,
// the cooldown clock is stamped, and a daily-quota unit is consumed
// immediately: attempts are charged, not successful replies, so a failed
// downstream call still counts. The caller must End() exactly once.
func (l *Limiter) Acquire(userID string, isAdmin bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d := l.check(userID, isAdmin); d != nil {
		return d
	}

	l.active++
	l.lastRequest[userID] = l.now()
	l.dailyUsage[userID]++
	return nil
}

// End releases the concurrency slot. It must run on every exit path of an
// acquired request, success or failure.
func (l *Limiter) End() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// ResetDaily clears all daily counts and cooldown stamps in place.
func (l *Limiter) ResetDaily() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.dailyUsage {
		delete(l.dailyUsage, k)
	}
	for k := range l.lastRequest {
		delete(l.lastRequest, k)
	}
}

// ResetUser clears one user's daily count and cooldown stamp.
func (l *Limiter) ResetUser(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.dailyUsage, userID)
	delete(l.lastRequest, userID)
}

// Snapshot reports a user's position against the daily quota.
func (l *Limiter) Snapshot(userID string, isAdmin bool) models.UsageSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limitFor(isAdmin)
	used := l.dailyUsage[userID]
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return models.UsageSnapshot{
		UserID:    userID,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
	}
}

// Active returns the number of in-flight acquired requests.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// MaxConcurrent returns the configured concurrency cap.
func (l *Limiter) MaxConcurrent() int {
	return l.maxConcurrent
}
