// Package ratelimit enforces fixed-window request budgets keyed by API
// key prefix. Every key sharing a prefix shares one window, so all
// clients of a project drain a common budget. Counters live behind the
// CounterStore interface; the in-memory default is process-local, which
// means each replica of the server enforces its own budget.
package ratelimit

import (
	"strconv"
	"time"
)

// Snapshot is the observable state of one bucket's window at the moment
// a Check or Status call evaluated it.
type Snapshot struct {
	// Allowed reports whether the evaluated request was admitted
	// (Check) or whether a further request currently would be (Status).
	Allowed bool
	// Limit is the window budget.
	Limit int
	// Remaining is the budget left after the call.
	Remaining int
	// ResetAt is the true end of the current window.
	ResetAt time.Time
	// RetryAfter is how long a denied caller should wait before trying
	// again. Zero when Allowed.
	RetryAfter time.Duration
}

// CounterStore tracks per-key request counts within fixed windows.
// Implementations must serialize mutation per key so concurrent callers
// can neither lose an admitted request nor slip past the limit.
type CounterStore interface {
	// Admit counts one request against key's window beginning at
	// windowStart and reports whether it fit under limit. When it does
	// not fit, the stored count is left unchanged. The returned count
	// is the stored value after the call.
	Admit(key string, windowStart time.Time, limit int) (count int, ok bool)

	// Count reads key's count for the window beginning at windowStart
	// without modifying anything. Unknown keys and other windows read
	// as zero.
	Count(key string, windowStart time.Time) int

	// Stop releases background resources held by the store.
	Stop()
}

// Limiter applies a fixed-window budget per bucket key.
type Limiter struct {
	limit  int
	window time.Duration
	store  CounterStore
}

// New builds a Limiter admitting up to limit requests per window.
// Non-positive values fall back to 100 requests per minute. A nil store
// gets an in-memory CounterStore whose entries are kept alive longer
// than the window.
func New(limit int, window time.Duration, store CounterStore) *Limiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	if store == nil {
		ttl := DefaultEntryTTL
		if doubled := 2 * window; doubled > ttl {
			ttl = doubled
		}
		store = NewMemoryCounters(MemoryConfig{EntryTTL: ttl})
	}
	return &Limiter{limit: limit, window: window, store: store}
}

// Check admits or denies one request for key. Admission increments the
// window counter; denial leaves it untouched, so repeated denials keep
// reporting the same Remaining.
func (l *Limiter) Check(key string) Snapshot {
	now := time.Now()
	start := now.Truncate(l.window)
	count, ok := l.store.Admit(key, start, l.limit)
	return l.snapshot(now, start, count, ok)
}

// Status reports key's residual budget without consuming any of it.
func (l *Limiter) Status(key string) Snapshot {
	now := time.Now()
	start := now.Truncate(l.window)
	count := l.store.Count(key, start)
	return l.snapshot(now, start, count, count < l.limit)
}

// Stop shuts down the underlying counter store.
func (l *Limiter) Stop() {
	l.store.Stop()
}

func (l *Limiter) snapshot(now, start time.Time, count int, allowed bool) Snapshot {
	s := Snapshot{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: l.limit - count,
		ResetAt:   start.Add(l.window),
	}
	if s.Remaining < 0 {
		s.Remaining = 0
	}
	if !allowed {
		s.RetryAfter = s.ResetAt.Sub(now)
		if s.RetryAfter < time.Second {
			s.RetryAfter = time.Second
		}
	}
	return s
}

// Headers renders a snapshot as client-facing rate limit headers. Reset
// is the window end in unix seconds; Retry-After appears only on
// denials, rounded up to whole seconds.
func Headers(s Snapshot) map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(s.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(s.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(s.ResetAt.Unix(), 10),
	}
	if !s.Allowed {
		secs := int64((s.RetryAfter + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		h["Retry-After"] = strconv.FormatInt(secs, 10)
	}
	return h
}
