package ratelimit

import (
	"sync"
	"time"
)

// Sweep defaults for the in-memory counter store.
const (
	DefaultCleanupInterval = 1 * time.Minute
	DefaultEntryTTL        = 5 * time.Minute
)

// counter is one bucket's window state.
type counter struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastTouch   time.Time
}

// MemoryConfig configures MemoryCounters.
type MemoryConfig struct {
	CleanupInterval time.Duration // how often idle entries are swept
	EntryTTL        time.Duration // idle time before an entry is dropped
}

// MemoryCounters is a process-local CounterStore. Deployments that need
// one budget across replicas must supply a shared implementation
// instead.
type MemoryCounters struct {
	mu              sync.RWMutex
	counters        map[string]*counter
	cleanupInterval time.Duration
	entryTTL        time.Duration
	stopCh          chan struct{}
	stoppedCh       chan struct{}
}

// NewMemoryCounters builds a MemoryCounters and starts its sweep
// goroutine. Call Stop when the store is no longer needed.
func NewMemoryCounters(cfg MemoryConfig) *MemoryCounters {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}

	s := &MemoryCounters{
		counters:        make(map[string]*counter),
		cleanupInterval: interval,
		entryTTL:        ttl,
		stopCh:          make(chan struct{}),
		stoppedCh:       make(chan struct{}),
	}

	go s.sweep()

	return s
}

// Admit implements CounterStore. A windowStart the entry has not seen
// yet resets the count before admission is decided.
func (s *MemoryCounters) Admit(key string, windowStart time.Time, limit int) (int, bool) {
	c := s.counterFor(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.windowStart.Equal(windowStart) {
		c.windowStart = windowStart
		c.count = 0
	}
	c.lastTouch = time.Now()

	if c.count >= limit {
		return c.count, false
	}
	c.count++
	return c.count, true
}

// Count implements CounterStore. It never creates entries, so probing a
// key's status leaves no trace.
func (s *MemoryCounters) Count(key string, windowStart time.Time) int {
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.windowStart.Equal(windowStart) {
		return 0
	}
	return c.count
}

// Stop terminates the sweep goroutine and waits for it to exit.
func (s *MemoryCounters) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *MemoryCounters) counterFor(key string) *counter {
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Double-check after acquiring the write lock.
	if c, ok := s.counters[key]; ok {
		return c
	}
	c = &counter{}
	s.counters[key] = c
	return c
}

func (s *MemoryCounters) sweep() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	defer close(s.stoppedCh)

	for {
		select {
		case <-ticker.C:
			s.removeIdleEntries()
		case <-s.stopCh:
			return
		}
	}
}

// removeIdleEntries drops entries untouched for entryTTL. The TTL must
// exceed the window length or a still-open window loses its count.
func (s *MemoryCounters) removeIdleEntries() {
	cutoff := time.Now().Add(-s.entryTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.counters {
		c.mu.Lock()
		if c.lastTouch.Before(cutoff) {
			delete(s.counters, key)
		}
		c.mu.Unlock()
	}
}
