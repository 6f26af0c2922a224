// Package observability tracks pipeline metrics and behavior statistics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// BehaviorStats tracks behavior-code frequency across analysis runs.
type BehaviorStats struct {
	mu     sync.RWMutex
	freq   map[string]*CodeStats
	runs   int64
	window time.Duration
	now    func() time.Time
}

// CodeStats holds statistics for one behavior code.
type CodeStats struct {
	Code      string    `json:"code"`
	Frequency int64     `json:"frequency"`
	Runs      int64     `json:"runs"`
	LastSeen  time.Time `json:"lastSeen"`
}

// NewBehaviorStats creates a new behavior statistics tracker.
// window: entries not seen for longer than this are dropped by Prune
func NewBehaviorStats(window time.Duration) *BehaviorStats {
	return &BehaviorStats{
		freq:   make(map[string]*CodeStats),
		window: window,
		now:    time.Now,
	}
}

// RecordRun adds the per-code counts of one run.
// This method is O(len(counts)) and thread-safe.
func (b *BehaviorStats) RecordRun(counts map[string]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.runs++
	now := b.now()
	for code, n := range counts {
		if n <= 0 {
			continue
		}
		stats, exists := b.freq[code]
		if !exists {
			stats = &CodeStats{Code: code}
			b.freq[code] = stats
		}
		stats.Frequency += int64(n)
		stats.Runs++
		stats.LastSeen = now
	}
}

// Runs returns the number of recorded runs.
func (b *BehaviorStats) Runs() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.runs
}

// TopBehaviors returns the top N codes by frequency, ties broken by code.
// Returns copies; n <= 0 returns every code.
func (b *BehaviorStats) TopBehaviors(n int) []CodeStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := make([]CodeStats, 0, len(b.freq))
	for _, s := range b.freq {
		stats = append(stats, *s)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Code < stats[j].Code
	})

	if n > 0 && n < len(stats) {
		stats = stats[:n]
	}
	return stats
}

// Prune removes entries where LastSeen is older than the window.
func (b *BehaviorStats) Prune() {
	if b.window <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	threshold := b.now().Add(-b.window)
	for code, stats := range b.freq {
		if stats.LastSeen.Before(threshold) {
			delete(b.freq, code)
		}
	}
}
