package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks buffer activity with lock-free counters. Safe for
// concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	peeks     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64

	size      atomic.Int64
	highWater atomic.Int64

	startTime time.Time
}

// NewStatistics creates a zeroed tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) write(size int64) {
	s.writes.Add(1)
	s.updateSize(size)
}

func (s *Statistics) read(size int64) {
	s.reads.Add(1)
	s.updateSize(size)
}

func (s *Statistics) peek() {
	s.peeks.Add(1)
}

// overflow records a full-buffer write: one overflow event, one shed item.
func (s *Statistics) overflow() {
	s.overflows.Add(1)
	s.drops.Add(1)
}

func (s *Statistics) updateSize(size int64) {
	s.size.Store(size)
	for {
		high := s.highWater.Load()
		if size <= high || s.highWater.CompareAndSwap(high, size) {
			return
		}
	}
}

// Writes returns the number of items that landed in the buffer.
func (s *Statistics) Writes() int64 { return s.writes.Load() }

// Reads returns the number of items read out.
func (s *Statistics) Reads() int64 { return s.reads.Load() }

// Peeks returns the number of peeks.
func (s *Statistics) Peeks() int64 { return s.peeks.Load() }

// Overflows returns how often a write found the buffer full.
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }

// Drops returns the number of items shed by the overflow policy.
func (s *Statistics) Drops() int64 { return s.drops.Load() }

// CurrentSize returns the buffered item count as of the last operation.
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// HighWater returns the largest size the buffer has reached.
func (s *Statistics) HighWater() int64 { return s.highWater.Load() }

// DropRate returns shed items relative to landed writes, 0.0 to 1.0 under
// DropOldest.
func (s *Statistics) DropRate() float64 {
	writes := s.Writes()
	if writes == 0 {
		return 0.0
	}
	return float64(s.Drops()) / float64(writes)
}

// Uptime returns how long the buffer has existed.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time snapshot of the counters, JSON-ready for
// debug endpoints.
type StatsSummary struct {
	Writes      int64         `json:"writes"`
	Reads       int64         `json:"reads"`
	Peeks       int64         `json:"peeks"`
	Overflows   int64         `json:"overflows"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	HighWater   int64         `json:"high_water"`
	DropRate    float64       `json:"drop_rate"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary snapshots all counters at once.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Reads:       s.Reads(),
		Peeks:       s.Peeks(),
		Overflows:   s.Overflows(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		HighWater:   s.HighWater(),
		DropRate:    s.DropRate(),
		Uptime:      s.Uptime(),
	}
}
