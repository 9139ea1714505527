package cache

import (
	"sync/atomic"
	"time"
)

// Statistics tracks cache activity. Counters are updated atomically and
// may be read while the cache is in use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
	highWater atomic.Int64

	startTime time.Time
}

// NewStatistics creates a statistics tracker starting from zero.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

func (s *Statistics) hit() {
	s.hits.Add(1)
}

func (s *Statistics) miss() {
	s.misses.Add(1)
}

func (s *Statistics) set() {
	s.sets.Add(1)
}

func (s *Statistics) del() {
	s.deletes.Add(1)
}

func (s *Statistics) evict() {
	s.evictions.Add(1)
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

// Hits returns the number of lookups that found a live entry.
func (s *Statistics) Hits() int64 {
	return s.hits.Load()
}

// Misses returns the number of lookups that found nothing.
func (s *Statistics) Misses() int64 {
	return s.misses.Load()
}

// Sets returns the number of Set calls.
func (s *Statistics) Sets() int64 {
	return s.sets.Load()
}

// Deletes returns the number of Delete calls that removed an entry.
func (s *Statistics) Deletes() int64 {
	return s.deletes.Load()
}

// Evictions returns the number of entries dropped to stay within the
// size bound.
func (s *Statistics) Evictions() int64 {
	return s.evictions.Load()
}

// CurrentSize returns the entry count recorded by the last mutation.
func (s *Statistics) CurrentSize() int64 {
	return s.size.Load()
}

// HighWater returns the largest entry count observed.
func (s *Statistics) HighWater() int64 {
	return s.highWater.Load()
}

// HitRatio returns hits as a fraction of all lookups, in [0, 1]. It
// returns 0 when there have been no lookups.
func (s *Statistics) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Uptime returns the time elapsed since the tracker was created.
func (s *Statistics) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time snapshot of Statistics.
type StatsSummary struct {
	Hits        int64         `json:"hits"`
	Misses      int64         `json:"misses"`
	Sets        int64         `json:"sets"`
	Deletes     int64         `json:"deletes"`
	Evictions   int64         `json:"evictions"`
	CurrentSize int64         `json:"current_size"`
	HighWater   int64         `json:"high_water"`
	HitRatio    float64       `json:"hit_ratio"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all counters.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Hits:        s.Hits(),
		Misses:      s.Misses(),
		Sets:        s.Sets(),
		Deletes:     s.Deletes(),
		Evictions:   s.Evictions(),
		CurrentSize: s.CurrentSize(),
		HighWater:   s.HighWater(),
		HitRatio:    s.HitRatio(),
		Uptime:      s.Uptime(),
	}
}
