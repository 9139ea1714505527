package geolocation

import (
	"context"
	"math"
	"sync"
	"time"
)

// Fix is one position fix.
type Fix struct {
	Lat       float64
	Lon       float64
	Accuracy  float64 // meters, larger is worse
	Timestamp time.Time
}

// Options tune one read or watch. Zero values defer to the module defaults.
type Options struct {
	// HighAccuracy requests the source's precise mode.
	HighAccuracy bool

	// Timeout bounds one getCurrentPosition read.
	Timeout time.Duration

	// MaximumAge lets the source answer with a cached fix no older than
	// this.
	MaximumAge time.Duration

	// DistanceFilter suppresses watch fixes closer than this many meters to
	// the previously delivered one.
	DistanceFilter float64
}

// Source is the hardware boundary for position fixes.
type Source interface {
	// Current returns the best available fix. A context deadline bounds the
	// read.
	Current(ctx context.Context, opts Options) (Fix, error)

	// Watch starts a fix feed and returns a stop function. The feed invokes
	// deliver from the source's own goroutine until stopped; deliver must
	// not call back into the source.
	Watch(ctx context.Context, opts Options, deliver func(Fix)) (stop func(), err error)
}

// haversineMeters returns the great-circle distance between two fixes.
func haversineMeters(a, b Fix) float64 {
	const earthRadius = 6371000.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadius * math.Asin(math.Sqrt(h))
}

// SimulatedSource is an in-process Source for tests and headless hosts.
// Fixes are pushed with SetFix and fanned out to every live watch; an
// optional interval re-delivers the current fix as a heartbeat.
type SimulatedSource struct {
	interval time.Duration

	// Latency delays Current, so timeout paths can be exercised.
	Latency time.Duration

	mu       sync.Mutex
	fix      Fix
	nextID   int
	watchers map[int]func(Fix)
}

// NewSimulatedSource builds a simulated source at the given fix. A positive
// interval adds a heartbeat that re-delivers the current fix to every watch.
func NewSimulatedSource(initial Fix, interval time.Duration) *SimulatedSource {
	if initial.Timestamp.IsZero() {
		initial.Timestamp = time.Now()
	}
	return &SimulatedSource{
		interval: interval,
		fix:      initial,
		watchers: make(map[int]func(Fix)),
	}
}

// SetFix moves the simulated position and delivers it to every live watch.
func (s *SimulatedSource) SetFix(fix Fix) {
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.fix = fix
	targets := make([]func(Fix), 0, len(s.watchers))
	for _, deliver := range s.watchers {
		targets = append(targets, deliver)
	}
	s.mu.Unlock()

	for _, deliver := range targets {
		deliver(fix)
	}
}

// Current returns the simulated fix, honoring the configured latency and the
// context deadline.
func (s *SimulatedSource) Current(ctx context.Context, _ Options) (Fix, error) {
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix, nil
}

// Watch registers a feed. Fixes arrive on SetFix and, with a positive
// interval, on the heartbeat.
func (s *SimulatedSource) Watch(ctx context.Context, _ Options, deliver func(Fix)) (func(), error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = deliver
	s.mu.Unlock()

	done := make(chan struct{})
	if s.interval > 0 {
		go func() {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.mu.Lock()
					fix := s.fix
					s.mu.Unlock()
					deliver(fix)
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(done)
		})
	}
	return stop, nil
}
