package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-gpu/common"
	"github.com/Carmen-Shannon/oxy-gpu/engine/renderer/cache"
)

// StatsSource is anything that reports cache statistics, such as the renderer's pipeline and bind group
// caches.
type StatsSource interface {
	Name() string
	Stats() cache.Stats
}

// ProfilerOption configures NewProfiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often statistics are logged.
//
// Parameters:
//   - d: the reporting interval
//
// Returns:
//   - ProfilerOption: a function that applies the option
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		p.updateInterval = d
	}
}

// WithSources adds cache statistics to every report.
func WithSources(sources ...StatsSource) ProfilerOption {
	return func(p *Profiler) {
		p.sources = append(p.sources, sources...)
	}
}

// Report is one interval of frame and memory statistics.
type Report struct {
	FPS         float64
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
	SysMB       float64
	Caches      map[string]cache.Stats
}

// Profiler tracks frame rate, memory and cache statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	sources        []StatsSource
	last           *Report
}

// NewProfiler creates a new Profiler. Update interval defaults to 1 second.
//
// Parameters:
//   - options: variadic list of ProfilerOption functions
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// AddSources adds cache statistics sources after construction.
func (p *Profiler) AddSources(sources ...StatsSource) {
	p.sources = append(p.sources, sources...)
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	return p.tick(time.Now())
}

func (p *Profiler) tick(now time.Time) bool {
	p.frameCount++
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	r := &Report{
		FPS:     float64(p.frameCount) / elapsed.Seconds(),
		HeapMB:  float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:   float64(p.memStats.Sys) / 1024 / 1024,
		GCCount: p.memStats.NumGC,
	}
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	r.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	// PauseNs is a circular buffer of the last 256 pauses
	if r.GCCount > 0 {
		r.LastPauseUs = p.memStats.PauseNs[(r.GCCount-1)%256] / 1000
		start := p.lastGCCount
		if r.GCCount-start > 256 {
			start = r.GCCount - 256
		}
		for i := start; i < r.GCCount; i++ {
			r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	common.LogInfo("[Profiler] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		r.FPS, r.HeapMB, r.AllocRateMB, r.GCCount, r.LastPauseUs, r.MaxPauseUs, r.SysMB)

	if len(p.sources) > 0 {
		r.Caches = make(map[string]cache.Stats, len(p.sources))
		for _, s := range p.sources {
			st := s.Stats()
			r.Caches[s.Name()] = st
			common.LogInfo("[Profiler] %s: %d entries | %d hits | %d misses | %d evictions", s.Name(), st.Len, st.Hits, st.Misses, st.Evictions)
		}
	}

	p.frameCount = 0
	p.lastTime = now
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.last = r
	return true
}

// Last returns the most recent report, or nil before the first interval elapsed.
func (p *Profiler) Last() *Report {
	return p.last
}
