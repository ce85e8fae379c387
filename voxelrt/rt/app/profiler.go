package app

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler accumulates per-frame CPU timings and counters between resets.
type Profiler struct {
	Scopes map[string]time.Duration
	Counts map[string]int
	Order  []string
	Frames int

	startTimes map[string]time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		Counts:     make(map[string]int),
		startTimes: make(map[string]time.Time),
	}
}

func (p *Profiler) track(name string) {
	for _, n := range p.Order {
		if n == name {
			return
		}
	}
	p.Order = append(p.Order, name)
}

func (p *Profiler) BeginScope(name string) {
	p.track(name)
	p.startTimes[name] = time.Now()
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.startTimes[name]; ok {
		p.Scopes[name] += time.Since(start)
		delete(p.startTimes, name)
	}
}

// Observe adds a duration measured elsewhere.
func (p *Profiler) Observe(name string, d time.Duration) {
	p.track(name)
	p.Scopes[name] += d
}

// SetCount records the latest value of a per-frame counter.
func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) EndFrame() {
	p.Frames++
}

// Reset clears timings and the frame count; scope order is kept.
func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
	p.Frames = 0
}

// Average is the mean time per frame spent in name.
func (p *Profiler) Average(name string) time.Duration {
	if p.Frames == 0 {
		return 0
	}
	return p.Scopes[name] / time.Duration(p.Frames)
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Timings (CPU, avg over %d frames):\n", p.Frames))
	for _, name := range p.Order {
		ms := float64(p.Average(name).Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-15s: %.2f ms\n", name, ms))
	}

	sb.WriteString("Stats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-15s: %d\n", k, p.Counts[k]))
	}

	return sb.String()
}
