package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfilerAverages(t *testing.T) {
	p := NewProfiler()
	for i := 0; i < 4; i++ {
		p.Observe("prepare", 2*time.Millisecond)
		p.Observe("dispatch", time.Millisecond)
		p.SetCount("chunks", i)
		p.EndFrame()
	}

	assert.Equal(t, []string{"prepare", "dispatch"}, p.Order)
	assert.Equal(t, 2*time.Millisecond, p.Average("prepare"))
	assert.Equal(t, 3, p.Counts["chunks"])

	stats := p.GetStatsString()
	assert.Contains(t, stats, "avg over 4 frames")
	assert.Contains(t, stats, "prepare        : 2.00 ms")
	assert.Contains(t, stats, "chunks         : 3")

	p.Reset()
	assert.Zero(t, p.Average("prepare"))
	assert.Len(t, p.Order, 2, "order survives a reset")
}

func TestProfilerScopes(t *testing.T) {
	p := NewProfiler()
	p.EndScope("never begun")
	assert.Empty(t, p.Scopes)

	p.BeginScope("frame")
	p.EndScope("frame")
	p.EndScope("frame")
	assert.Contains(t, p.Scopes, "frame")
	assert.Equal(t, []string{"frame"}, p.Order)
}
