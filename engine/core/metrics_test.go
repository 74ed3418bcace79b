package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverages(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(10*time.Millisecond, uint64(i%3))
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)
	assert.Equal(t, uint64(AVG_COUNT), m.TotalFrames())
	assert.Equal(t, uint64(2), m.MaxTimelineDifference())

	// 30 frames of 10ms so far; 71 more cross the one second mark.
	for i := 0; i < 71; i++ {
		m.Update(10*time.Millisecond, 0)
	}
	assert.Equal(t, float64(101), m.FPS())
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, time.Second, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, time.Second, c.Elapsed())
	assert.False(t, c.IsRunning())
}
