package core

import (
	"sync"
	"time"
)

const AVG_COUNT = 30

// Metrics keeps a rolling frame time average, the frames per second and the
// largest host/device timeline gap seen.
type Metrics struct {
	mutex sync.Mutex

	frameAVGCounter    int
	msTimes            [AVG_COUNT]float64
	msAVG              float64
	frames             int
	accumulatedFrameMS float64
	fps                float64

	totalFrames uint64
	maxLag      uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Update(frameElapsed time.Duration, timelineDifference uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	frameMS := float64(frameElapsed) / float64(time.Millisecond)
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for _, ms := range m.msTimes {
			sum += ms
		}
		m.msAVG = sum / AVG_COUNT
	}
	m.frameAVGCounter = (m.frameAVGCounter + 1) % AVG_COUNT

	m.accumulatedFrameMS += frameMS
	m.frames++
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.totalFrames++
	m.maxLag = max(m.maxLag, timelineDifference)
}

func (m *Metrics) FPS() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last AVG_COUNT frames.
func (m *Metrics) FrameTime() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.msAVG
}

func (m *Metrics) TotalFrames() uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.totalFrames
}

// MaxTimelineDifference is the largest number of frames the host ran ahead of the device.
func (m *Metrics) MaxTimelineDifference() uint64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.maxLag
}
