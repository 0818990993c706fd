package core

import "sync"

// frameSampleCount is the width of the rolling frame-time window.
const frameSampleCount = 30

type metricsData struct {
	sampleCursor  uint8
	samplesMS     [frameSampleCount]float64
	avgFrameMS    float64
	frames        int32
	accumulatedMS float64
	fps           float64
}

var metricsOnce sync.Once
var metrics *metricsData

// MetricsInitialize resets the frame metrics state. MetricsUpdate
// initializes lazily, so hosts driving the scheduler directly may skip
// this call.
func MetricsInitialize() error {
	metricsOnce.Do(func() {
		metrics = &metricsData{}
	})
	return nil
}

// MetricsUpdate folds one frame's elapsed seconds into the rolling
// frame-time average and the FPS counter.
func MetricsUpdate(elapsedSeconds float64) {
	MetricsInitialize()
	m := metrics

	frameMS := elapsedSeconds * 1000.0
	m.samplesMS[m.sampleCursor] = frameMS
	if m.sampleCursor == frameSampleCount-1 {
		var sum float64
		for i := 0; i < frameSampleCount; i++ {
			sum += m.samplesMS[i]
		}
		m.avgFrameMS = sum / frameSampleCount
	}
	m.sampleCursor = (m.sampleCursor + 1) % frameSampleCount

	m.accumulatedMS += frameMS
	if m.accumulatedMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func MetricsFPS() float64 {
	if metrics == nil {
		return 0
	}
	return metrics.fps
}

func MetricsFrameTime() float64 {
	if metrics == nil {
		return 0
	}
	return metrics.avgFrameMS
}

func MetricsFrame() (float64, float64) {
	return MetricsFPS(), MetricsFrameTime()
}
