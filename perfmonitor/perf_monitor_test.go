package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()

	assert.NotNil(t, pm)
	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
}

func TestStop(t *testing.T) {
	t.Run("sets end time after start", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()

		assert.False(t, pm.endTime.IsZero())
		assert.False(t, pm.endTime.Before(pm.startTime))
	})

	t.Run("does nothing without start", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Stop()

		assert.True(t, pm.endTime.IsZero())
	})

	t.Run("does nothing after reset", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Reset()
		pm.Stop()

		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
	})
}

func TestElapsed(t *testing.T) {
	t.Run("zero until both ends are recorded", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())

		pm.Start()
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
		assert.Equal(t, time.Duration(0), pm.Elapsed())
	})

	t.Run("measures a sleep", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(20 * time.Millisecond)
		pm.Stop()

		assert.GreaterOrEqual(t, pm.ElapsedMilliseconds(), 20.0)
		assert.GreaterOrEqual(t, pm.Elapsed(), 20*time.Millisecond)
	})

	t.Run("later stop extends the measurement", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(5 * time.Millisecond)
		pm.Stop()
		first := pm.ElapsedMilliseconds()

		time.Sleep(5 * time.Millisecond)
		pm.Stop()

		assert.Greater(t, pm.ElapsedMilliseconds(), first)
	})

	t.Run("zero after reset", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()
		pm.Reset()

		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})
}
