// Package perfmonitor measures wall-clock time between a Start and a Stop
// call. The tick driver uses it to spot frames that overrun their budget.
package perfmonitor

import "time"

// PerformanceMonitor records a start and end instant. It is not safe for
// concurrent use.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a monitor with no measurement in progress.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start records the start instant, overwriting any previous one.
func (pm *PerformanceMonitor) Start() {
	pm.startTime = time.Now()
}

// Stop records the end instant. It does nothing if Start was not called
// since the last Reset.
func (pm *PerformanceMonitor) Stop() {
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Reset clears both instants.
func (pm *PerformanceMonitor) Reset() {
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the duration between Start and Stop, or zero if either is
// missing.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed in fractional milliseconds.
//
// Returns:
//   - The elapsed time in milliseconds, or 0 if Start or Stop was not called
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}
