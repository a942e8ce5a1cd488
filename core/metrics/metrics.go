// Package metrics provides the small set of instrumentation primitives the
// dispatch and cluster packages report through, so that the core packages
// stay independent of any metrics backend.
package metrics

import "time"

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	ObserveDuration()
}

// TimerFunc adapts a plain function to Timer.
type TimerFunc func()

func (f TimerFunc) ObserveDuration() { f() }

// Since returns a Timer that passes the elapsed time since now to observe.
func Since(observe func(time.Duration)) Timer {
	start := time.Now()
	return TimerFunc(func() { observe(time.Since(start)) })
}
