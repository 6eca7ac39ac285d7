// Package scheduler provides a small scheduling abstraction so debounce
// logic can be driven by real timers in production and by hand in tests.
package scheduler

import "time"

// CancelFunc cancels a scheduled call. It reports false if the call already
// ran or was cancelled before.
type CancelFunc func() bool

// Scheduler schedules a function to run once after a delay
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}

// TimerScheduler is the production Scheduler backed by time.AfterFunc.
// Scheduled functions run on their own goroutine.
type TimerScheduler struct{}

// New creates a TimerScheduler
func New() *TimerScheduler {
	return &TimerScheduler{}
}

// Schedule runs fn after delay unless cancelled first
func (s *TimerScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(delay, fn)
	return t.Stop
}
