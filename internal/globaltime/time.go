// Package globaltime is the process clock. Tests pin it with SetMockTime so
// fetch timestamps, run timestamps and query dates are reproducible.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
	mocked  bool
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// DayBefore returns the UTC calendar date preceding now, formatted YYYY-MM-DD.
func DayBefore() string {
	return UTC().AddDate(0, 0, -1).Format("2006-01-02")
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
	mocked = true
}

// Advance moves a mocked clock forward. It does nothing on the real clock.
func Advance(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if !mocked {
		return
	}
	next := nowFunc().Add(d)
	nowFunc = func() time.Time { return next }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
	mocked = false
}
