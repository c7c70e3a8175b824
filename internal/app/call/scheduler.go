package call

import (
	"sync"
	"time"
)

// Scheduler runs fn periodically until the returned stop func is called.
// stop must not wait for an in-flight fn.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

type TickerScheduler struct{}

func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	t := time.NewTicker(d)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(quit)
		})
	}
}
