package scheduler

import (
	"time"
)

// Clock abstracts one-shot delayed callbacks so undo windows and tests can
// control time explicitly instead of depending on package-level timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (rt realTimer) Stop() bool {
	return rt.t.Stop()
}
