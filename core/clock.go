package core

import "time"

// Clock is the wall-clock source of every timestamp the chatroom records.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

var SystemClock Clock = ClockFunc(time.Now)

// TimeLabel formats t as HH:MM in t's own location.
func TimeLabel(t time.Time) string {
	return t.Format("15:04")
}
