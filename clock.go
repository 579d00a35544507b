package coros

import "time"

// clock hands out monotonic microsecond timestamps relative to a scheduler's
// birth, the same unit sleep_deadline and birth are specified in.
type clock struct {
	birth time.Time
}

func newClock() *clock {
	return &clock{birth: time.Now()}
}

// nowMicro returns microseconds elapsed since the clock was created.
func (c *clock) nowMicro() int64 {
	return time.Since(c.birth).Microseconds()
}

// deadlineMicro converts a duration into an absolute deadline in this
// clock's frame.
func (c *clock) deadlineMicro(d time.Duration) int64 {
	return c.nowMicro() + d.Microseconds()
}
