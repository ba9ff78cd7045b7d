package node

import (
	"time"

	"github.com/sweeney/lora-node/internal/logic"
)

// SystemClock is the time-of-day source: the wall clock at start plus the
// monotonic time elapsed since, so wall clock steps never reach the press
// timer.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a clock at the current time.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the current SysTime.
func (c *SystemClock) Now() logic.SysTime {
	ms := c.start.UnixMilli() + time.Since(c.start).Milliseconds()
	return logic.SysTime{
		Seconds:    uint32(ms / 1000),
		SubSeconds: int16(ms % 1000),
	}
}
