package scheduler

import (
	"sync/atomic"
	"time"
)

// intervalSchedule fires every interval, the first time one interval after scheduling.
// A positive repeat caps the number of firings.
type intervalSchedule struct {
	interval time.Duration
	repeat   int64
	calls    atomic.Int64
}

func newIntervalSchedule(interval time.Duration, repeat int) *intervalSchedule {
	return &intervalSchedule{interval: interval, repeat: int64(repeat)}
}

// Next implements cron.Schedule. The cron runner asks for the next activation once when the
// entry is added and once after every firing; a zero time stops the entry.
func (s *intervalSchedule) Next(t time.Time) time.Time {
	n := s.calls.Add(1)
	if s.repeat > 0 && n > s.repeat {
		return time.Time{}
	}

	return t.Add(s.interval)
}
