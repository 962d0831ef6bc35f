package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// CronParser accepts standard 5-field expressions, an optional leading seconds field and descriptors.
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Schedule tells the engine when to run an integration whose first step is not inbound.
// A cron expression and a fixed interval are mutually exclusive; neither means one immediate run.
type Schedule struct {
	// Cron expression, e.g. "*/5 * * * *" or "30 */5 * * * *" with seconds
	Cron string `json:"cron,omitempty" yaml:"cron,omitempty"`

	// IntervalMillis between two runs of a fixed-interval schedule
	IntervalMillis int64 `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty" validate:"gte=0"`

	// RepeatCount caps the number of interval runs; zero or negative repeats until removed
	RepeatCount int `json:"repeat_count,omitempty" yaml:"repeat_count,omitempty"`

	// Clustered schedules run on at most one engine per lease period
	Clustered bool `json:"clustered,omitempty" yaml:"clustered,omitempty"`
}

// Interval returns the fixed interval as a duration.
func (s *Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalMillis) * time.Millisecond
}

// IsCron reports whether the schedule is cron based.
func (s *Schedule) IsCron() bool {
	return s != nil && s.Cron != ""
}

// IsInterval reports whether the schedule is interval based.
func (s *Schedule) IsInterval() bool {
	return s != nil && s.Cron == "" && s.IntervalMillis > 0
}

// Validate performs validation on the schedule fields.
func (s *Schedule) Validate() error {
	if s.Cron != "" && s.IntervalMillis > 0 {
		return fmt.Errorf("%w: cron and interval are mutually exclusive", ErrInvalidSchedule)
	}

	if s.IntervalMillis < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidSchedule)
	}

	if s.Cron != "" {
		if _, err := CronParser.Parse(s.Cron); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	}

	return nil
}
