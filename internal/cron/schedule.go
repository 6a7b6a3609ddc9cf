package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule refreshes every six hours. IERS republishes finals2000A
// daily.
const DefaultSchedule = "21600"

// ValidateSchedule accepts a positive number of seconds or a standard
// five-field cron expression.
func ValidateSchedule(setting string) error {
	setting = strings.TrimSpace(setting)
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return fmt.Errorf("cron: interval must be positive, got %d", v)
		}
		return nil
	}
	if _, err := cron.ParseStandard(setting); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", setting, err)
	}
	return nil
}

// NextRun returns the time of the next run after last. An unusable setting
// falls back to DefaultSchedule.
func NextRun(setting string, last time.Time) time.Time {
	setting = strings.TrimSpace(setting)
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return last.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(last)
	}
	v, _ := strconv.Atoi(DefaultSchedule)
	return last.Add(time.Duration(v) * time.Second)
}
