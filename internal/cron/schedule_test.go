package cron

import (
	"testing"
	"time"
)

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"300", " 60 ", "*/5 * * * *", "0 3 * * *", "@daily"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "0", "-10", "every day", "61 * * * *"} {
		if err := ValidateSchedule(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestNextRun(t *testing.T) {
	last := time.Date(2024, 6, 1, 10, 17, 0, 0, time.UTC)

	if got := NextRun("300", last); !got.Equal(last.Add(5 * time.Minute)) {
		t.Errorf("seconds: got %v", got)
	}
	if got := NextRun("0 */6 * * *", last); !got.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("cron: got %v", got)
	}
	if got := NextRun("garbage", last); !got.Equal(last.Add(6 * time.Hour)) {
		t.Errorf("fallback: got %v", got)
	}
}
