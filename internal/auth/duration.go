package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var relativeExpiry = regexp.MustCompile(`^(\d+)([dwh])$`)

// ParseExpiration turns a token lifetime into an absolute expiry relative to
// now. Accepted forms:
//   - "never" or "" - no expiration (nil)
//   - "30d", "2w", "24h" - days, weeks or hours from now
//   - any Go duration such as "90m" or "2h30m"
//   - "mm/dd/yyyy" or "mm/dd/yyyy HH:MM" in UTC, which must lie in the future
func ParseExpiration(expiresIn string, now time.Time) (*time.Time, error) {
	if expiresIn == "" || expiresIn == "never" {
		return nil, nil
	}

	if dur, err := time.ParseDuration(expiresIn); err == nil {
		if dur <= 0 {
			return nil, fmt.Errorf("expiration must be positive: %s", expiresIn)
		}
		t := now.Add(dur)
		return &t, nil
	}

	for _, layout := range []string{"01/02/2006 15:04", "01/02/2006"} {
		if t, err := time.Parse(layout, expiresIn); err == nil {
			if !t.After(now) {
				return nil, fmt.Errorf("expiration date must be in the future: %s", expiresIn)
			}
			return &t, nil
		}
	}

	m := relativeExpiry.FindStringSubmatch(expiresIn)
	if len(m) != 3 {
		return nil, fmt.Errorf("invalid expiration format: %s (use 'never', '30d', '2w', '24h', '12/25/2026', or a Go duration like '30m')", expiresIn)
	}
	num, err := strconv.Atoi(m[1])
	if err != nil || num == 0 {
		return nil, fmt.Errorf("invalid number in expiration: %s", expiresIn)
	}

	day := 24 * time.Hour
	var dur time.Duration
	switch m[2] {
	case "d":
		dur = time.Duration(num) * day
	case "w":
		dur = time.Duration(num) * 7 * day
	case "h":
		dur = time.Duration(num) * time.Hour
	}
	t := now.Add(dur)
	return &t, nil
}
