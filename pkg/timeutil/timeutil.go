package timeutil

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTime formats seconds as M:SS, or H:MM:SS once the value reaches an hour.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}

// ParseTimeToSeconds parses a time string in HH:MM:SS, MM:SS, or raw seconds format.
// The final component may carry a fractional part ("1:05.5").
func ParseTimeToSeconds(timeStr string) (float64, error) {
	s := strings.TrimSpace(timeStr)
	if s == "" {
		return 0, fmt.Errorf("empty time value")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("expected HH:MM:SS, MM:SS, or seconds, got '%s'", timeStr)
	}

	var total float64
	for i, part := range parts {
		last := i == len(parts)-1
		var v float64
		if last {
			f, err := strconv.ParseFloat(part, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return 0, fmt.Errorf("expected HH:MM:SS, MM:SS, or seconds, got '%s'", timeStr)
			}
			v = f
		} else {
			n, err := strconv.Atoi(part)
			if err != nil {
				return 0, fmt.Errorf("expected HH:MM:SS, MM:SS, or seconds, got '%s'", timeStr)
			}
			v = float64(n)
		}
		if v < 0 {
			return 0, fmt.Errorf("negative time component in '%s'", timeStr)
		}
		// Minutes and seconds fields are bounded once a larger unit precedes them.
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("time component out of range in '%s'", timeStr)
		}
		total = total*60 + v
	}
	return total, nil
}
