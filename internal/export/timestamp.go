package export

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTimestamp renders seconds as [HH:]MM:SS<marker>mmm. Hours are
// included only when non-zero unless alwaysIncludeHours is set; SRT and VTT
// mandate hours, the inline plain-text display omits them when zero.
func FormatTimestamp(seconds float64, alwaysIncludeHours bool, decimalMarker string) string {
	totalMs := int64(math.Round(seconds * 1000))
	if totalMs < 0 {
		totalMs = 0
	}

	hours := totalMs / 3_600_000
	totalMs -= hours * 3_600_000
	minutes := totalMs / 60_000
	totalMs -= minutes * 60_000
	secs := totalMs / 1_000
	millis := totalMs - secs*1_000

	hoursMarker := ""
	if alwaysIncludeHours || hours != 0 {
		hoursMarker = fmt.Sprintf("%02d:", hours)
	}

	return fmt.Sprintf("%s%02d:%02d%s%03d", hoursMarker, minutes, secs, decimalMarker, millis)
}

// ParseTimestamp reads a timestamp produced by FormatTimestamp back into
// seconds, accepting both comma and dot millisecond markers and an optional
// hours field.
func ParseTimestamp(value string) (float64, error) {
	normalized := strings.Replace(strings.TrimSpace(value), ",", ".", 1)

	var millis int64
	if dot := strings.IndexByte(normalized, '.'); dot >= 0 {
		frac := normalized[dot+1:]
		if len(frac) != 3 {
			return 0, fmt.Errorf("timestamp %q: milliseconds must have 3 digits", value)
		}
		ms, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", value, err)
		}
		millis = ms
		normalized = normalized[:dot]
	}

	parts := strings.Split(normalized, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("timestamp %q: expected MM:SS or HH:MM:SS", value)
	}

	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", value, err)
		}
		total = total*60 + n
	}

	return float64(total) + float64(millis)/1000, nil
}

// FormatDuration renders the span between start and stop for inline display,
// omitting the hours field when zero.
func FormatDuration(start, stop float64) string {
	seconds := stop - start
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds))

	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
