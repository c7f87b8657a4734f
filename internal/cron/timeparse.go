// ABOUTME: Parses one-time reminder target times with timezone support.
// ABOUTME: Accepts ISO datetimes, bare clock times, and common US timezone abbreviations.

package cron

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// tzAliases maps common abbreviations to IANA zone names. Abbreviations are
// ambiguous (EST vs EDT), so both map to the zone that applies DST rules.
var tzAliases = map[string]string{
	"UTC": "UTC",
	"GMT": "UTC",
	"EST": "America/New_York",
	"EDT": "America/New_York",
	"ET":  "America/New_York",
	"CST": "America/Chicago",
	"CDT": "America/Chicago",
	"CT":  "America/Chicago",
	"MST": "America/Denver",
	"MDT": "America/Denver",
	"MT":  "America/Denver",
	"PST": "America/Los_Angeles",
	"PDT": "America/Los_Angeles",
	"PT":  "America/Los_Angeles",
}

var (
	timeOnlyRE     = regexp.MustCompile(`^\s*(\d{1,2})(?::(\d{2}))?\s*([AaPp][Mm])?\s*$`)
	atWithTZRE     = regexp.MustCompile(`^\s*(.+?)\s+([A-Za-z]{2,5})\s*$`)
	isoNoZoneForms = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	isoZoneForms = []string{
		time.RFC3339,
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04-07:00",
	}
)

// NormalizeTZ expands common timezone abbreviations to IANA names.
// Unknown values pass through unchanged; empty input returns "".
func NormalizeTZ(tz string) string {
	value := strings.TrimSpace(tz)
	if value == "" {
		return ""
	}
	if alias, ok := tzAliases[strings.ToUpper(value)]; ok {
		return alias
	}
	return value
}

// ValidateTZ normalizes a timezone and verifies it loads.
// Empty input is valid and returns ("", nil).
func ValidateTZ(tz string) (string, error) {
	normalized := NormalizeTZ(tz)
	if normalized == "" {
		return "", nil
	}
	if _, err := time.LoadLocation(normalized); err != nil {
		return "", fmt.Errorf("unknown timezone %q", tz)
	}
	return normalized, nil
}

// parseTimeOnly parses a bare clock time like "11am", "18:30", or "9:05 PM".
// Returns ok=false when the input is not a bare clock time at all.
func parseTimeOnly(value string) (hour, minute int, ok bool, err error) {
	m := timeOnlyRE.FindStringSubmatch(value)
	if m == nil {
		return 0, 0, false, nil
	}

	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	ampm := strings.ToLower(m[3])

	if minute > 59 {
		return 0, 0, false, fmt.Errorf("invalid minute in time")
	}

	if ampm != "" {
		if hour < 1 || hour > 12 {
			return 0, 0, false, fmt.Errorf("invalid hour in time")
		}
		if ampm == "pm" && hour != 12 {
			hour += 12
		}
		if ampm == "am" && hour == 12 {
			hour = 0
		}
	} else if hour > 23 {
		return 0, 0, false, fmt.Errorf("invalid hour in time")
	}

	return hour, minute, true, nil
}

// ParseOneTimeAt parses a one-time reminder target and returns the fire time
// plus the timezone it resolved, if any.
//
// Supported inputs:
//   - ISO datetime, with or without offset (2026-02-19T11:00:00-05:00)
//   - Bare clock time (11am, 18:30) -> next occurrence
//   - Timezone suffix inside at ("2026-02-19T11:00:00 EST")
//
// An explicit tz argument wins over a suffix. ISO datetimes must be in the
// future; bare clock times roll to tomorrow when today's slot has passed.
func ParseOneTimeAt(at, tz string) (time.Time, string, error) {
	return parseOneTimeAt(at, tz, time.Now(), time.Local)
}

func parseOneTimeAt(at, tz string, now time.Time, local *time.Location) (time.Time, string, error) {
	text := strings.TrimSpace(at)
	if text == "" {
		return time.Time{}, "", fmt.Errorf("at is required")
	}

	resolvedTZ, err := ValidateTZ(tz)
	if err != nil {
		return time.Time{}, "", err
	}

	if resolvedTZ == "" {
		if m := atWithTZRE.FindStringSubmatch(text); m != nil {
			if candidate, err := ValidateTZ(m[2]); err == nil && candidate != "" {
				resolvedTZ = candidate
				text = strings.TrimSpace(m[1])
			}
			// An invalid suffix is not an error: the text may simply not
			// carry a timezone.
		}
	}

	loc := local
	if resolvedTZ != "" {
		loc, err = time.LoadLocation(resolvedTZ)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("unknown timezone %q", resolvedTZ)
		}
	}

	hour, minute, ok, err := parseTimeOnly(text)
	if err != nil {
		return time.Time{}, "", err
	}
	if ok {
		localNow := now.In(loc)
		target := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, minute, 0, 0, loc)
		if !target.After(localNow) {
			target = target.AddDate(0, 0, 1)
		}
		return target, resolvedTZ, nil
	}

	dt, err := parseISO(text, loc)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid datetime %q", at)
	}
	if !dt.After(now) {
		return time.Time{}, "", fmt.Errorf("at must be in the future")
	}
	return dt, resolvedTZ, nil
}

// parseISO parses an ISO-8601 datetime. Forms without an offset are
// interpreted in loc.
func parseISO(text string, loc *time.Location) (time.Time, error) {
	normalized := strings.Replace(text, "Z", "+00:00", 1)

	for _, layout := range isoZoneForms {
		if dt, err := time.Parse(layout, normalized); err == nil {
			return dt, nil
		}
	}
	for _, layout := range isoNoZoneForms {
		if dt, err := time.ParseInLocation(layout, text, loc); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", text)
}
