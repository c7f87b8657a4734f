// ABOUTME: Tests for reminder time parsing.
// ABOUTME: Covers clock times, am/pm rules, timezone aliases, ISO datetimes, and future-only validation.

package cron

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeTZ(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"UTC", "UTC"},
		{"gmt", "UTC"},
		{"EST", "America/New_York"},
		{"edt", "America/New_York"},
		{"ET", "America/New_York"},
		{"PST", "America/Los_Angeles"},
		{"pt", "America/Los_Angeles"},
		{"CT", "America/Chicago"},
		{"MT", "America/Denver"},
		{"America/New_York", "America/New_York"},
		{"Europe/Berlin", "Europe/Berlin"},
	}

	for _, tt := range tests {
		if got := NormalizeTZ(tt.in); got != tt.want {
			t.Errorf("NormalizeTZ(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateTZ(t *testing.T) {
	if _, err := ValidateTZ("Not/AZone"); err == nil {
		t.Error("expected error for unknown timezone")
	}
	got, err := ValidateTZ("est")
	if err != nil {
		t.Fatalf("ValidateTZ failed: %v", err)
	}
	if got != "America/New_York" {
		t.Errorf("got %q, want America/New_York", got)
	}
	got, err = ValidateTZ("")
	if err != nil || got != "" {
		t.Errorf("empty tz should validate to empty, got %q, %v", got, err)
	}
}

func TestParseTimeOnly(t *testing.T) {
	tests := []struct {
		in         string
		hour, min  int
		ok         bool
		wantErrSub string
	}{
		{"11am", 11, 0, true, ""},
		{"11AM", 11, 0, true, ""},
		{"11pm", 23, 0, true, ""},
		{"12am", 0, 0, true, ""},
		{"12pm", 12, 0, true, ""},
		{"18:30", 18, 30, true, ""},
		{"9:05 PM", 21, 5, true, ""},
		{"  7  ", 7, 0, true, ""},
		{"0:00", 0, 0, true, ""},
		{"23:59", 23, 59, true, ""},
		{"tomorrow at 9", 0, 0, false, ""},
		{"2026-02-19T11:00:00", 0, 0, false, ""},
		{"24:00", 0, 0, false, "invalid hour"},
		{"13pm", 0, 0, false, "invalid hour"},
		{"0am", 0, 0, false, "invalid hour"},
		{"11:75", 0, 0, false, "invalid minute"},
	}

	for _, tt := range tests {
		hour, min, ok, err := parseTimeOnly(tt.in)
		if tt.wantErrSub != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Errorf("parseTimeOnly(%q): expected error containing %q, got %v", tt.in, tt.wantErrSub, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTimeOnly(%q) failed: %v", tt.in, err)
			continue
		}
		if ok != tt.ok {
			t.Errorf("parseTimeOnly(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && (hour != tt.hour || min != tt.min) {
			t.Errorf("parseTimeOnly(%q) = %d:%02d, want %d:%02d", tt.in, hour, min, tt.hour, tt.min)
		}
	}
}

func TestParseOneTimeAt_ClockTimeRollsToTomorrow(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)

	// 11am has passed today: schedule tomorrow
	fireAt, _, err := parseOneTimeAt("11am", "", now, loc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := time.Date(2026, 3, 11, 11, 0, 0, 0, loc)
	if !fireAt.Equal(want) {
		t.Errorf("got %v, want %v", fireAt, want)
	}

	// 18:30 is still ahead today
	fireAt, _, err = parseOneTimeAt("18:30", "", now, loc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want = time.Date(2026, 3, 10, 18, 30, 0, 0, loc)
	if !fireAt.Equal(want) {
		t.Errorf("got %v, want %v", fireAt, want)
	}
}

func TestParseOneTimeAt_ExplicitTimezone(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	fireAt, tz, err := parseOneTimeAt("9am", "EST", now, time.UTC)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tz != "America/New_York" {
		t.Errorf("resolved tz %q, want America/New_York", tz)
	}

	ny, _ := time.LoadLocation("America/New_York")
	local := fireAt.In(ny)
	if local.Hour() != 9 || local.Minute() != 0 {
		t.Errorf("fire time %v is not 9am New York", local)
	}
}

func TestParseOneTimeAt_TimezoneSuffix(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	fireAt, tz, err := parseOneTimeAt("2026-02-19T11:00:00 EST", "", now, time.UTC)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tz != "America/New_York" {
		t.Errorf("resolved tz %q, want America/New_York", tz)
	}

	ny, _ := time.LoadLocation("America/New_York")
	want := time.Date(2026, 2, 19, 11, 0, 0, 0, ny)
	if !fireAt.Equal(want) {
		t.Errorf("got %v, want %v", fireAt, want)
	}
}

func TestParseOneTimeAt_ISO(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Offset form
	fireAt, _, err := parseOneTimeAt("2026-02-19T11:00:00-05:00", "", now, time.UTC)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !fireAt.Equal(time.Date(2026, 2, 19, 16, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected fire time %v", fireAt)
	}

	// Zulu form
	fireAt, _, err = parseOneTimeAt("2026-02-19T11:00:00Z", "", now, time.UTC)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !fireAt.Equal(time.Date(2026, 2, 19, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected fire time %v", fireAt)
	}

	// Naive form is interpreted in the resolved zone
	fireAt, _, err = parseOneTimeAt("2026-02-19T11:00:00", "UTC", now, time.UTC)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !fireAt.Equal(time.Date(2026, 2, 19, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected fire time %v", fireAt)
	}
}

func TestParseOneTimeAt_Errors(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   string
		tz   string
	}{
		{"empty", "", ""},
		{"whitespace", "   ", ""},
		{"garbage", "next blue moon", ""},
		{"past datetime", "2020-01-01T00:00:00Z", ""},
		{"now exactly", "2026-03-10T12:00:00Z", ""},
		{"bad timezone", "11am", "Not/AZone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseOneTimeAt(tt.at, tt.tz, now, time.UTC); err == nil {
				t.Errorf("expected error for at=%q tz=%q", tt.at, tt.tz)
			}
		})
	}
}

func TestParseOneTimeAt_InvalidSuffixKeptAsText(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// "banana" looks like a tz suffix but isn't one; the whole text must
	// then fail as a datetime rather than silently dropping the suffix.
	if _, _, err := parseOneTimeAt("2026-02-19T11:00:00 banana", "", now, time.UTC); err == nil {
		t.Error("expected error for invalid trailing token")
	}
}
