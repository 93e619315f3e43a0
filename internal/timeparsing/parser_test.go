package timeparsing

import (
	"testing"
	"time"
)

// Wednesday, January 15, 2025, 10:00
var now = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func TestParseCompactDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"6h", now.Add(-6 * time.Hour)},
		{"-1d", now.AddDate(0, 0, -1)},
		{"+2w", now.AddDate(0, 0, 14)},
		{"3m", now.AddDate(0, -3, 0)},
		{"1y", now.AddDate(-1, 0, 0)},
	}
	for _, tt := range tests {
		got, err := ParseCompactDuration(tt.in, now)
		if err != nil {
			t.Fatalf("ParseCompactDuration(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseCompactDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "d", "1x", "1.5h", "++1d"} {
		if IsCompactDuration(bad) {
			t.Errorf("IsCompactDuration(%q) = true", bad)
		}
	}
}

func TestParseRelativeTimeAbsolute(t *testing.T) {
	tests := map[string]time.Time{
		"2025-01-01":                time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		"2025-01-01 08:30":          time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC),
		"2025-01-01T08:30:00Z":      time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC),
		"2025-01-01T08:30:00+02:00": time.Date(2025, 1, 1, 6, 30, 0, 0, time.UTC),
	}
	for in, want := range tests {
		got, err := ParseRelativeTime(in, now)
		if err != nil {
			t.Fatalf("ParseRelativeTime(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Errorf("ParseRelativeTime(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseRelativeTimeNaturalLanguage(t *testing.T) {
	got, err := ParseRelativeTime("yesterday", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(yesterday): %v", err)
	}
	if got.Year() != 2025 || got.Month() != time.January || got.Day() != 14 {
		t.Errorf("yesterday = %v, want 2025-01-14", got)
	}
}

func TestParseRelativeTimeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not a time at all"} {
		if _, err := ParseRelativeTime(in, now); err == nil {
			t.Errorf("ParseRelativeTime(%q) succeeded, want error", in)
		}
	}
}
