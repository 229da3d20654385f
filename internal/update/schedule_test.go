package update

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     ScheduleKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/10 7-20 * * 1-6", kind: ScheduleCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 8 * * *", kind: ScheduleCron, source: "cron"},
		{name: "descriptor", raw: "@every 15m", kind: ScheduleCron, source: "cron"},
		{name: "duration", raw: "10m", kind: ScheduleInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: ScheduleInterval, source: "duration", duration: 45 * time.Second},
		{name: "hhmm", raw: "every:01:30", kind: ScheduleInterval, source: "hhmm", duration: 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Source != tt.source {
				t.Fatalf("Source = %s, want %s", got.Source, tt.source)
			}
			if tt.kind == ScheduleInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:75", "0s", "cron:", "cron:61 * * * *"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestScheduleNext(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 10, 14, 9, 3, 0, 0, time.Local)

	every, _ := ParseSchedule("10m")
	if got := every.Next(now); !got.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("interval Next = %v", got)
	}
	c, _ := ParseSchedule("*/10 * * * *")
	if got := c.Next(now); !got.Equal(time.Date(2024, 10, 14, 9, 10, 0, 0, time.Local)) {
		t.Fatalf("cron Next = %v", got)
	}
}
