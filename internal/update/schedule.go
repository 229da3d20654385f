package update

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind describes how the refresh interval is expressed.
type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleInterval
)

// Schedule decides when the next cycle starts.
//
// Supported forms:
//   - Cron: "*/10 7-20 * * 1-6", "@hourly", "@every 15m"
//   - Interval duration: "10m", "1h30m"
//   - Interval HH:MM: "00:10" (10 minutes)
//
// "cron:" and "interval:"/"every:" prefixes force the kind.
type Schedule struct {
	Kind   ScheduleKind
	Expr   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"

	cron cron.Schedule
}

var (
	reHHMM     = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	}
	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	sch, err := parseInterval(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/10 * * * *', HH:MM like '00:10', or duration like '10m')", raw)
	}
	return sch, nil
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule required")
	}
	c, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Schedule{Kind: ScheduleCron, Expr: expr, Source: "cron", cron: c}, nil
}

func parseInterval(v string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Schedule{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '10m')", v)
		}
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: ScheduleInterval, Expr: v, Every: d, Source: src}, nil
}

// Next returns the start of the next cycle after now.
func (s Schedule) Next(now time.Time) time.Time {
	if s.Kind == ScheduleCron && s.cron != nil {
		return s.cron.Next(now)
	}
	return now.Add(s.Every)
}

func (s Schedule) String() string {
	if s.Kind == ScheduleCron {
		return "cron:" + s.Expr
	}
	return "every:" + s.Every.String()
}
