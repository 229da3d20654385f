package ingest

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// Entities reported through Stats.Misses.
const (
	EntityGroup   = "group"
	EntityTeacher = "teacher"
	EntityCabinet = "cabinet"
)

// Stats summarizes one Apply.
type Stats struct {
	DatesReplaced int
	Sessions      int
	CallEntries   int
	Slots         int
	Misses        map[string]int
}

func (s *Stats) miss(entity string) {
	if s.Misses == nil {
		s.Misses = map[string]int{}
	}
	s.Misses[entity]++
}

func (s Stats) Fields() []logx.Field {
	return []logx.Field{
		logx.Int("dates", s.DatesReplaced),
		logx.Int("sessions", s.Sessions),
		logx.Int("calls", s.CallEntries),
		logx.Int("slots", s.Slots),
		logx.Any("misses", s.Misses),
	}
}

// Sink consumes the ordered events of one update cycle.
//
// fingerprints are recorded together with the events; a sink that fails
// must not record them.
type Sink interface {
	Apply(ctx context.Context, events []Event, fingerprints map[string]string) (Stats, error)
}

// LogSink prints events instead of storing them. Used for dry runs.
type LogSink struct {
	W io.Writer
}

func (s LogSink) Apply(ctx context.Context, events []Event, fingerprints map[string]string) (Stats, error) {
	var st Stats
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		var line string
		switch e.Kind {
		case KindNewDate:
			st.DatesReplaced++
			line = fmt.Sprintf("date %s", e.Date)
		case KindPair:
			st.Sessions++
			line = formatDraft(e.Draft)
		case KindNewCallSchedule:
			line = "calls"
		case KindPairTime:
			st.CallEntries++
			line = fmt.Sprintf("  pair %d %s", e.Call.Pair, e.Call.Period)
		case KindNewCvpDate:
			line = fmt.Sprintf("cafeteria %s", e.Date)
		case KindCvpItem:
			st.Slots++
			line = fmt.Sprintf("  %s %s", e.Slot.Period, e.Slot.Group)
		default:
			continue
		}
		if _, err := fmt.Fprintln(s.W, line); err != nil {
			return st, err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(fingerprints)) {
		if _, err := fmt.Fprintf(s.W, "fingerprint %s %s\n", k, fingerprints[k]); err != nil {
			return st, err
		}
	}
	return st, nil
}

func formatDraft(d timetable.SessionDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %d %s: %s", d.Pair, d.Group, d.Subject)
	for _, t := range d.Teachers {
		b.WriteString(" / " + t.String())
	}
	for _, c := range d.Cabinets {
		fmt.Fprintf(&b, " [%d]", c.Number)
	}
	if d.Subgroup != nil {
		fmt.Fprintf(&b, " (%d п/гр)", *d.Subgroup)
	}
	if d.Substitution {
		b.WriteString(" (замена)")
	}
	return b.String()
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
