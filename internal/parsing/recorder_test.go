package parsing

import (
	"fmt"
	"time"

	"raspisanie/internal/timetable"
)

// recorder is a Handler that keeps every event as a compact string.
type recorder struct {
	events     []string
	drafts     []timetable.SessionDraft
	calls      []timetable.CallEntry
	slots      []timetable.CafeteriaSlot
	links      map[string]string
	unparsable []*UnparsableError
}

func newRecorder() *recorder { return &recorder{links: map[string]string{}} }

func (r *recorder) Link(label, href string) {
	r.links[label] = href
	r.events = append(r.events, "link "+label)
}

func (r *recorder) NewDate(date, prev timetable.Date) {
	r.events = append(r.events, fmt.Sprintf("date %s<-%s", date, prev))
}

func (r *recorder) ParsedPair(d timetable.SessionDraft) {
	r.drafts = append(r.drafts, d)
	r.events = append(r.events, fmt.Sprintf("pair %d %s", d.Pair, d.Group))
}

func (r *recorder) NewCallSchedule() { r.events = append(r.events, "calls") }

func (r *recorder) PairTime(e timetable.CallEntry) { r.calls = append(r.calls, e) }

func (r *recorder) NewCvpDate(date timetable.Date) {
	r.events = append(r.events, "cvp "+date.String())
}

func (r *recorder) CvpItem(slot timetable.CafeteriaSlot) { r.slots = append(r.slots, slot) }

func (r *recorder) Unparsable(err *UnparsableError) { r.unparsable = append(r.unparsable, err) }

var fixedNow = func() time.Time { return time.Date(2024, time.October, 14, 9, 0, 0, 0, time.Local) }

func newTestParser() *Parser { return New(Options{Now: fixedNow}) }
