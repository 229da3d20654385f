// Package ingest turns parse events into storage writes.
//
// Parsers push events into a Batch. A Sink then replays one or more batches
// in order: the store-backed sink inside a single transaction, the log sink
// as a dry run.
package ingest

import (
	"fmt"

	"raspisanie/internal/parsing"
	"raspisanie/internal/timetable"
)

type Kind uint8

const (
	KindNewDate Kind = iota + 1
	KindPair
	KindNewCallSchedule
	KindPairTime
	KindNewCvpDate
	KindCvpItem
)

func (k Kind) String() string {
	switch k {
	case KindNewDate:
		return "new_date"
	case KindPair:
		return "pair"
	case KindNewCallSchedule:
		return "new_call_schedule"
	case KindPairTime:
		return "pair_time"
	case KindNewCvpDate:
		return "new_cvp_date"
	case KindCvpItem:
		return "cvp_item"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is one captured parse event. Only the fields of its Kind are set.
type Event struct {
	Kind  Kind
	Date  timetable.Date
	Prev  timetable.Date
	Draft timetable.SessionDraft
	Call  timetable.CallEntry
	Slot  timetable.CafeteriaSlot
}

type Link struct {
	Label string
	Href  string
}

// Batch collects the events of one document. It implements parsing.Handler.
type Batch struct {
	Events []Event
	Links  []Link
	Issues []*parsing.UnparsableError
}

var _ parsing.Handler = (*Batch)(nil)

func (b *Batch) Link(label, href string) {
	b.Links = append(b.Links, Link{Label: label, Href: href})
}

func (b *Batch) NewDate(date, prev timetable.Date) {
	b.Events = append(b.Events, Event{Kind: KindNewDate, Date: date, Prev: prev})
}

func (b *Batch) ParsedPair(d timetable.SessionDraft) {
	b.Events = append(b.Events, Event{Kind: KindPair, Date: d.Date, Draft: d})
}

func (b *Batch) NewCallSchedule() {
	b.Events = append(b.Events, Event{Kind: KindNewCallSchedule})
}

func (b *Batch) PairTime(e timetable.CallEntry) {
	b.Events = append(b.Events, Event{Kind: KindPairTime, Call: e})
}

func (b *Batch) NewCvpDate(date timetable.Date) {
	b.Events = append(b.Events, Event{Kind: KindNewCvpDate, Date: date})
}

func (b *Batch) CvpItem(slot timetable.CafeteriaSlot) {
	b.Events = append(b.Events, Event{Kind: KindCvpItem, Date: slot.Date, Slot: slot})
}

func (b *Batch) Unparsable(err *parsing.UnparsableError) {
	b.Issues = append(b.Issues, err)
}

// Count returns how many events of kind k the batch holds.
func (b *Batch) Count(k Kind) int {
	n := 0
	for _, e := range b.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// FindLink returns the first link whose label contains want, case-insensitively.
func (b *Batch) FindLink(want string) (Link, bool) {
	for _, l := range b.Links {
		if containsFold(l.Label, want) {
			return l, true
		}
	}
	return Link{}, false
}
