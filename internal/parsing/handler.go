package parsing

import "raspisanie/internal/timetable"

// Handler receives parse events in document order.
//
// Parsers never touch storage: everything they find is pushed here, and the
// ingest layer decides what to do with it.
type Handler interface {
	// Link reports a labelled sub-document link found in a timetable paragraph.
	Link(label, href string)
	// NewDate starts a new timetable date. prev is zero for the first one.
	NewDate(date, prev timetable.Date)
	ParsedPair(d timetable.SessionDraft)

	NewCallSchedule()
	PairTime(e timetable.CallEntry)

	NewCvpDate(date timetable.Date)
	CvpItem(slot timetable.CafeteriaSlot)

	Unparsable(err *UnparsableError)
}
