package timetable

import (
	"fmt"
	"strings"
	"time"
)

// GroupName identifies a student group as printed in the timetable header,
// e.g. "2-ИС-1" => {Course: 2, Code: "ИС", Subgroup: 1}.
//
// Course 0 marks a non-standard (staff) group whose Code holds the whole
// normalized header text.
type GroupName struct {
	Course   int
	Code     string
	Subgroup int
}

func (g GroupName) IsStaff() bool { return g.Course == 0 }

func (g GroupName) String() string {
	if g.IsStaff() {
		return g.Code
	}
	return fmt.Sprintf("%d-%s-%d", g.Course, g.Code, g.Subgroup)
}

// TeacherName is a teacher fragment as it appears inside a cell.
// Name and Patronymic are usually single initials.
type TeacherName struct {
	Surname    string
	Name       string
	Patronymic string
}

func (t TeacherName) String() string {
	return strings.TrimSpace(t.Surname + " " + t.Name + " " + t.Patronymic)
}

// CabinetRef is a room reference. Aliased rooms (gym) map to reserved numbers.
type CabinetRef struct {
	Number int
}

// Floor follows the building numbering: 305 is on floor 3.
func (c CabinetRef) Floor() int { return c.Number / 100 }

// TimePeriod is a time-of-day range in minutes since midnight.
type TimePeriod struct {
	Start int
	End   int
}

func (p TimePeriod) Valid() bool { return p.Start >= 0 && p.Start < p.End && p.End <= 24*60 }

func (p TimePeriod) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", p.Start/60, p.Start%60, p.End/60, p.End%60)
}

// Date is a calendar day in the single local clock the service runs on.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseISODate parses "YYYY-MM-DD".
func ParseISODate(s string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

func (d Date) Time() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.Local) }

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }

func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Cell is what a single timetable cell yields before any catalog lookup.
type Cell struct {
	Subject      string
	Teachers     []TeacherName
	Cabinets     []CabinetRef
	Subgroup     *int
	Substitution bool
	Raw          string
}

// SessionDraft is one unresolved session: a parsed cell placed on the grid.
// It is consumed exactly once by the ingestion handler.
type SessionDraft struct {
	Date  Date
	Pair  int
	Group GroupName
	Cell
}

// CafeteriaSlot assigns a group to a meal window on a date.
type CafeteriaSlot struct {
	Date   Date
	Group  GroupName
	Period TimePeriod
}

// CallEntry is one row of the bell schedule.
type CallEntry struct {
	Pair   int
	Period TimePeriod
}
