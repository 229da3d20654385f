package parsing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"raspisanie/internal/timetable"
)

var (
	reNumericDate = regexp.MustCompile(`(\d{1,2})[./](\d{1,2})(?:[./](\d{4}|\d{2}))?`)
	reWordDate    = regexp.MustCompile(`(\d{1,2})\s+([а-яё]+)(?:\s+(\d{4}))?`)

	// Week parity markers printed next to the date.
	weekMarkers = []string{"знаменатель", "числитель"}

	monthStems = []struct {
		stem  string
		month time.Month
	}{
		{"янв", time.January}, {"фев", time.February}, {"мар", time.March},
		{"апр", time.April}, {"мая", time.May}, {"май", time.May},
		{"июн", time.June}, {"июл", time.July}, {"авг", time.August},
		{"сен", time.September}, {"окт", time.October}, {"ноя", time.November},
		{"дек", time.December},
	}
)

// pastGrace keeps recently passed dates without a year in the current year
// instead of moving them a year ahead.
const pastGrace = 7 * 24 * time.Hour

// DateParser reads Russian dates such as "15 октября", "15.10.2024" or
// "на 15 октября 2024 г. (знаменатель)". A missing year resolves to the
// nearest upcoming date.
type DateParser struct {
	Now func() time.Time
}

func (p DateParser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p DateParser) Parse(text string) (timetable.Date, bool) {
	s := strings.ToLower(text)
	for _, m := range weekMarkers {
		s = strings.ReplaceAll(s, m, " ")
	}
	s = timetable.NormalizeText(s)
	if s == "" {
		return timetable.Date{}, false
	}

	if m := reNumericDate.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return p.build(day, time.Month(month), m[3])
	}
	for _, m := range reWordDate.FindAllStringSubmatch(s, -1) {
		month, ok := monthFromWord(m[2])
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		return p.build(day, month, m[3])
	}
	return timetable.Date{}, false
}

func (p DateParser) build(day int, month time.Month, year string) (timetable.Date, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return timetable.Date{}, false
	}
	now := p.now()
	var y int
	switch len(year) {
	case 4:
		y, _ = strconv.Atoi(year)
	case 2:
		y, _ = strconv.Atoi(year)
		y += 2000
	default:
		y = now.Year()
		t := time.Date(y, month, day, 0, 0, 0, 0, time.Local)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
		if t.Add(pastGrace).Before(today) {
			y++
		}
	}
	t := time.Date(y, month, day, 0, 0, 0, 0, time.Local)
	if t.Day() != day || t.Month() != month {
		// 31.02 and friends normalize into the next month.
		return timetable.Date{}, false
	}
	return timetable.DateOf(t), true
}

func monthFromWord(w string) (time.Month, bool) {
	for _, ms := range monthStems {
		if strings.HasPrefix(w, ms.stem) {
			return ms.month, true
		}
	}
	return 0, false
}
