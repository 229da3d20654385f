package timetable

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	reGroupName = regexp.MustCompile(`^\s*(\d)\s*-?\s*([А-Я]{1,2})\s*-?\s*(\d)`)
	// "с 8.30 до 10.00 rest" or "8:30-10:00 rest".
	rePeriodPrefix = regexp.MustCompile(`(?s)^\s*с?\s*(\d+)[.,:](\d+)\s*(?:до|.)\s*(\d+)[.,:](\d+)\s*(.*)$`)
)

// NormalizeText collapses every whitespace run (including NBSP) into a
// single space and trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// ParsePairNumber keeps only the digits of s. With no digits the fallback is returned.
func ParsePairNumber(s string, fallback int) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return fallback
	}
	return n
}

// ParseGroupName matches a group name at the start of s (case-insensitive).
func ParseGroupName(s string) (GroupName, bool) {
	m := reGroupName.FindStringSubmatch(strings.ToUpper(NormalizeText(s)))
	if m == nil {
		return GroupName{}, false
	}
	course, _ := strconv.Atoi(m[1])
	sub, _ := strconv.Atoi(m[3])
	return GroupName{Course: course, Code: m[2], Subgroup: sub}, true
}

// ParseHeaderGroup is the permissive variant used for timetable headers:
// text that is not a group name becomes a staff group. Text without a letter
// or digit yields ok=false.
func ParseHeaderGroup(s string) (GroupName, bool) {
	norm := NormalizeText(s)
	if strings.IndexFunc(norm, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		return GroupName{}, false
	}
	if g, ok := ParseGroupName(norm); ok {
		return g, true
	}
	return GroupName{Course: 0, Code: strings.ToUpper(norm), Subgroup: 1}, true
}

// ParseTimePeriod reads a leading time range and returns the text after it.
func ParseTimePeriod(s string) (TimePeriod, string, bool) {
	m := rePeriodPrefix.FindStringSubmatch(s)
	if m == nil {
		return TimePeriod{}, s, false
	}
	p, ok := periodFromMatch(m[1:5])
	if !ok {
		return TimePeriod{}, s, false
	}
	return p, strings.TrimSpace(m[5]), true
}

// ParseCallTime parses a bell schedule cell such as "8.30-10.00" or
// "с 8.30 до 10.00". Text after the range is ignored.
func ParseCallTime(s string) (TimePeriod, bool) {
	p, _, ok := ParseTimePeriod(NormalizeText(s))
	return p, ok
}

func periodFromMatch(parts []string) (TimePeriod, bool) {
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return TimePeriod{}, false
		}
		v[i] = n
	}
	if v[1] > 59 || v[3] > 59 {
		return TimePeriod{}, false
	}
	p := TimePeriod{Start: v[0]*60 + v[1], End: v[2]*60 + v[3]}
	if !p.Valid() {
		return TimePeriod{}, false
	}
	return p, true
}
