package parsing

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"raspisanie/internal/timetable"
)

const (
	kwSubstitution = "зам"
	kwCabinet      = "ауд"
	kwSubgroup     = "гр"
	kwSubgroupMark = "п"
)

// DefaultCabinetAliases maps words used instead of a room number.
// 0 is reserved for the gym.
var DefaultCabinetAliases = map[string]int{
	"спортзал":  0,
	"сз":        0,
	"спортзале": 0,
}

// DefaultAbbreviations are two-letter capitals that stay whole in subject
// names instead of being read as glued initials.
var DefaultAbbreviations = []string{"РФ", "ИТ", "ПК", "БД", "ОС", "ПО", "ЭВМ", "ИКТ", "ОБЖ"}

// Extractor turns the free text of one timetable cell into a timetable.Cell.
// It is stateless between calls and never consults the catalog.
type Extractor struct {
	aliases map[string]int
	keep    map[string]bool
}

// NewExtractor builds an Extractor. nil aliases or abbrevs select the defaults.
func NewExtractor(aliases map[string]int, abbrevs []string) *Extractor {
	if aliases == nil {
		aliases = DefaultCabinetAliases
	}
	if abbrevs == nil {
		abbrevs = DefaultAbbreviations
	}
	m := make(map[string]int, len(aliases))
	for k, v := range aliases {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	keep := make(map[string]bool, len(abbrevs))
	for _, a := range abbrevs {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			keep[a] = true
		}
	}
	return &Extractor{aliases: m, keep: keep}
}

// tokens keeps the original words and a lowercase shadow in lockstep.
type tokens struct {
	orig  []string
	lower []string
}

func (e *Extractor) tokenize(raw string) *tokens {
	words := strings.FieldsFunc(raw, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	t := &tokens{orig: make([]string, 0, len(words)), lower: make([]string, 0, len(words))}
	for i, w := range words {
		if i > 0 && !e.keep[w] && isGluedInitials(words[i-1], w) {
			r, n := utf8.DecodeRuneInString(w)
			t.push(string(r))
			t.push(w[n:])
			continue
		}
		t.push(w)
	}
	return t
}

func (t *tokens) push(w string) {
	t.orig = append(t.orig, w)
	t.lower = append(t.lower, strings.ToLower(w))
}

func (t *tokens) len() int { return len(t.orig) }

func (t *tokens) index(word string) int {
	for i, w := range t.lower {
		if w == word {
			return i
		}
	}
	return -1
}

func (t *tokens) del(i, n int) {
	t.orig = append(t.orig[:i], t.orig[i+n:]...)
	t.lower = append(t.lower[:i], t.lower[i+n:]...)
}

// Extract returns nil only when raw holds no word characters at all.
func (e *Extractor) Extract(raw string) *timetable.Cell {
	t := e.tokenize(raw)
	if t.len() == 0 {
		return nil
	}
	cell := &timetable.Cell{Raw: timetable.NormalizeText(raw)}

	if i := t.index(kwSubstitution); i >= 0 {
		t.del(i, 1)
		cell.Substitution = true
	}

	if i := t.index(kwCabinet); i >= 0 {
		t.del(i, 1)
		for i < t.len() {
			c, ok := e.cabinet(t.lower[i])
			if !ok {
				break
			}
			cell.Cabinets = append(cell.Cabinets, c)
			t.del(i, 1)
		}
	}

	if i := t.index(kwSubgroup); i >= 0 {
		switch {
		case i > 1 && t.lower[i-1] == kwSubgroupMark:
			if n, err := strconv.Atoi(t.orig[i-2]); err == nil {
				cell.Subgroup = &n
				t.del(i-2, 3)
			}
		case i > 0 && strings.HasSuffix(t.lower[i-1], kwSubgroupMark):
			if n, err := strconv.Atoi(strings.TrimSuffix(t.lower[i-1], kwSubgroupMark)); err == nil {
				cell.Subgroup = &n
				t.del(i-1, 2)
			}
		}
	}

	// Initials are single letters and the surname carries at least one letter,
	// so "Физика 1 2" stays a subject.
	for i := 2; i < t.len(); {
		if isInitial(t.orig[i]) && isInitial(t.orig[i-1]) && hasLetter(t.orig[i-2]) {
			cell.Teachers = append(cell.Teachers, timetable.TeacherName{
				Surname:    t.orig[i-2],
				Name:       t.orig[i-1],
				Patronymic: t.orig[i],
			})
			t.del(i-2, 3)
			continue
		}
		i++
	}

	cell.Subject = strings.Join(t.orig, " ")
	return cell
}

func (e *Extractor) cabinet(word string) (timetable.CabinetRef, bool) {
	if n, ok := e.aliases[word]; ok {
		return timetable.CabinetRef{Number: n}, true
	}
	for _, r := range word {
		if r < '0' || r > '9' {
			return timetable.CabinetRef{}, false
		}
	}
	n, err := strconv.Atoi(word)
	if err != nil {
		return timetable.CabinetRef{}, false
	}
	return timetable.CabinetRef{Number: n}, true
}

func isInitial(w string) bool {
	r, n := utf8.DecodeRuneInString(w)
	return n == len(w) && unicode.IsLetter(r)
}

func hasLetter(w string) bool {
	for _, r := range w {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// isGluedInitials reports "АБ" written right after a capitalized surname.
func isGluedInitials(prev, w string) bool {
	if utf8.RuneCountInString(w) != 2 || utf8.RuneCountInString(prev) < 2 {
		return false
	}
	for _, r := range w {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	first, n := utf8.DecodeRuneInString(prev)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, r := range prev[n:] {
		if !unicode.IsLower(r) {
			return false
		}
	}
	return true
}
