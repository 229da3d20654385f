package parsing

import (
	"regexp"
	"strconv"
	"strings"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// cafeteriaDatePrefix introduces a date line: "на 15 октября".
const cafeteriaDatePrefix = "на "

var reGroupSplit = regexp.MustCompile(`[^0-9а-яА-ЯёЁ-]+`)

// Page is the text of one document page, one entry per visual line in
// reading order.
type Page struct {
	Number int
	Lines  []string
	// Err is set when the page text could not be extracted.
	Err error
}

// ParseCafeteria reads the meal schedule. The date and time window carry
// over from line to line (and across pages) until replaced.
func (p *Parser) ParseCafeteria(pages []Page, h Handler) error {
	var (
		date   timetable.Date
		window *timetable.TimePeriod
		items  int
	)
	for _, page := range pages {
		if page.Err != nil {
			p.unparsable(h, UnitPage, strconv.Itoa(page.Number), page.Err)
			continue
		}
		for _, raw := range page.Lines {
			line := strings.ToLower(timetable.NormalizeText(raw))
			if line == "" || isDigits(line) {
				continue
			}

			if strings.HasPrefix(line, cafeteriaDatePrefix) {
				rest := strings.TrimSpace(strings.TrimPrefix(line, cafeteriaDatePrefix))
				d, ok := p.dates.Parse(rest)
				if !ok {
					p.unparsable(h, UnitDate, rest, nil)
					continue
				}
				date = d
				h.NewCvpDate(d)
				continue
			}

			if period, rest, ok := timetable.ParseTimePeriod(line); ok {
				window = &period
				line = rest
			}
			if line == "" || window == nil {
				continue
			}

			for _, tok := range reGroupSplit.Split(line, -1) {
				if tok == "" {
					continue
				}
				g, ok := timetable.ParseGroupName(tok)
				if !ok {
					p.log.Debug("cafeteria token is not a group", logx.String("token", tok))
					continue
				}
				if date.IsZero() {
					date = p.today()
					p.log.Warn("cafeteria items before any date; assuming today", logx.String("date", date.String()))
					h.NewCvpDate(date)
				}
				h.CvpItem(timetable.CafeteriaSlot{Date: date, Group: g, Period: *window})
				items++
			}
		}
	}
	p.log.Debug("cafeteria parsed", logx.Int("items", items))
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
