package parsing

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// ParseCallSchedule reads the bell schedule page: the first table inside
// div#main, two columns (pair number, time range).
func (p *Parser) ParseCallSchedule(r io.Reader, contentType string, h Handler) error {
	doc, err := DecodeHTML(r, contentType)
	if err != nil {
		return err
	}
	return p.ParseCallScheduleNode(doc, h)
}

func (p *Parser) ParseCallScheduleNode(doc *html.Node, h Handler) error {
	main := findFirst(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Div {
			return false
		}
		id, _ := attr(n, "id")
		return id == "main"
	})
	if main == nil {
		return structuref("call schedule has no div#main")
	}
	table := findFirst(main, isElement(atom.Table))
	if table == nil {
		return structuref("call schedule has no table")
	}

	h.NewCallSchedule()
	lastPair := 0
	entries := 0
	for _, tr := range tableRows(table) {
		cells := rowCells(tr)
		if len(cells) == 0 {
			continue
		}
		first := textContent(cells[0])
		if strings.TrimSpace(first) == "" {
			continue
		}
		if len(cells) < 2 {
			p.unparsable(h, UnitRow, first, nil)
			continue
		}
		pair := timetable.ParsePairNumber(first, lastPair+1)
		raw := textContent(cells[1])
		period, ok := timetable.ParseCallTime(raw)
		if !ok {
			p.unparsable(h, UnitTime, raw, nil)
			continue
		}
		lastPair = pair
		h.PairTime(timetable.CallEntry{Pair: pair, Period: period})
		entries++
	}
	p.log.Debug("call schedule parsed", logx.Int("entries", entries))
	return nil
}
