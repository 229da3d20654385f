package parsing

import (
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// walkState is the per-document context of a timetable parse.
type walkState struct {
	h      Handler
	date   timetable.Date
	tables int
	dates  int
}

// ParseTimetable reads the main timetable page. Paragraphs become link or
// date events, top-level tables become ParsedPair events, all in document order.
func (p *Parser) ParseTimetable(r io.Reader, contentType string, h Handler) error {
	doc, err := DecodeHTML(r, contentType)
	if err != nil {
		return err
	}
	return p.ParseTimetableNode(doc, h)
}

func (p *Parser) ParseTimetableNode(doc *html.Node, h Handler) error {
	body := findFirst(doc, isElement(atom.Body))
	if body == nil {
		return structuref("timetable has no <body>")
	}
	st := &walkState{h: h}
	if err := p.walk(body, st); err != nil {
		return err
	}
	if st.tables == 0 {
		return structuref("timetable has no tables")
	}
	if st.dates > 1 {
		p.log.Warn("several dates in one timetable", logx.Int("dates", st.dates))
	}
	return nil
}

func (p *Parser) walk(n *html.Node, st *walkState) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.P:
			p.paragraph(c, st)
		case atom.Table:
			if st.date.IsZero() {
				today := p.today()
				p.log.Warn("table before any date; assuming today", logx.String("date", today.String()))
				st.h.NewDate(today, timetable.Date{})
				st.date = today
				st.dates++
			}
			if err := p.parseTable(c, st.date, st.h); err != nil {
				return err
			}
			st.tables++
		case atom.Script, atom.Style:
		default:
			if err := p.walk(c, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Parser) paragraph(n *html.Node, st *walkState) {
	text := textContent(n)
	if a := findFirst(n, isElement(atom.A)); a != nil {
		href, ok := attr(a, "href")
		if ok && href != "" {
			st.h.Link(text, href)
			return
		}
	}
	if text == "" {
		return
	}
	d, ok := p.dates.Parse(text)
	if !ok {
		p.log.Debug("paragraph is not a date", logx.String("text", text))
		return
	}
	if d != st.date {
		st.h.NewDate(d, st.date)
		st.date = d
		st.dates++
	}
}

// parseTable walks one timetable grid.
//
// rowspan=M on a cell suppresses that logical column on the next M-1 rows;
// colspan=N repeats the cell text into the next N-1 logical columns of the
// same row. The physical cell for logical column gi is at gi+1 minus the
// number of suppressed or repeated columns to its left.
func (p *Parser) parseTable(t *html.Node, date timetable.Date, h Handler) error {
	rows := tableRows(t)
	if len(rows) == 0 {
		return structuref("table without rows")
	}
	header := rowCells(rows[0])
	if len(header) < 2 {
		return structuref("table header has %d cells", len(header))
	}

	groups := make([]*timetable.GroupName, len(header)-1)
	for i, c := range header[1:] {
		text := textContent(c)
		g, ok := timetable.ParseHeaderGroup(text)
		if !ok {
			if text != "" {
				p.unparsable(h, UnitGroup, text, nil)
			}
			continue
		}
		groups[i] = &g
		if g.IsStaff() {
			p.log.Debug("non-standard group column", logx.String("group", g.Code))
		}
	}

	skipped := map[int]map[int]bool{}
	lastPair := 0
	for ri, tr := range rows[1:] {
		cells := rowCells(tr)
		if len(cells) == 0 {
			continue
		}
		pair := timetable.ParsePairNumber(textContent(cells[0]), lastPair+1)
		lastPair = pair

		spans := 0
		repeat := 0
		prev := ""
		for gi := range groups {
			if skipped[ri][gi] {
				spans++
				continue
			}
			if repeat > 0 {
				repeat--
				spans++
				p.emit(h, date, groups[gi], pair, prev)
				continue
			}
			idx := gi + 1 - spans
			if idx >= len(cells) {
				break
			}
			td := cells[idx]
			rs, cs := intAttr(td, "rowspan"), intAttr(td, "colspan")
			for k := 1; k < rs; k++ {
				m := skipped[ri+k]
				if m == nil {
					m = map[int]bool{}
					skipped[ri+k] = m
				}
				for c := 0; c < cs; c++ {
					m[gi+c] = true
				}
			}
			repeat = cs - 1
			prev = textContent(td)
			p.emit(h, date, groups[gi], pair, prev)
		}
		delete(skipped, ri)
	}
	return nil
}

func (p *Parser) emit(h Handler, date timetable.Date, g *timetable.GroupName, pair int, text string) {
	if g == nil || text == "" {
		return
	}
	cell := p.cells.Extract(text)
	if cell == nil {
		return
	}
	if cell.Subject == "" && len(cell.Teachers) == 0 {
		p.unparsable(h, UnitCell, text, nil)
		return
	}
	h.ParsedPair(timetable.SessionDraft{Date: date, Pair: pair, Group: *g, Cell: *cell})
}
