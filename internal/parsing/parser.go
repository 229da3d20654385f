package parsing

import (
	"time"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// Options configures a Parser. Zero values are usable.
type Options struct {
	Log            logx.Logger
	CabinetAliases map[string]int
	// Abbreviations are never split into initials. nil selects DefaultAbbreviations.
	Abbreviations []string
	// Now is the local clock used for "today" fallbacks and year inference.
	Now func() time.Time
}

// Parser holds the timetable, bell schedule and cafeteria parsers.
// A Parser is safe for concurrent use; all per-document state lives on the stack.
type Parser struct {
	log   logx.Logger
	cells *Extractor
	dates DateParser
	now   func() time.Time
}

func New(opts Options) *Parser {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Parser{
		log:   log,
		cells: NewExtractor(opts.CabinetAliases, opts.Abbreviations),
		dates: DateParser{Now: now},
		now:   now,
	}
}

func (p *Parser) Extractor() *Extractor { return p.cells }

func (p *Parser) ParseDate(text string) (timetable.Date, bool) { return p.dates.Parse(text) }

func (p *Parser) today() timetable.Date { return timetable.DateOf(p.now()) }

func (p *Parser) unparsable(h Handler, unit, value string, err error) {
	e := &UnparsableError{Unit: unit, Value: value, Err: err}
	p.log.Warn("unparsable field skipped", logx.String("unit", unit), logx.String("value", value), logx.Err(err))
	h.Unparsable(e)
}
