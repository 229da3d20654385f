package parsing

import (
	"errors"
	"fmt"
)

// ErrStructure means the document lacks an element every valid document has
// (the timetable table, its header row, the bell schedule table).
// It aborts the whole parse.
var ErrStructure = errors.New("unexpected document structure")

// Units reported through UnparsableError.
const (
	UnitCell  = "cell"
	UnitRow   = "row"
	UnitDate  = "date"
	UnitTime  = "time"
	UnitLink  = "link"
	UnitGroup = "group"
	UnitPage  = "page"
)

// UnparsableError describes one field that could not be read.
// It never aborts a parse: the unit is skipped and reported to the Handler.
type UnparsableError struct {
	Unit  string
	Value string
	Err   error
}

func (e *UnparsableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unparsable %s %q: %v", e.Unit, e.Value, e.Err)
	}
	return fmt.Sprintf("unparsable %s %q", e.Unit, e.Value)
}

func (e *UnparsableError) Unwrap() error { return e.Err }

func structuref(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}
