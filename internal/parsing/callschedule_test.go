package parsing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspisanie/internal/timetable"
)

const sampleCalls = `<html><body>
<div id="menu"><table><tr><td>menu</td></tr></table></div>
<div id="main"><h1>Расписание звонков</h1>
<table>
<tr><td>Пара</td><td>Время</td></tr>
<tr><td>1</td><td>8.30-10.00</td></tr>
<tr><td>2</td><td>10:10 – 11:40</td></tr>
<tr><td> </td><td>обед</td></tr>
<tr><td>3</td><td>перемена</td></tr>
<tr><td>4</td><td>13.50-15.20</td></tr>
</table></div></body></html>`

func TestParseCallSchedule(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	require.NoError(t, newTestParser().ParseCallSchedule(strings.NewReader(sampleCalls), "", rec))

	assert.Equal(t, []string{"calls"}, rec.events)
	assert.Equal(t, []timetable.CallEntry{
		{Pair: 1, Period: timetable.TimePeriod{Start: 8*60 + 30, End: 10 * 60}},
		{Pair: 2, Period: timetable.TimePeriod{Start: 10*60 + 10, End: 11*60 + 40}},
		{Pair: 4, Period: timetable.TimePeriod{Start: 13*60 + 50, End: 15*60 + 20}},
	}, rec.calls)

	// header row and "перемена" row
	require.Len(t, rec.unparsable, 2)
	for _, u := range rec.unparsable {
		assert.Equal(t, UnitTime, u.Unit)
	}
}

func TestParseCallScheduleWithoutMain(t *testing.T) {
	t.Parallel()
	err := newTestParser().ParseCallSchedule(strings.NewReader(`<html><body><table></table></body></html>`), "", newRecorder())
	assert.True(t, errors.Is(err, ErrStructure))
}
