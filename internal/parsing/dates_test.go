package parsing

import (
	"testing"
	"time"
)

func TestDateParser(t *testing.T) {
	t.Parallel()
	p := DateParser{Now: fixedNow}

	tests := []struct {
		in   string
		want string
	}{
		{in: "15.10.2024", want: "2024-10-15"},
		{in: "Расписание занятий на 15.10.24 (вторник)", want: "2024-10-15"},
		{in: "15 октября", want: "2024-10-15"},
		{in: "на 1 ноября 2025 г.", want: "2025-11-01"},
		{in: "ЧИСЛИТЕЛЬ 16 октября", want: "2024-10-16"},
		{in: "10 октября", want: "2024-10-10"}, // inside the grace window
		{in: "5 января", want: "2025-01-05"},
		{in: "3 мая", want: "2025-05-03"},
		{in: "3 марта", want: "2025-03-03"},
		{in: "20.10", want: "2024-10-20"},
	}
	for _, tt := range tests {
		got, ok := p.Parse(tt.in)
		if !ok {
			t.Fatalf("Parse(%q) failed", tt.in)
		}
		if got.String() != tt.want {
			t.Fatalf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDateParserRejects(t *testing.T) {
	t.Parallel()
	p := DateParser{Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local) }}
	for _, in := range []string{"", "знаменатель", "Изменения в расписании", "31.02.2024", "2 пары", "8.30"} {
		if d, ok := p.Parse(in); ok {
			t.Fatalf("Parse(%q) = %s, expected failure", in, d)
		}
	}
}
