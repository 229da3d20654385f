package timetable

import "testing"

func TestParseGroupName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want GroupName
		ok   bool
	}{
		{raw: "2-ИС-1", want: GroupName{2, "ИС", 1}, ok: true},
		{raw: " 3 пк 2 ", want: GroupName{3, "ПК", 2}, ok: true},
		{raw: "1Т1", want: GroupName{1, "Т", 1}, ok: true},
		{raw: "1-ис-2 (база 9)", want: GroupName{1, "ИС", 2}, ok: true},
		{raw: "Преподаватели", ok: false},
		{raw: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseGroupName(tt.raw)
		if ok != tt.ok {
			t.Fatalf("ParseGroupName(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("ParseGroupName(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestParseHeaderGroupStaff(t *testing.T) {
	t.Parallel()
	g, ok := ParseHeaderGroup("  Методический час ")
	if !ok {
		t.Fatal("expected a staff group")
	}
	if !g.IsStaff() || g.Code != "МЕТОДИЧЕСКИЙ ЧАС" || g.Subgroup != 1 {
		t.Fatalf("unexpected staff group: %+v", g)
	}
	for _, raw := range []string{" \t ", "—", " * "} {
		if _, ok := ParseHeaderGroup(raw); ok {
			t.Fatalf("ParseHeaderGroup(%q) must not produce a group", raw)
		}
	}
}

func TestParsePairNumber(t *testing.T) {
	t.Parallel()
	if got := ParsePairNumber("3 пара", 1); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
	if got := ParsePairNumber("—", 5); got != 5 {
		t.Fatalf("fallback: got %d, want 5", got)
	}
	if got := ParsePairNumber("99999999999999999999999", 2); got != 2 {
		t.Fatalf("overflow fallback: got %d, want 2", got)
	}
}

func TestParseTimePeriod(t *testing.T) {
	t.Parallel()
	p, rest, ok := ParseTimePeriod("с 11.40 до 12.00 2ис1, 2ис2")
	if !ok {
		t.Fatal("expected match")
	}
	if p != (TimePeriod{Start: 11*60 + 40, End: 12 * 60}) {
		t.Fatalf("period = %v", p)
	}
	if rest != "2ис1, 2ис2" {
		t.Fatalf("rest = %q", rest)
	}

	if _, _, ok := ParseTimePeriod("2ис1 2ис2"); ok {
		t.Fatal("group list is not a period")
	}
	if _, _, ok := ParseTimePeriod("12.00-11.00"); ok {
		t.Fatal("reversed period must be rejected")
	}
}

func TestParseCallTime(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"8.30-10.00",
		" 8:30 – 10,00 ",
		"8.30 - 10.00",
		"с 8.30 до 10.00",
		"8.30до10.00",
		"8.30-10.00 (перемена 10 мин)",
	} {
		p, ok := ParseCallTime(raw)
		if !ok {
			t.Fatalf("ParseCallTime(%q) failed", raw)
		}
		if p.String() != "08:30-10:00" {
			t.Fatalf("ParseCallTime(%q) = %s", raw, p)
		}
	}
	for _, raw := range []string{"обед", "до 10.00", "15.10.2024"} {
		if _, ok := ParseCallTime(raw); ok {
			t.Fatalf("ParseCallTime(%q) should fail", raw)
		}
	}
}

func TestDateString(t *testing.T) {
	t.Parallel()
	d, err := ParseISODate("2024-10-15")
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "2024-10-15" {
		t.Fatalf("String() = %s", d)
	}
	if d.AddDays(17).String() != "2024-11-01" {
		t.Fatalf("AddDays = %s", d.AddDays(17))
	}
}
