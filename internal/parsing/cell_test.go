package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspisanie/internal/timetable"
)

func intPtr(v int) *int { return &v }

func TestExtractFixtures(t *testing.T) {
	t.Parallel()
	ex := NewExtractor(nil, nil)

	tests := []struct {
		name string
		raw  string
		want timetable.Cell
	}{
		{
			name: "subject teacher cabinet",
			raw:  "Физика Иванов А Б ауд 305",
			want: timetable.Cell{
				Subject:  "Физика",
				Teachers: []timetable.TeacherName{{Surname: "Иванов", Name: "А", Patronymic: "Б"}},
				Cabinets: []timetable.CabinetRef{{Number: 305}},
			},
		},
		{
			name: "glued initials substitution",
			raw:  "Иванов АБ ауд 305 зам",
			want: timetable.Cell{
				Subject:      "",
				Teachers:     []timetable.TeacherName{{Surname: "Иванов", Name: "А", Patronymic: "Б"}},
				Cabinets:     []timetable.CabinetRef{{Number: 305}},
				Substitution: true,
			},
		},
		{
			name: "dotted initials and two cabinets",
			raw:  "Математика Петрова И.С. ауд. 201, 202",
			want: timetable.Cell{
				Subject:  "Математика",
				Teachers: []timetable.TeacherName{{Surname: "Петрова", Name: "И", Patronymic: "С"}},
				Cabinets: []timetable.CabinetRef{{Number: 201}, {Number: 202}},
			},
		},
		{
			name: "cabinet list stops at first non cabinet",
			raw:  "ауд 101 Химия",
			want: timetable.Cell{
				Subject:  "Химия",
				Cabinets: []timetable.CabinetRef{{Number: 101}},
			},
		},
		{
			name: "gym alias",
			raw:  "Физкультура Сидоров В В ауд спортзал",
			want: timetable.Cell{
				Subject:  "Физкультура",
				Teachers: []timetable.TeacherName{{Surname: "Сидоров", Name: "В", Patronymic: "В"}},
				Cabinets: []timetable.CabinetRef{{Number: 0}},
			},
		},
		{
			name: "subgroup spaced",
			raw:  "Информатика 1 п гр Кузнецов А А",
			want: timetable.Cell{
				Subject:  "Информатика",
				Teachers: []timetable.TeacherName{{Surname: "Кузнецов", Name: "А", Patronymic: "А"}},
				Subgroup: intPtr(1),
			},
		},
		{
			name: "subgroup glued",
			raw:  "Информатика 2п гр",
			want: timetable.Cell{
				Subject:  "Информатика",
				Subgroup: intPtr(2),
			},
		},
		{
			name: "two teachers",
			raw:  "Английский язык Смирнова Е А Орлова Т Н",
			want: timetable.Cell{
				Subject: "Английский язык",
				Teachers: []timetable.TeacherName{
					{Surname: "Смирнова", Name: "Е", Patronymic: "А"},
					{Surname: "Орлова", Name: "Т", Patronymic: "Н"},
				},
			},
		},
		{
			name: "subgroup keyword without number stays in subject",
			raw:  "Классный час гр",
			want: timetable.Cell{Subject: "Классный час гр"},
		},
		{
			name: "abbreviation after subject is not initials",
			raw:  "История РФ ауд 101",
			want: timetable.Cell{
				Subject:  "История РФ",
				Cabinets: []timetable.CabinetRef{{Number: 101}},
			},
		},
		{
			name: "abbreviation before teacher",
			raw:  "Основы ИТ Иванов А Б",
			want: timetable.Cell{
				Subject:  "Основы ИТ",
				Teachers: []timetable.TeacherName{{Surname: "Иванов", Name: "А", Patronymic: "Б"}},
			},
		},
		{
			name: "digits are not initials",
			raw:  "Физика 1 2",
			want: timetable.Cell{Subject: "Физика 1 2"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Extract(tt.raw)
			require.NotNil(t, got)
			assert.Equal(t, tt.want.Subject, got.Subject)
			assert.Equal(t, tt.want.Teachers, got.Teachers)
			assert.Equal(t, tt.want.Cabinets, got.Cabinets)
			assert.Equal(t, tt.want.Subgroup, got.Subgroup)
			assert.Equal(t, tt.want.Substitution, got.Substitution)
			assert.Equal(t, timetable.NormalizeText(tt.raw), got.Raw)
		})
	}
}

func TestExtractCustomAbbreviations(t *testing.T) {
	t.Parallel()
	ex := NewExtractor(nil, []string{"сд"})

	got := ex.Extract("Технологии СД ауд 7")
	require.NotNil(t, got)
	assert.Equal(t, "Технологии СД", got.Subject)
	assert.Empty(t, got.Teachers)

	// the custom list replaces the defaults
	got = ex.Extract("Основы ИТ")
	require.NotNil(t, got)
	assert.Empty(t, got.Subject)
	assert.Equal(t, []timetable.TeacherName{{Surname: "Основы", Name: "И", Patronymic: "Т"}}, got.Teachers)
}

func TestExtractEmpty(t *testing.T) {
	t.Parallel()
	ex := NewExtractor(nil, nil)
	for _, raw := range []string{"", "   ", " \t\n", " - , . "} {
		assert.Nil(t, ex.Extract(raw), "raw=%q", raw)
	}
}

func TestExtractIdempotentOnSubject(t *testing.T) {
	t.Parallel()
	ex := NewExtractor(nil, nil)
	inputs := []string{
		"Физика Иванов А Б ауд 305",
		"МДК 01 02 Разработка приложений зам ауд 12",
		"Информатика 1 п гр",
		"Классный час гр",
		"История России Волков П П ауд 101 102 зам",
	}
	for _, raw := range inputs {
		first := ex.Extract(raw)
		require.NotNil(t, first, raw)
		if first.Subject == "" {
			continue
		}
		second := ex.Extract(first.Subject)
		require.NotNil(t, second, raw)
		assert.Equal(t, first.Subject, second.Subject, raw)
		assert.Empty(t, second.Teachers, raw)
		assert.Empty(t, second.Cabinets, raw)
		assert.Nil(t, second.Subgroup, raw)
		assert.False(t, second.Substitution, raw)
	}
}
