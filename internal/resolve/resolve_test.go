package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspisanie/internal/storage"
	"raspisanie/internal/timetable"
)

func TestNormalizeSubject(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"МДК 01 02 Разработка приложений", "МДК.01.02 Разработка приложений"},
		{"мидк 3 1", "МИДК.3.1"},
		{"МДК.01.02 Разработка", "МДК.01.02 Разработка"},
		{"МДК Разработка", "МДК Разработка"},
		{"  Физика  ", "Физика"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSubject(tt.in); got != tt.want {
			t.Fatalf("NormalizeSubject(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := NormalizeSubject(tt.want); again != tt.want {
			t.Fatalf("NormalizeSubject not idempotent on %q: %q", tt.want, again)
		}
	}
}

func TestStrictNeverCreates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	r := New(Options{})

	_, ok, err := r.ResolveGroup(ctx, st, timetable.GroupName{Course: 1, Code: "ИС", Subgroup: 1})
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = r.ResolveTeacher(ctx, st, timetable.TeacherName{Surname: "Иванов", Name: "А", Patronymic: "Б"})
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = r.ResolveCabinet(ctx, st, timetable.CabinetRef{Number: 305})
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, _ := st.FindGroup(ctx, timetable.GroupName{Course: 1, Code: "ИС", Subgroup: 1})
	assert.False(t, found)
	teachers, _ := st.FindTeachers(ctx, "Иванов")
	assert.Empty(t, teachers)
	_, found, _ = st.FindCabinet(ctx, 305)
	assert.False(t, found)
}

func TestPermissiveIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	r := New(Options{Permissive: true})
	g := timetable.GroupName{Course: 2, Code: "ПК", Subgroup: 1}
	tn := timetable.TeacherName{Surname: "ИВАНОВ", Name: "а", Patronymic: "б"}

	g1, ok, err := r.ResolveGroup(ctx, st, g)
	require.NoError(t, err)
	require.True(t, ok)
	g2, _, err := r.ResolveGroup(ctx, st, g)
	require.NoError(t, err)
	assert.Equal(t, g1, g2)

	t1, ok, err := r.ResolveTeacher(ctx, st, tn)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Иванов", t1.Surname)
	assert.Equal(t, "А", t1.Name)
	t2, _, err := r.ResolveTeacher(ctx, st, tn)
	require.NoError(t, err)
	assert.Equal(t, t1, t2)
	all, _ := st.FindTeachers(ctx, "иванов")
	assert.Len(t, all, 1)

	c1, ok, err := r.ResolveCabinet(ctx, st, timetable.CabinetRef{Number: 305})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, c1.Floor)
	c2, _, err := r.ResolveCabinet(ctx, st, timetable.CabinetRef{Number: 305})
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
}

func TestTeacherPrefixMatchAndAmbiguity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	first, err := st.CreateTeacher(ctx, timetable.TeacherName{Surname: "Петрова", Name: "Анна", Patronymic: "Борисовна"})
	require.NoError(t, err)
	_, err = st.CreateTeacher(ctx, timetable.TeacherName{Surname: "Петрова", Name: "Алла", Patronymic: "Богдановна"})
	require.NoError(t, err)
	other, err := st.CreateTeacher(ctx, timetable.TeacherName{Surname: "Петрова", Name: "Вера", Patronymic: "Ивановна"})
	require.NoError(t, err)

	var ambiguous int
	r := New(Options{OnAmbiguous: func(timetable.TeacherName, int) { ambiguous++ }})

	got, ok, err := r.ResolveTeacher(ctx, st, timetable.TeacherName{Surname: "петрова", Name: "А", Patronymic: "Б"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, got.ID, "first match wins")
	assert.Equal(t, 1, ambiguous)

	got, ok, err = r.ResolveTeacher(ctx, st, timetable.TeacherName{Surname: "ПЕТРОВА", Name: "в", Patronymic: "и"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, other.ID, got.ID)
	assert.Equal(t, 1, ambiguous)

	_, ok, err = r.ResolveTeacher(ctx, st, timetable.TeacherName{Surname: "Петрова", Name: "Г", Patronymic: "Д"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveSubjectAlias(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	require.NoError(t, st.PutSubjectAlias(ctx, "Физ-ра", "Физическая культура"))
	require.NoError(t, st.PutSubjectAlias(ctx, "МДК.01.02 Разработка", "МДК.01.02 Разработка программных модулей"))
	r := New(Options{})

	tests := map[string]string{
		"ФИЗ-РА":               "Физическая культура",
		"МДК 01 02 Разработка": "МДК.01.02 Разработка программных модулей",
		"Химия":                "Химия",
	}
	for in, want := range tests {
		got, err := r.ResolveSubject(ctx, st, in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
