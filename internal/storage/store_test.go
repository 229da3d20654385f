package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raspisanie/internal/timetable"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "raspisanie.db")}, nopLog())
	require.NoError(t, err)
	mem, err := Open(Config{Driver: "memory"}, nopLog())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlite.Close()
		_ = mem.Close()
	})
	return map[string]Store{"sqlite": sqlite, "memory": mem}
}

func TestStoreCatalog(t *testing.T) {
	t.Parallel()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := timetable.GroupName{Course: 2, Code: "ИС", Subgroup: 1}

			_, ok, err := st.FindGroup(ctx, g)
			require.NoError(t, err)
			assert.False(t, ok)

			created, err := st.CreateGroup(ctx, g)
			require.NoError(t, err)
			found, ok, err := st.FindGroup(ctx, g)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, created, found)
			assert.Equal(t, g, found.Name())

			_, err = st.CreateTeacher(ctx, timetable.TeacherName{Surname: "Иванов", Name: "А", Patronymic: "Б"})
			require.NoError(t, err)
			_, err = st.CreateTeacher(ctx, timetable.TeacherName{Surname: "Иванов", Name: "В", Patronymic: "Г"})
			require.NoError(t, err)
			teachers, err := st.FindTeachers(ctx, "иВАНОВ")
			require.NoError(t, err)
			require.Len(t, teachers, 2)
			assert.Equal(t, "А", teachers[0].Name)
			assert.Less(t, teachers[0].ID, teachers[1].ID)

			cab, err := st.CreateCabinet(ctx, 305, 3)
			require.NoError(t, err)
			got, ok, err := st.FindCabinet(ctx, 305)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, cab, got)

			require.NoError(t, st.PutSubjectAlias(ctx, " Физ-ра ", "Физическая культура"))
			alias, ok, err := st.SubjectAlias(ctx, "физ-ра")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Физическая культура", alias)
		})
	}
}

func TestStoreReplaceSessions(t *testing.T) {
	t.Parallel()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := timetable.Date{Year: 2024, Month: 10, Day: 15}
			sub := 2

			var groupID, t1, t2, cab int64
			require.NoError(t, st.InTx(ctx, func(tx Tx) error {
				g, err := tx.CreateGroup(ctx, timetable.GroupName{Course: 1, Code: "ПК", Subgroup: 1})
				require.NoError(t, err)
				a, err := tx.CreateTeacher(ctx, timetable.TeacherName{Surname: "Петров"})
				require.NoError(t, err)
				b, err := tx.CreateTeacher(ctx, timetable.TeacherName{Surname: "Сидоров"})
				require.NoError(t, err)
				c, err := tx.CreateCabinet(ctx, 12, 0)
				require.NoError(t, err)
				groupID, t1, t2, cab = g.ID, a.ID, b.ID, c.ID

				_, err = tx.UpsertSession(ctx, Session{Date: day, Pair: 1, GroupID: groupID, Subject: "Физика", TeacherIDs: []int64{t1}})
				require.NoError(t, err)
				_, err = tx.UpsertSession(ctx, Session{Date: day, Pair: 2, GroupID: groupID, Subject: "Химия", Subgroup: &sub, Substitution: true,
					TeacherIDs: []int64{t2, t1, t2}, CabinetIDs: []int64{cab}})
				return err
			}))

			sessions, err := st.Sessions(ctx, day)
			require.NoError(t, err)
			require.Len(t, sessions, 2)
			assert.Equal(t, "Физика", sessions[0].Subject)
			assert.Nil(t, sessions[0].Subgroup)
			assert.False(t, sessions[0].Substitution)
			assert.Equal(t, []int64{t1}, sessions[0].TeacherIDs)
			require.NotNil(t, sessions[1].Subgroup)
			assert.Equal(t, 2, *sessions[1].Subgroup)
			assert.True(t, sessions[1].Substitution)
			assert.ElementsMatch(t, []int64{t1, t2}, sessions[1].TeacherIDs)
			assert.Equal(t, []int64{cab}, sessions[1].CabinetIDs)

			require.NoError(t, st.InTx(ctx, func(tx Tx) error {
				n, err := tx.DeleteSessionsForDate(ctx, day)
				require.NoError(t, err)
				assert.EqualValues(t, 2, n)
				_, err = tx.UpsertSession(ctx, Session{Date: day, Pair: 3, GroupID: groupID, Subject: "История"})
				return err
			}))
			sessions, err = st.Sessions(ctx, day)
			require.NoError(t, err)
			require.Len(t, sessions, 1)
			assert.Equal(t, 3, sessions[0].Pair)
			assert.Empty(t, sessions[0].TeacherIDs)
		})
	}
}

func TestStoreRollback(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := st.InTx(ctx, func(tx Tx) error {
				require.NoError(t, tx.PutFingerprint(ctx, "timetable", "abc"))
				require.NoError(t, tx.UpsertCallEntry(ctx, timetable.CallEntry{Pair: 1, Period: timetable.TimePeriod{Start: 510, End: 600}}))
				return boom
			})
			assert.ErrorIs(t, err, boom)

			_, ok, err := st.Fingerprint(ctx, "timetable")
			require.NoError(t, err)
			assert.False(t, ok)
			calls, err := st.CallSchedule(ctx)
			require.NoError(t, err)
			assert.Empty(t, calls)
		})
	}
}

func TestStoreCallScheduleAndCafeteria(t *testing.T) {
	t.Parallel()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			day := timetable.Date{Year: 2024, Month: 10, Day: 16}
			first := timetable.CallEntry{Pair: 1, Period: timetable.TimePeriod{Start: 510, End: 600}}
			second := timetable.CallEntry{Pair: 2, Period: timetable.TimePeriod{Start: 610, End: 700}}

			var gid int64
			require.NoError(t, st.InTx(ctx, func(tx Tx) error {
				g, err := tx.CreateGroup(ctx, timetable.GroupName{Course: 3, Code: "Т", Subgroup: 1})
				require.NoError(t, err)
				gid = g.ID
				require.NoError(t, tx.UpsertCallEntry(ctx, second))
				require.NoError(t, tx.UpsertCallEntry(ctx, first))
				require.NoError(t, tx.UpsertCafeteriaSlot(ctx, CafeteriaSlot{Date: day, GroupID: gid, Period: timetable.TimePeriod{Start: 600, End: 620}}))
				return tx.PutFingerprint(ctx, "cafeteria", "sum-1")
			}))

			calls, err := st.CallSchedule(ctx)
			require.NoError(t, err)
			assert.Equal(t, []timetable.CallEntry{first, second}, calls)

			slots, err := st.CafeteriaSlots(ctx, day)
			require.NoError(t, err)
			require.Len(t, slots, 1)
			assert.Equal(t, gid, slots[0].GroupID)

			require.NoError(t, st.InTx(ctx, func(tx Tx) error {
				require.NoError(t, tx.DeleteCallSchedule(ctx))
				require.NoError(t, tx.DeleteCafeteriaForDate(ctx, day))
				return tx.PutFingerprint(ctx, "cafeteria", "sum-2")
			}))
			calls, err = st.CallSchedule(ctx)
			require.NoError(t, err)
			assert.Empty(t, calls)
			slots, err = st.CafeteriaSlots(ctx, day)
			require.NoError(t, err)
			assert.Empty(t, slots)
			sum, ok, err := st.Fingerprint(ctx, "cafeteria")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "sum-2", sum)
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "mongo"}, nopLog())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "postgres"}, nopLog())
	assert.Error(t, err, "dsn is required")
}
