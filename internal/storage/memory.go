package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"raspisanie/internal/timetable"
)

// memoryStore keeps everything in maps. InTx works on a copy of the state
// and swaps it in on success, so a failed cycle leaves nothing behind.
type memoryStore struct {
	mu     sync.Mutex
	state  *memState
	closed bool
}

type memState struct {
	nextID int64

	groups   map[timetable.GroupName]Group
	teachers []Teacher
	cabinets map[int]Cabinet

	sessions     map[sessionKey]Session
	calls        map[int]timetable.CallEntry
	cafeteria    map[cafeteriaKey]CafeteriaSlot
	aliases      map[string]string
	fingerprints map[string]string
}

type sessionKey struct {
	date  timetable.Date
	pair  int
	group int64
}

type cafeteriaKey struct {
	date  timetable.Date
	group int64
	start int
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{state: &memState{
		groups:       map[timetable.GroupName]Group{},
		cabinets:     map[int]Cabinet{},
		sessions:     map[sessionKey]Session{},
		calls:        map[int]timetable.CallEntry{},
		cafeteria:    map[cafeteriaKey]CafeteriaSlot{},
		aliases:      map[string]string{},
		fingerprints: map[string]string{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:       s.nextID,
		groups:       make(map[timetable.GroupName]Group, len(s.groups)),
		teachers:     append([]Teacher(nil), s.teachers...),
		cabinets:     make(map[int]Cabinet, len(s.cabinets)),
		sessions:     make(map[sessionKey]Session, len(s.sessions)),
		calls:        make(map[int]timetable.CallEntry, len(s.calls)),
		cafeteria:    make(map[cafeteriaKey]CafeteriaSlot, len(s.cafeteria)),
		aliases:      make(map[string]string, len(s.aliases)),
		fingerprints: make(map[string]string, len(s.fingerprints)),
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.cabinets {
		c.cabinets[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.calls {
		c.calls[k] = v
	}
	for k, v := range s.cafeteria {
		c.cafeteria[k] = v
	}
	for k, v := range s.aliases {
		c.aliases[k] = v
	}
	for k, v := range s.fingerprints {
		c.fingerprints[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (m *memoryStore) read(fn func(st *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return fn(m.state)
}

func (m *memoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(memTx{st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Fingerprint(_ context.Context, key string) (sum string, ok bool, err error) {
	err = m.read(func(st *memState) error {
		sum, ok = st.fingerprints[key]
		return nil
	})
	return sum, ok, err
}

func (m *memoryStore) PutSubjectAlias(_ context.Context, key, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.state.aliases[strings.ToLower(strings.TrimSpace(key))] = subject
	return nil
}

func (m *memoryStore) Sessions(_ context.Context, date timetable.Date) (out []Session, err error) {
	err = m.read(func(st *memState) error {
		for k, v := range st.sessions {
			if k.date == date {
				out = append(out, v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pair != out[j].Pair {
			return out[i].Pair < out[j].Pair
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out, err
}

func (m *memoryStore) CallSchedule(_ context.Context) (out []timetable.CallEntry, err error) {
	err = m.read(func(st *memState) error {
		for _, e := range st.calls {
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out, err
}

func (m *memoryStore) CafeteriaSlots(_ context.Context, date timetable.Date) (out []CafeteriaSlot, err error) {
	err = m.read(func(st *memState) error {
		for k, v := range st.cafeteria {
			if k.date == date {
				out = append(out, v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Start != out[j].Period.Start {
			return out[i].Period.Start < out[j].Period.Start
		}
		return out[i].GroupID < out[j].GroupID
	})
	return out, err
}

func (m *memoryStore) FindGroup(ctx context.Context, name timetable.GroupName) (g Group, ok bool, err error) {
	err = m.read(func(st *memState) error {
		g, ok, err = memTx{st: st}.FindGroup(ctx, name)
		return err
	})
	return g, ok, err
}

func (m *memoryStore) CreateGroup(ctx context.Context, name timetable.GroupName) (g Group, err error) {
	err = m.read(func(st *memState) error {
		g, err = memTx{st: st}.CreateGroup(ctx, name)
		return err
	})
	return g, err
}

func (m *memoryStore) FindTeachers(ctx context.Context, surname string) (out []Teacher, err error) {
	err = m.read(func(st *memState) error {
		out, err = memTx{st: st}.FindTeachers(ctx, surname)
		return err
	})
	return out, err
}

func (m *memoryStore) CreateTeacher(ctx context.Context, name timetable.TeacherName) (t Teacher, err error) {
	err = m.read(func(st *memState) error {
		t, err = memTx{st: st}.CreateTeacher(ctx, name)
		return err
	})
	return t, err
}

func (m *memoryStore) FindCabinet(ctx context.Context, number int) (c Cabinet, ok bool, err error) {
	err = m.read(func(st *memState) error {
		c, ok, err = memTx{st: st}.FindCabinet(ctx, number)
		return err
	})
	return c, ok, err
}

func (m *memoryStore) CreateCabinet(ctx context.Context, number, floor int) (c Cabinet, err error) {
	err = m.read(func(st *memState) error {
		c, err = memTx{st: st}.CreateCabinet(ctx, number, floor)
		return err
	})
	return c, err
}

func (m *memoryStore) SubjectAlias(ctx context.Context, key string) (v string, ok bool, err error) {
	err = m.read(func(st *memState) error {
		v, ok, err = memTx{st: st}.SubjectAlias(ctx, key)
		return err
	})
	return v, ok, err
}

// memTx mutates a private copy of the state owned by InTx.
type memTx struct {
	st *memState
}

func (t memTx) FindGroup(_ context.Context, name timetable.GroupName) (Group, bool, error) {
	g, ok := t.st.groups[name]
	return g, ok, nil
}

func (t memTx) CreateGroup(_ context.Context, name timetable.GroupName) (Group, error) {
	if _, ok := t.st.groups[name]; ok {
		return Group{}, fmt.Errorf("create group %s: %w", name, ErrDuplicate)
	}
	g := Group{ID: t.st.id(), Course: name.Course, Code: name.Code, Subgroup: name.Subgroup}
	t.st.groups[name] = g
	return g, nil
}

func (t memTx) FindTeachers(_ context.Context, surname string) ([]Teacher, error) {
	key := SurnameKey(surname)
	var out []Teacher
	for _, tc := range t.st.teachers {
		if SurnameKey(tc.Surname) == key {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (t memTx) CreateTeacher(_ context.Context, name timetable.TeacherName) (Teacher, error) {
	tc := Teacher{ID: t.st.id(), Surname: name.Surname, Name: name.Name, Patronymic: name.Patronymic}
	t.st.teachers = append(t.st.teachers, tc)
	return tc, nil
}

func (t memTx) FindCabinet(_ context.Context, number int) (Cabinet, bool, error) {
	c, ok := t.st.cabinets[number]
	return c, ok, nil
}

func (t memTx) CreateCabinet(_ context.Context, number, floor int) (Cabinet, error) {
	if _, ok := t.st.cabinets[number]; ok {
		return Cabinet{}, fmt.Errorf("create cabinet %d: %w", number, ErrDuplicate)
	}
	c := Cabinet{ID: t.st.id(), Number: number, Floor: floor}
	t.st.cabinets[number] = c
	return c, nil
}

func (t memTx) SubjectAlias(_ context.Context, key string) (string, bool, error) {
	v, ok := t.st.aliases[key]
	return v, ok, nil
}

func (t memTx) DeleteSessionsForDate(_ context.Context, date timetable.Date) (int64, error) {
	var n int64
	for k := range t.st.sessions {
		if k.date == date {
			delete(t.st.sessions, k)
			n++
		}
	}
	return n, nil
}

func (t memTx) UpsertSession(_ context.Context, s Session) (int64, error) {
	k := sessionKey{date: s.Date, pair: s.Pair, group: s.GroupID}
	if prev, ok := t.st.sessions[k]; ok {
		s.ID = prev.ID
	} else {
		s.ID = t.st.id()
	}
	s.TeacherIDs = sortedIDs(s.TeacherIDs)
	s.CabinetIDs = sortedIDs(s.CabinetIDs)
	t.st.sessions[k] = s
	return s.ID, nil
}

func (t memTx) DeleteCallSchedule(context.Context) error {
	clear(t.st.calls)
	return nil
}

func (t memTx) UpsertCallEntry(_ context.Context, e timetable.CallEntry) error {
	t.st.calls[e.Pair] = e
	return nil
}

func (t memTx) DeleteCafeteriaForDate(_ context.Context, date timetable.Date) error {
	for k := range t.st.cafeteria {
		if k.date == date {
			delete(t.st.cafeteria, k)
		}
	}
	return nil
}

func (t memTx) UpsertCafeteriaSlot(_ context.Context, slot CafeteriaSlot) error {
	t.st.cafeteria[cafeteriaKey{date: slot.Date, group: slot.GroupID, start: slot.Period.Start}] = slot
	return nil
}

func (t memTx) PutFingerprint(_ context.Context, key, sum string) error {
	t.st.fingerprints[key] = sum
	return nil
}

func sortedIDs(ids []int64) []int64 {
	ids = dedupIDs(append([]int64(nil), ids...))
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
