package storage

import (
	"context"
	"errors"
	"time"

	"raspisanie/internal/timetable"
)

var (
	ErrClosed = errors.New("storage closed")
	// ErrDuplicate is returned by Create* when the natural key already exists.
	ErrDuplicate = errors.New("storage: duplicate key")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path (default)
//   - "postgres": PostgreSQL reachable through DSN
//   - "memory": nothing persisted
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type Group struct {
	ID       int64  `db:"id"`
	Course   int    `db:"course"`
	Code     string `db:"code"`
	Subgroup int    `db:"subgroup"`
}

func (g Group) Name() timetable.GroupName {
	return timetable.GroupName{Course: g.Course, Code: g.Code, Subgroup: g.Subgroup}
}

type Teacher struct {
	ID         int64  `db:"id"`
	Surname    string `db:"surname"`
	Name       string `db:"name"`
	Patronymic string `db:"patronymic"`
}

type Cabinet struct {
	ID     int64 `db:"id"`
	Number int   `db:"number"`
	Floor  int   `db:"floor"`
}

// Session is one scheduled class, unique by (Date, Pair, GroupID).
type Session struct {
	ID           int64
	Date         timetable.Date
	Pair         int
	GroupID      int64
	Subject      string
	Subgroup     *int
	Substitution bool
	Raw          string
	TeacherIDs   []int64
	CabinetIDs   []int64
}

type CafeteriaSlot struct {
	Date    timetable.Date
	GroupID int64
	Period  timetable.TimePeriod
}

// Catalog is the lookup/create surface used by the entity resolver.
// Find methods report absence with ok=false, never an error.
type Catalog interface {
	FindGroup(ctx context.Context, name timetable.GroupName) (Group, bool, error)
	CreateGroup(ctx context.Context, name timetable.GroupName) (Group, error)
	// FindTeachers returns every teacher whose surname equals surname
	// case-insensitively, oldest first.
	FindTeachers(ctx context.Context, surname string) ([]Teacher, error)
	CreateTeacher(ctx context.Context, name timetable.TeacherName) (Teacher, error)
	FindCabinet(ctx context.Context, number int) (Cabinet, bool, error)
	CreateCabinet(ctx context.Context, number, floor int) (Cabinet, error)
	// SubjectAlias maps a lowercase subject key to its canonical spelling.
	SubjectAlias(ctx context.Context, key string) (string, bool, error)
}

// Tx is the write surface of one update cycle.
type Tx interface {
	Catalog

	DeleteSessionsForDate(ctx context.Context, date timetable.Date) (int64, error)
	// UpsertSession stores s and replaces its teacher/cabinet links.
	UpsertSession(ctx context.Context, s Session) (int64, error)

	DeleteCallSchedule(ctx context.Context) error
	UpsertCallEntry(ctx context.Context, e timetable.CallEntry) error

	DeleteCafeteriaForDate(ctx context.Context, date timetable.Date) error
	UpsertCafeteriaSlot(ctx context.Context, slot CafeteriaSlot) error

	PutFingerprint(ctx context.Context, key, sum string) error
}

// Store is the persistence API used by the update pipeline.
type Store interface {
	Catalog

	// InTx runs fn in one transaction; a non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(Tx) error) error

	Fingerprint(ctx context.Context, key string) (sum string, ok bool, err error)
	PutSubjectAlias(ctx context.Context, key, subject string) error

	Sessions(ctx context.Context, date timetable.Date) ([]Session, error)
	CallSchedule(ctx context.Context) ([]timetable.CallEntry, error)
	CafeteriaSlots(ctx context.Context, date timetable.Date) ([]CafeteriaSlot, error)

	Close() error
}
