package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

//go:embed migrations_sqlite.sql migrations_postgres.sql
var migrationsFS embed.FS

type sqlStore struct {
	sqlCatalog
	db  *sqlx.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return openSQL(db, "migrations_sqlite.sql", log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return openSQL(db, "migrations_postgres.sql", log)
}

func openSQL(db *sqlx.DB, migrations string, log logx.Logger) (Store, error) {
	st := newSQLStore(db, log)
	if err := st.migrate(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func newSQLStore(db *sqlx.DB, log logx.Logger) *sqlStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqlStore{sqlCatalog: sqlCatalog{q: db}, db: db, log: log}
}

func (s *sqlStore) migrate(ctx context.Context, name string) error {
	b, err := migrationsFS.ReadFile(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&sqlTx{sqlCatalog: sqlCatalog{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", logx.Err(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *sqlStore) Fingerprint(ctx context.Context, key string) (string, bool, error) {
	var sum string
	err := sqlx.GetContext(ctx, s.db, &sum, s.db.Rebind(`SELECT sum FROM fingerprints WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return sum, true, nil
}

func (s *sqlStore) PutSubjectAlias(ctx context.Context, key, subject string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO subject_aliases(key, subject) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET subject = excluded.subject`),
		strings.ToLower(strings.TrimSpace(key)), subject)
	return err
}

type sessionRow struct {
	ID           int64          `db:"id"`
	Date         string         `db:"date"`
	Pair         int            `db:"pair_number"`
	GroupID      int64          `db:"group_id"`
	Subject      string         `db:"subject"`
	Subgroup     sql.NullInt64  `db:"subgroup"`
	Substitution bool           `db:"substitution"`
	Raw          sql.NullString `db:"raw"`
}

func (s *sqlStore) Sessions(ctx context.Context, date timetable.Date) ([]Session, error) {
	var rows []sessionRow
	err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(
		`SELECT id, date, pair_number, group_id, subject, subgroup, substitution, raw FROM sessions WHERE date = ? ORDER BY pair_number, group_id`),
		dateKey(date))
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		sess := Session{
			ID:           r.ID,
			Date:         date,
			Pair:         r.Pair,
			GroupID:      r.GroupID,
			Subject:      r.Subject,
			Substitution: r.Substitution,
			Raw:          r.Raw.String,
		}
		if r.Subgroup.Valid {
			v := int(r.Subgroup.Int64)
			sess.Subgroup = &v
		}
		if err := sqlx.SelectContext(ctx, s.db, &sess.TeacherIDs, s.db.Rebind(
			`SELECT teacher_id FROM session_teachers WHERE session_id = ? ORDER BY teacher_id`), r.ID); err != nil {
			return nil, err
		}
		if err := sqlx.SelectContext(ctx, s.db, &sess.CabinetIDs, s.db.Rebind(
			`SELECT cabinet_id FROM session_cabinets WHERE session_id = ? ORDER BY cabinet_id`), r.ID); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *sqlStore) CallSchedule(ctx context.Context) ([]timetable.CallEntry, error) {
	var rows []struct {
		Pair  int `db:"pair_number"`
		Start int `db:"start_min"`
		End   int `db:"end_min"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT pair_number, start_min, end_min FROM call_schedule ORDER BY pair_number`); err != nil {
		return nil, err
	}
	out := make([]timetable.CallEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, timetable.CallEntry{Pair: r.Pair, Period: timetable.TimePeriod{Start: r.Start, End: r.End}})
	}
	return out, nil
}

func (s *sqlStore) CafeteriaSlots(ctx context.Context, date timetable.Date) ([]CafeteriaSlot, error) {
	var rows []struct {
		GroupID int64 `db:"group_id"`
		Start   int   `db:"start_min"`
		End     int   `db:"end_min"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(
		`SELECT group_id, start_min, end_min FROM cafeteria_slots WHERE date = ? ORDER BY start_min, group_id`),
		dateKey(date)); err != nil {
		return nil, err
	}
	out := make([]CafeteriaSlot, 0, len(rows))
	for _, r := range rows {
		out = append(out, CafeteriaSlot{Date: date, GroupID: r.GroupID, Period: timetable.TimePeriod{Start: r.Start, End: r.End}})
	}
	return out, nil
}

// sqlCatalog runs catalog queries against either the pool or an open tx.
type sqlCatalog struct {
	q sqlx.ExtContext
}

func (c sqlCatalog) FindGroup(ctx context.Context, name timetable.GroupName) (Group, bool, error) {
	var g Group
	err := sqlx.GetContext(ctx, c.q, &g, c.q.Rebind(
		`SELECT id, course, code, subgroup FROM student_groups WHERE course = ? AND code = ? AND subgroup = ?`),
		name.Course, name.Code, name.Subgroup)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, false, nil
	}
	if err != nil {
		return Group{}, false, fmt.Errorf("find group %s: %w", name, err)
	}
	return g, true, nil
}

func (c sqlCatalog) CreateGroup(ctx context.Context, name timetable.GroupName) (Group, error) {
	g := Group{Course: name.Course, Code: name.Code, Subgroup: name.Subgroup}
	err := sqlx.GetContext(ctx, c.q, &g.ID, c.q.Rebind(
		`INSERT INTO student_groups(course, code, subgroup) VALUES(?, ?, ?) RETURNING id`),
		g.Course, g.Code, g.Subgroup)
	if err != nil {
		return Group{}, fmt.Errorf("create group %s: %w", name, err)
	}
	return g, nil
}

func (c sqlCatalog) FindTeachers(ctx context.Context, surname string) ([]Teacher, error) {
	var out []Teacher
	err := sqlx.SelectContext(ctx, c.q, &out, c.q.Rebind(
		`SELECT id, surname, name, patronymic FROM teachers WHERE surname_key = ? ORDER BY id`),
		SurnameKey(surname))
	if err != nil {
		return nil, fmt.Errorf("find teachers %q: %w", surname, err)
	}
	return out, nil
}

func (c sqlCatalog) CreateTeacher(ctx context.Context, name timetable.TeacherName) (Teacher, error) {
	t := Teacher{Surname: name.Surname, Name: name.Name, Patronymic: name.Patronymic}
	err := sqlx.GetContext(ctx, c.q, &t.ID, c.q.Rebind(
		`INSERT INTO teachers(surname, surname_key, name, patronymic) VALUES(?, ?, ?, ?) RETURNING id`),
		t.Surname, SurnameKey(t.Surname), t.Name, t.Patronymic)
	if err != nil {
		return Teacher{}, fmt.Errorf("create teacher %s: %w", name, err)
	}
	return t, nil
}

func (c sqlCatalog) FindCabinet(ctx context.Context, number int) (Cabinet, bool, error) {
	var cab Cabinet
	err := sqlx.GetContext(ctx, c.q, &cab, c.q.Rebind(`SELECT id, number, floor FROM cabinets WHERE number = ?`), number)
	if errors.Is(err, sql.ErrNoRows) {
		return Cabinet{}, false, nil
	}
	if err != nil {
		return Cabinet{}, false, fmt.Errorf("find cabinet %d: %w", number, err)
	}
	return cab, true, nil
}

func (c sqlCatalog) CreateCabinet(ctx context.Context, number, floor int) (Cabinet, error) {
	cab := Cabinet{Number: number, Floor: floor}
	err := sqlx.GetContext(ctx, c.q, &cab.ID, c.q.Rebind(
		`INSERT INTO cabinets(number, floor) VALUES(?, ?) RETURNING id`), number, floor)
	if err != nil {
		return Cabinet{}, fmt.Errorf("create cabinet %d: %w", number, err)
	}
	return cab, nil
}

func (c sqlCatalog) SubjectAlias(ctx context.Context, key string) (string, bool, error) {
	var subject string
	err := sqlx.GetContext(ctx, c.q, &subject, c.q.Rebind(`SELECT subject FROM subject_aliases WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return subject, true, nil
}

type sqlTx struct {
	sqlCatalog
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.q.ExecContext(ctx, t.q.Rebind(query), args...)
}

func (t *sqlTx) DeleteSessionsForDate(ctx context.Context, date timetable.Date) (int64, error) {
	key := dateKey(date)
	if _, err := t.exec(ctx, `DELETE FROM session_teachers WHERE session_id IN (SELECT id FROM sessions WHERE date = ?)`, key); err != nil {
		return 0, fmt.Errorf("delete session teachers %s: %w", key, err)
	}
	if _, err := t.exec(ctx, `DELETE FROM session_cabinets WHERE session_id IN (SELECT id FROM sessions WHERE date = ?)`, key); err != nil {
		return 0, fmt.Errorf("delete session cabinets %s: %w", key, err)
	}
	res, err := t.exec(ctx, `DELETE FROM sessions WHERE date = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("delete sessions %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (t *sqlTx) UpsertSession(ctx context.Context, s Session) (int64, error) {
	var sub any
	if s.Subgroup != nil {
		sub = int64(*s.Subgroup)
	}
	var id int64
	err := sqlx.GetContext(ctx, t.q, &id, t.q.Rebind(
		`INSERT INTO sessions(date, pair_number, group_id, subject, subgroup, substitution, raw) VALUES(?, ?, ?, ?, ?, ?, ?) `+
			`ON CONFLICT(date, pair_number, group_id) DO UPDATE SET subject = excluded.subject, subgroup = excluded.subgroup, `+
			`substitution = excluded.substitution, raw = excluded.raw RETURNING id`),
		dateKey(s.Date), s.Pair, s.GroupID, s.Subject, sub, s.Substitution, s.Raw)
	if err != nil {
		return 0, fmt.Errorf("upsert session %s/%d/%d: %w", s.Date, s.Pair, s.GroupID, err)
	}
	if _, err := t.exec(ctx, `DELETE FROM session_teachers WHERE session_id = ?`, id); err != nil {
		return 0, err
	}
	if _, err := t.exec(ctx, `DELETE FROM session_cabinets WHERE session_id = ?`, id); err != nil {
		return 0, err
	}
	for _, tid := range dedupIDs(s.TeacherIDs) {
		if _, err := t.exec(ctx, `INSERT INTO session_teachers(session_id, teacher_id) VALUES(?, ?)`, id, tid); err != nil {
			return 0, fmt.Errorf("link teacher %d: %w", tid, err)
		}
	}
	for _, cid := range dedupIDs(s.CabinetIDs) {
		if _, err := t.exec(ctx, `INSERT INTO session_cabinets(session_id, cabinet_id) VALUES(?, ?)`, id, cid); err != nil {
			return 0, fmt.Errorf("link cabinet %d: %w", cid, err)
		}
	}
	return id, nil
}

func (t *sqlTx) DeleteCallSchedule(ctx context.Context) error {
	_, err := t.exec(ctx, `DELETE FROM call_schedule`)
	return err
}

func (t *sqlTx) UpsertCallEntry(ctx context.Context, e timetable.CallEntry) error {
	_, err := t.exec(ctx,
		`INSERT INTO call_schedule(pair_number, start_min, end_min) VALUES(?, ?, ?) `+
			`ON CONFLICT(pair_number) DO UPDATE SET start_min = excluded.start_min, end_min = excluded.end_min`,
		e.Pair, e.Period.Start, e.Period.End)
	return err
}

func (t *sqlTx) DeleteCafeteriaForDate(ctx context.Context, date timetable.Date) error {
	_, err := t.exec(ctx, `DELETE FROM cafeteria_slots WHERE date = ?`, dateKey(date))
	return err
}

func (t *sqlTx) UpsertCafeteriaSlot(ctx context.Context, slot CafeteriaSlot) error {
	_, err := t.exec(ctx,
		`INSERT INTO cafeteria_slots(date, group_id, start_min, end_min) VALUES(?, ?, ?, ?) `+
			`ON CONFLICT(date, group_id, start_min) DO UPDATE SET end_min = excluded.end_min`,
		dateKey(slot.Date), slot.GroupID, slot.Period.Start, slot.Period.End)
	return err
}

func (t *sqlTx) PutFingerprint(ctx context.Context, key, sum string) error {
	_, err := t.exec(ctx,
		`INSERT INTO fingerprints(key, sum, updated_at) VALUES(?, ?, ?) `+
			`ON CONFLICT(key) DO UPDATE SET sum = excluded.sum, updated_at = excluded.updated_at`,
		key, sum, time.Now().UTC().Format(time.RFC3339))
	return err
}

func dedupIDs(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
