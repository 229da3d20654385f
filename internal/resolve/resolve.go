// Package resolve maps parsed name fragments onto catalog rows.
//
// Two policies exist: strict resolution only looks rows up, permissive
// resolution creates whatever is missing. Both are selected by
// configuration and share the same matching rules.
package resolve

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"raspisanie/internal/storage"
	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// Resolver turns draft fragments into catalog entities. ok=false means the
// entity is unknown and the caller should omit the relation.
type Resolver interface {
	ResolveGroup(ctx context.Context, c storage.Catalog, name timetable.GroupName) (storage.Group, bool, error)
	ResolveTeacher(ctx context.Context, c storage.Catalog, name timetable.TeacherName) (storage.Teacher, bool, error)
	ResolveCabinet(ctx context.Context, c storage.Catalog, ref timetable.CabinetRef) (storage.Cabinet, bool, error)
	ResolveSubject(ctx context.Context, c storage.Catalog, raw string) (string, error)
}

type Options struct {
	// Permissive creates missing groups, teachers and cabinets.
	Permissive bool
	Log        logx.Logger
	// OnAmbiguous is called when more than one teacher matches a fragment.
	OnAmbiguous func(name timetable.TeacherName, matches int)
}

func New(opts Options) Resolver {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &catalogResolver{
		create:      opts.Permissive,
		log:         log.With(logx.String("comp", "resolve")),
		onAmbiguous: opts.OnAmbiguous,
	}
}

type catalogResolver struct {
	create      bool
	log         logx.Logger
	onAmbiguous func(timetable.TeacherName, int)
}

func (r *catalogResolver) ResolveGroup(ctx context.Context, c storage.Catalog, name timetable.GroupName) (storage.Group, bool, error) {
	g, ok, err := c.FindGroup(ctx, name)
	if err != nil || ok || !r.create {
		return g, ok, err
	}
	g, err = c.CreateGroup(ctx, name)
	if err != nil {
		return storage.Group{}, false, err
	}
	r.log.Debug("group created", logx.String("group", name.String()))
	return g, true, nil
}

func (r *catalogResolver) ResolveTeacher(ctx context.Context, c storage.Catalog, name timetable.TeacherName) (storage.Teacher, bool, error) {
	candidates, err := c.FindTeachers(ctx, name.Surname)
	if err != nil {
		return storage.Teacher{}, false, err
	}
	var (
		first   storage.Teacher
		matches int
	)
	for _, t := range candidates {
		if !hasPrefixFold(t.Name, name.Name) || !hasPrefixFold(t.Patronymic, name.Patronymic) {
			continue
		}
		if matches == 0 {
			first = t
		}
		matches++
	}
	if matches > 1 {
		r.log.Warn("ambiguous teacher", logx.String("teacher", name.String()), logx.Int("matches", matches))
		if r.onAmbiguous != nil {
			r.onAmbiguous(name, matches)
		}
	}
	if matches > 0 {
		return first, true, nil
	}
	if !r.create {
		return storage.Teacher{}, false, nil
	}
	t, err := c.CreateTeacher(ctx, timetable.TeacherName{
		Surname:    capitalize(name.Surname),
		Name:       capitalize(name.Name),
		Patronymic: capitalize(name.Patronymic),
	})
	if err != nil {
		return storage.Teacher{}, false, err
	}
	r.log.Debug("teacher created", logx.String("teacher", name.String()))
	return t, true, nil
}

func (r *catalogResolver) ResolveCabinet(ctx context.Context, c storage.Catalog, ref timetable.CabinetRef) (storage.Cabinet, bool, error) {
	cab, ok, err := c.FindCabinet(ctx, ref.Number)
	if err != nil || ok || !r.create {
		return cab, ok, err
	}
	cab, err = c.CreateCabinet(ctx, ref.Number, ref.Floor())
	if err != nil {
		return storage.Cabinet{}, false, err
	}
	return cab, true, nil
}

// ResolveSubject normalizes module codes and applies the rename table.
func (r *catalogResolver) ResolveSubject(ctx context.Context, c storage.Catalog, raw string) (string, error) {
	subject := NormalizeSubject(raw)
	alias, ok, err := c.SubjectAlias(ctx, SubjectKey(subject))
	if err != nil {
		return subject, err
	}
	if ok {
		return alias, nil
	}
	return subject, nil
}

// SubjectKey is the rename table key of a subject.
func SubjectKey(subject string) string {
	return strings.ToLower(NormalizeSubject(subject))
}

var modulePrefixes = []string{"МДК", "МИДК"}

// NormalizeSubject rewrites "МДК 01 02 Название" as "МДК.01.02 Название".
// Only the numeric tokens right after the prefix are joined.
func NormalizeSubject(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return strings.Join(fields, " ")
	}
	prefix := ""
	for _, p := range modulePrefixes {
		if strings.EqualFold(fields[0], p) {
			prefix = p
			break
		}
	}
	if prefix == "" {
		return strings.Join(fields, " ")
	}
	i := 1
	for i < len(fields) && isDigits(fields[i]) {
		i++
	}
	if i == 1 {
		return strings.Join(fields, " ")
	}
	code := prefix + "." + strings.Join(fields[1:i], ".")
	return strings.Join(append([]string{code}, fields[i:]...), " ")
}

func hasPrefixFold(s, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
