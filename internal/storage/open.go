package storage

import (
	"errors"
	"strings"

	"raspisanie/internal/timetable"
	logx "raspisanie/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// SurnameKey is the case-folded form used for teacher lookups.
func SurnameKey(surname string) string {
	return strings.ToLower(strings.TrimSpace(surname))
}

func dateKey(d timetable.Date) string { return d.String() }
