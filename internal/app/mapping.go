package app

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"raspisanie/internal/config"
	"raspisanie/internal/fetch"
	"raspisanie/internal/ingest"
	"raspisanie/internal/metrics"
	"raspisanie/internal/observability"
	"raspisanie/internal/operator"
	"raspisanie/internal/parsing"
	"raspisanie/internal/resolve"
	"raspisanie/internal/storage"
	"raspisanie/internal/transport"
	"raspisanie/internal/update"
	"raspisanie/pkg/logx"
)

const defaultDBPath = "./data/raspisanie.db"

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    cfg.Telegram.Enabled && cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" && (driver == "sqlite" || driver == "sqlite3") {
		path = defaultDBPath
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, DSN: sc.DSN, BusyTimeout: busy}, nil
}

func mapUpdateConfig(cfg *config.Config) (update.Config, error) {
	retry, err := config.ParseDurationField("update.retry_delay", cfg.Update.RetryDelay)
	if err != nil {
		return update.Config{}, err
	}
	timeout, err := config.ParseDurationField("update.fetch_timeout", cfg.Update.FetchTimeout)
	if err != nil {
		return update.Config{}, err
	}
	uc := update.Config{
		TimetableURL:   strings.TrimSpace(cfg.Update.URL),
		Schedule:       cfg.Update.Schedule,
		RetryDelay:     retry,
		FetchTimeout:   timeout,
		ForceOnStart:   cfg.Update.ForceOnStart,
		Cafeteria:      cfg.Features.Cafeteria,
		CallsLabel:     cfg.Parsing.Labels.CallSchedule,
		CafeteriaLabel: cfg.Parsing.Labels.Cafeteria,
	}
	if _, err := update.ParseSchedule(orDefault(uc.Schedule, update.DefaultSchedule)); err != nil {
		return update.Config{}, fmt.Errorf("update.schedule: %w", err)
	}
	return uc, nil
}

func mapFetchOptions(cfg *config.Config, log logx.Logger) (fetch.Options, error) {
	timeout, err := config.ParseDurationField("update.fetch_timeout", cfg.Update.FetchTimeout)
	if err != nil {
		return fetch.Options{}, err
	}
	return fetch.Options{
		Timeout:    timeout,
		UserAgent:  cfg.Update.UserAgent,
		RatePerSec: cfg.Update.RatePerSec,
		Log:        log,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (observability.Config, error) {
	m := cfg.Metrics
	rt, err := config.ParseDurationOrDefault("metrics.read_timeout", m.ReadTimeout, 10*time.Second)
	if err != nil {
		return observability.Config{}, err
	}
	// pprof profile endpoints stream for 30s and longer; no write timeout by default.
	wt, err := config.ParseDurationField("metrics.write_timeout", m.WriteTimeout)
	if err != nil {
		return observability.Config{}, err
	}
	return observability.Config{
		Enabled:       m.Enabled,
		Addr:          m.Addr,
		Token:         m.Token,
		AllowInsecure: m.AllowInsecure,
		Pprof:         m.Pprof,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}, nil
}

func mapOperatorConfig(cfg *config.Config) (operator.Config, error) {
	target, err := transport.ParseChatTarget(cfg.Telegram.GroupLog)
	if err != nil {
		return operator.Config{}, fmt.Errorf("telegram.group_log: %w", err)
	}
	return operator.Config{Owners: cfg.Telegram.OwnerUserIDs, GroupLog: target}, nil
}

// cabinetAliases overlays configured aliases on the built-in ones.
func cabinetAliases(cfg *config.Config) map[string]int {
	out := maps.Clone(parsing.DefaultCabinetAliases)
	maps.Copy(out, cfg.Parsing.CabinetAliases)
	return out
}

// abbreviations adds configured words to the built-in keep-list.
func abbreviations(cfg *config.Config) []string {
	return append(slices.Clone(parsing.DefaultAbbreviations), cfg.Parsing.Abbreviations...)
}

// buildPipeline wires the parser and the store-backed sink for cfg. m may be nil.
func buildPipeline(cfg *config.Config, st storage.Store, m *metrics.Collectors, log logx.Logger) (*parsing.Parser, ingest.Sink) {
	parser := parsing.New(parsing.Options{
		Log:            log.With(logx.String("comp", "parsing")),
		CabinetAliases: cabinetAliases(cfg),
		Abbreviations:  abbreviations(cfg),
	})
	ro := resolve.Options{Permissive: !cfg.Parsing.StrictResolution, Log: log}
	so := ingest.StoreOptions{Log: log.With(logx.String("comp", "ingest"))}
	if m != nil {
		ro.OnAmbiguous = m.TeacherAmbiguous
		so.OnMiss = m.ResolveMiss
	}
	return parser, ingest.NewStoreSink(st, resolve.New(ro), so)
}

// seedSubjectAliases writes the configured rename table into the store.
func seedSubjectAliases(ctx context.Context, st storage.Store, aliases map[string]string) error {
	for from, to := range aliases {
		key := resolve.SubjectKey(from)
		if key == "" || strings.TrimSpace(to) == "" {
			continue
		}
		if err := st.PutSubjectAlias(ctx, key, strings.TrimSpace(to)); err != nil {
			return fmt.Errorf("subject alias %q: %w", from, err)
		}
	}
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
