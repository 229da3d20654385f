package config

import (
	"maps"
	"slices"
	"strings"

	"raspisanie/pkg/logx"
)

// Change summarizes a reload for logging. Fields never carry secrets.
type Change struct {
	Sections []string
	Fields   []logx.Field
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var c Change
	mark := func(section string, restart bool, fields ...logx.Field) {
		c.Sections = append(c.Sections, section)
		c.Fields = append(c.Fields, fields...)
		if restart {
			c.Restart = append(c.Restart, section)
		}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled || ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout {
		mark("telegram", true, logx.Bool("telegram.enabled", nt.Enabled))
	} else if !slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) || ot.GroupLog != nt.GroupLog {
		mark("telegram", false,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", nt.GroupLog != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if oldCfg.Update != newCfg.Update {
		mark("update", false,
			logx.String("update.schedule", newCfg.Update.Schedule),
			logx.String("update.retry_delay", newCfg.Update.RetryDelay),
			logx.Bool("update.url_changed", oldCfg.Update.URL != newCfg.Update.URL),
		)
	}

	op, np := oldCfg.Parsing, newCfg.Parsing
	if op.StrictResolution != np.StrictResolution || op.Labels != np.Labels ||
		!maps.Equal(op.CabinetAliases, np.CabinetAliases) || !maps.Equal(op.SubjectAliases, np.SubjectAliases) ||
		!slices.Equal(op.Abbreviations, np.Abbreviations) {
		mark("parsing", false,
			logx.Bool("parsing.strict_resolution", np.StrictResolution),
			logx.Int("parsing.cabinet_aliases", len(np.CabinetAliases)),
			logx.Int("parsing.subject_aliases", len(np.SubjectAliases)),
			logx.Int("parsing.abbreviations", len(np.Abbreviations)),
		)
	}

	if oldCfg.Features != newCfg.Features {
		mark("features", false, logx.Bool("features.cafeteria", newCfg.Features.Cafeteria))
	}

	om, nm := oldCfg.Metrics, newCfg.Metrics
	if om != nm {
		mark("metrics", false,
			logx.Bool("metrics.enabled", nm.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(nm.Addr)),
			logx.Bool("metrics.token_set", nm.Token != ""),
			logx.Bool("metrics.pprof", nm.Pprof),
		)
	}
	return c
}
