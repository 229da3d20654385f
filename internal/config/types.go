package config

// Config is the on-disk configuration (JSON or YAML).
//
// Durations are Go duration strings ("30s", "10m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Update   UpdateConfig   `json:"update"`
	Parsing  ParsingConfig  `json:"parsing"`
	Features FeaturesConfig `json:"features"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// TelegramConfig drives the operator surface. With Enabled=false the service
// runs headless.
type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token" validate:"required_if=Enabled true"`
	OwnerUserIDs []int64 `json:"owner_user_ids" validate:"required_if=Enabled true"`
	// GroupLog is the chat id that receives failure announcements.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty" validate:"omitempty,duration"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,loglevel"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to telegram.group_log.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level" validate:"omitempty,loglevel"`
	RatePerSec int    `json:"rate_per_sec" validate:"gte=0"`
}

// StorageConfig is read once at startup; changes need a restart.
//
//	"storage": { "driver": "sqlite", "path": "./data/raspisanie.db" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite sqlite3 postgres postgresql memory"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres,required_if=Driver postgresql"`
	BusyTimeout string `json:"busy_timeout,omitempty" validate:"omitempty,duration"`
}

type UpdateConfig struct {
	URL string `json:"url" validate:"required,url"`
	// Schedule is a cron expression, "@every 10m", or a plain interval.
	Schedule     string  `json:"schedule,omitempty"`
	RetryDelay   string  `json:"retry_delay,omitempty" validate:"omitempty,duration"`
	FetchTimeout string  `json:"fetch_timeout,omitempty" validate:"omitempty,duration"`
	UserAgent    string  `json:"user_agent,omitempty"`
	RatePerSec   float64 `json:"rate_per_sec,omitempty" validate:"gte=0"`
	ForceOnStart bool    `json:"force_on_start,omitempty"`
}

type ParsingConfig struct {
	// StrictResolution drops relations to unknown groups, teachers and cabinets
	// instead of creating them.
	StrictResolution bool `json:"strict_resolution"`
	// CabinetAliases maps words like "с/з" to reserved cabinet numbers.
	CabinetAliases map[string]int `json:"cabinet_aliases,omitempty"`
	// SubjectAliases renames subjects; keys are matched case-insensitively.
	SubjectAliases map[string]string `json:"subject_aliases,omitempty"`
	// Abbreviations extend the built-in words like "РФ" that are never read
	// as glued initials.
	Abbreviations []string      `json:"abbreviations,omitempty"`
	Labels        ParsingLabels `json:"labels"`
}

// ParsingLabels are the link texts of the sub-documents on the timetable page.
type ParsingLabels struct {
	CallSchedule string `json:"call_schedule,omitempty"`
	Cafeteria    string `json:"cafeteria,omitempty"`
}

type FeaturesConfig struct {
	Cafeteria bool `json:"cafeteria"`
}

// MetricsConfig controls the HTTP listener for /metrics, /healthz and pprof.
// A non-loopback Addr needs Token or AllowInsecure.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty" validate:"omitempty,duration"`
	WriteTimeout  string `json:"write_timeout,omitempty" validate:"omitempty,duration"`
}
