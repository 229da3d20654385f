package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "RASPISANIE_"

// LoadEnv reads .env files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// applyEnv overrides secrets and deployment specific values from the
// environment so they can stay out of the config file.
func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("TELEGRAM_TOKEN", &cfg.Telegram.Token)
	str("TELEGRAM_GROUP_LOG", &cfg.Telegram.GroupLog)
	str("STORAGE_DRIVER", &cfg.Storage.Driver)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("STORAGE_DSN", &cfg.Storage.DSN)
	str("UPDATE_URL", &cfg.Update.URL)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("METRICS_TOKEN", &cfg.Metrics.Token)
	str("LOG_LEVEL", &cfg.Logging.Level)
}
