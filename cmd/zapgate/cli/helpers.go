package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/zapgate/zapgate/internal/config"
	"github.com/zapgate/zapgate/internal/store"
)

// loadConfig reads the YAML config named by --config, or zapgate.yaml in the
// working directory when present. With no file at all the defaults apply.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("zapgate.yaml"); err == nil {
			path = "zapgate.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore opens the application database described by cfg. A sqlite
// database with no DSN lands in ZAPGATE_DATA_DIR or ~/.zapgate.
func openStore(cfg *config.Config) (*store.Store, error) {
	dbCfg := cfg.Database
	if dbCfg.Driver == "" || dbCfg.Driver == "sqlite" {
		if dbCfg.DSN == "" && dbCfg.DataDir == "" {
			if envDir := os.Getenv("ZAPGATE_DATA_DIR"); envDir != "" {
				dbCfg.DataDir = envDir
			} else {
				home, _ := os.UserHomeDir()
				dbCfg.DataDir = home + "/.zapgate"
			}
		}
	}
	return store.Open(dbCfg)
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// parseDuration parses a config duration string, falling back when empty or
// malformed.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
