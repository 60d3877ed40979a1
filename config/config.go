// Package config loads process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/overtime-engine/ot"
)

type Config struct {
	// server
	Port        int
	CORSOrigins []string

	// storage
	DBPath string

	// logger
	LogLevel string
	LogFile  string

	// submission policy seeded on first start
	CutoffWindowDays   int
	GracePeriodEnabled bool

	// notification outbox
	DispatchInterval    time.Duration
	DispatchBatchSize   int
	DispatchMaxAttempts int
}

// Load reads .env when present and then the process environment. A missing
// .env file is not an error; a malformed one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return &Config{
		Port:                getEnvInt("PORT", 8080),
		CORSOrigins:         getEnvList("CORS_ORIGINS", []string{"*"}),
		DBPath:              getEnvString("DB_PATH", "./data/overtime.db"),
		LogLevel:            getEnvString("LOG_LEVEL", "info"),
		LogFile:             getEnvString("LOG_FILE", ""),
		CutoffWindowDays:    getEnvInt("CUTOFF_WINDOW_DAYS", ot.DefaultCutoffWindowDays),
		GracePeriodEnabled:  getEnvBool("GRACE_PERIOD_ENABLED", false),
		DispatchInterval:    getEnvDuration("DISPATCH_INTERVAL", 30*time.Second),
		DispatchBatchSize:   getEnvInt("DISPATCH_BATCH_SIZE", 50),
		DispatchMaxAttempts: getEnvInt("DISPATCH_MAX_ATTEMPTS", 5),
	}, nil
}

// Policy is the submission policy described by the environment.
func (c *Config) Policy() ot.Policy {
	return ot.Policy{CutoffWindowDays: c.CutoffWindowDays, GracePeriodEnabled: c.GracePeriodEnabled}
}

func getEnvString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if i, err := strconv.Atoi(val); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
