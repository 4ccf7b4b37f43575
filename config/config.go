package config

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds application runtime configuration.
type Config struct {
	Env         string
	HTTPPort    string
	DBDriver    string
	DBPath      string
	DatabaseURL string
	SeedFile    string
	LogLevel    slog.Level

	SchedulerInterval time.Duration
	SchedulerEnabled  bool
	// FinalizeAfter keeps an ended month open for adjustments before the
	// scheduler freezes it.
	FinalizeAfter time.Duration
	// ScanRateLimit is the number of scans per minute allowed per employee.
	ScanRateLimit int

	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads environment variables and .env (if present), then applies
// command-line overrides from args.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:            getEnv("DB_PATH", "staff.db"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SeedFile:          os.Getenv("SEED_FILE"),
		LogLevel:          getLevel("LOG_LEVEL", slog.LevelInfo),
		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", time.Hour),
		SchedulerEnabled:  getBool("SCHEDULER_ENABLED", true),
		FinalizeAfter:     getDuration("PAYROLL_FINALIZE_AFTER", 72*time.Hour),
		ScanRateLimit:     getInt("SCAN_RATE_LIMIT", 30),
		AllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
		ReadTimeout:       getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	fs := flag.NewFlagSet("staff-engine", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "Server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "Database driver (sqlite|postgres)")
	fs.StringVar(&cfg.SeedFile, "seed", cfg.SeedFile, "Tenant seed document (YAML or JSON)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be sqlite or postgres")
	}
	if cfg.ScanRateLimit <= 0 {
		return cfg, errors.New("SCAN_RATE_LIMIT must be positive")
	}
	if cfg.FinalizeAfter < 0 || cfg.FinalizeAfter >= 28*24*time.Hour {
		return cfg, errors.New("PAYROLL_FINALIZE_AFTER must be between 0 and 28 days")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		// Support seconds as integer without suffix.
		if secs, convErr := strconv.Atoi(val); convErr == nil {
			return time.Duration(secs) * time.Second
		}
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getLevel(key string, fallback slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return fallback
	}
	return lvl
}
