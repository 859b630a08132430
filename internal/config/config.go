package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	// SQLDir holds the <query>.sql templates and plotting_inputs.txt.
	SQLDir         string
	DashboardsFile string

	Driver          string
	DSN             string
	PSQLServer      string
	PSQLUser        string
	PSQLPassword    string
	SQLiteDir       string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	LogSQL          bool

	// MQTT ingest is disabled when MQTTBroker is empty.
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

// MQTTEnabled reports whether measurement ingest should be started.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	staticDir, err := absDir("STATIC_DIR", "static")
	if err != nil {
		return Config{}, err
	}
	sqlDir, err := absDir("SQL_DIR", "assets/sql_queries")
	if err != nil {
		return Config{}, err
	}

	driver := env("DB_DRIVER", "pgx")
	switch driver {
	case "pgx", "sqlite3":
	default:
		return Config{}, fmt.Errorf("invalid DB_DRIVER %q (allowed: pgx, sqlite3)", driver)
	}

	maxOpenConns, err := envInt("DB_MAX_OPEN_CONNS", 4)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := envInt("DB_MAX_IDLE_CONNS", 2)
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := envDuration("DB_CONN_MAX_LIFETIME", "0s")
	if err != nil {
		return Config{}, err
	}
	queryTimeout, err := envDuration("DB_QUERY_TIMEOUT", "30s")
	if err != nil {
		return Config{}, err
	}
	if queryTimeout <= 0 {
		return Config{}, fmt.Errorf("DB_QUERY_TIMEOUT must be positive, got %v", queryTimeout)
	}
	logSQL, err := envBool("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	mqttPort, err := envInt("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		HTTPAddr:        env("HTTP_ADDR", ":8080"),
		StaticDir:       staticDir,
		SQLDir:          sqlDir,
		DashboardsFile:  env("DASHBOARDS_FILE", "assets/dashboards.yaml"),
		Driver:          driver,
		DSN:             env("DB_DSN", ""),
		PSQLServer:      env("DATAHUB_PSQL_SERVER", ""),
		PSQLUser:        env("DATAHUB_PSQL_USER", ""),
		PSQLPassword:    os.Getenv("DATAHUB_PSQL_PASSWORD"),
		SQLiteDir:       env("SQLITE_DIR", "dev/sqlite"),
		MaxOpenConns:    maxOpenConns,
		MaxIdleConns:    maxIdleConns,
		ConnMaxLifetime: connMaxLifetime,
		QueryTimeout:    queryTimeout,
		LogSQL:          logSQL,
		MQTTBroker:      env("MQTT_BROKER", ""),
		MQTTPort:        mqttPort,
		MQTTClientID:    env("MQTT_CLIENT_ID", "swapit-dashboard"),
		MQTTTopic:       env("MQTT_TOPIC", "swapit/measurements"),
	}, nil
}

// DatabaseName returns the database name stored in the environment variable
// key (e.g. DATAHUB_BORDEN_DBNAME).
func DatabaseName(key string) (string, error) {
	name := strings.TrimSpace(os.Getenv(key))
	if name == "" {
		return "", fmt.Errorf("database name variable %s is not set", key)
	}
	return name, nil
}

// loadDotEnv reads ENV_FILE (default .env) if it exists. Variables already
// present in the process environment are not overridden.
func loadDotEnv() error {
	path := env("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func env(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func envDuration(key, def string) (time.Duration, error) {
	s := env(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func absDir(key, def string) (string, error) {
	dir := env(key, def)
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", key, dir, err)
	}
	return abs, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
