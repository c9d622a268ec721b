package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Roster sources.
const (
	RosterPostgres = "postgres"
	RosterMariaDB  = "mariadb"
	RosterFile     = "file"
	RosterMemory   = "memory"
)

type Config struct {
	Database DatabaseConfig
	Roster   RosterConfig
	Matching MatchingConfig
	Sessions SessionConfig
	Web      WebConfig
	Log      LogConfig

	// problems collects values that could not be parsed; reported by Validate.
	problems []error
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty runs on in-memory stores
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RosterConfig struct {
	Source      string // postgres, mariadb, file or memory
	File        string // YAML roster path for the file source
	DatabaseURL string // MariaDB DSN of the registration database (e.g., sis:sis@tcp(mariadb:3306)/sis)
}

type MatchingConfig struct {
	Dim        int     // raw landmark vector length (default 136)
	Components int     // coordinates per landmark (default 2)
	Threshold  float64 // minimum similarity, inclusive (default 0.2)
	Strategy   string  // exact or hnsw
	Shortlist  int     // HNSW candidates rescored exactly (default 16)
	IndexPath  string  // Path to persist the template HNSW index (optional, rebuilt on startup if empty)

	// RefreshInterval is how often serve checks the store for templates
	// written by other processes (default 30s, 0 disables)
	RefreshInterval time.Duration
}

type SessionConfig struct {
	MaxAttempts int           // optimistic update attempts (default 4)
	LockTimeout time.Duration // bounded wait for a session lock (default 2s)
}

type WebConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string // CORS origins; empty allows none
}

type LogConfig struct {
	Level  string // logrus level name (default info)
	Format string // text or json
}

func (c *Config) getenvInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	n, err := cast.ToIntE(s)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %q is not an integer", key, s))
		return defaultVal
	}
	return n
}

func (c *Config) getenvFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := cast.ToFloat64E(s)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %q is not a number", key, s))
		return defaultVal
	}
	return f
}

// getenvDuration accepts Go durations ("1500ms") and plain integers as milliseconds.
func (c *Config) getenvDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := cast.ToInt64E(s); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	d, err := cast.ToDurationE(s)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %q is not a duration", key, s))
		return defaultVal
	}
	return d
}

func getenv(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() *Config {
	c := &Config{}

	c.Database = DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: c.getenvInt("DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns: c.getenvInt("DATABASE_MAX_IDLE_CONNS", 5),
	}

	defaultRoster := RosterMemory
	switch {
	case c.Database.URL != "":
		defaultRoster = RosterPostgres
	case os.Getenv("ROSTER_FILE") != "":
		defaultRoster = RosterFile
	}
	c.Roster = RosterConfig{
		Source:      strings.ToLower(getenv("ROSTER_SOURCE", defaultRoster)),
		File:        os.Getenv("ROSTER_FILE"),
		DatabaseURL: os.Getenv("ROSTER_DATABASE_URL"),
	}

	c.Matching = MatchingConfig{
		Dim:        c.getenvInt("LANDMARK_DIM", 136),
		Components: c.getenvInt("LANDMARK_COMPONENTS", 2),
		Threshold:  c.getenvFloat("MATCH_THRESHOLD", 0.2),
		Strategy:   strings.ToLower(getenv("MATCH_STRATEGY", "exact")),
		Shortlist:  c.getenvInt("MATCH_SHORTLIST", 16),
		IndexPath:  os.Getenv("TEMPLATE_INDEX_PATH"),

		RefreshInterval: c.getenvDuration("TEMPLATE_REFRESH_INTERVAL", 30*time.Second),
	}

	c.Sessions = SessionConfig{
		MaxAttempts: c.getenvInt("SESSION_MAX_ATTEMPTS", 4),
		LockTimeout: c.getenvDuration("SESSION_LOCK_TIMEOUT", 2*time.Second),
	}

	c.Web = WebConfig{
		Port:           c.getenvInt("WEB_PORT", 8080),
		Host:           getenv("WEB_HOST", "0.0.0.0"),
		AllowedOrigins: splitList(os.Getenv("WEB_ALLOWED_ORIGINS")),
	}

	c.Log = LogConfig{
		Level:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		Format: strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	return c
}

// Validate reports every unparseable or out-of-range value.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.problems...)

	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns))
	}
	if c.Database.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_IDLE_CONNS must not be negative, got %d", c.Database.MaxIdleConns))
	}

	switch c.Roster.Source {
	case RosterPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("ROSTER_SOURCE=postgres requires DATABASE_URL"))
		}
	case RosterMariaDB:
		if c.Roster.DatabaseURL == "" {
			errs = append(errs, errors.New("ROSTER_SOURCE=mariadb requires ROSTER_DATABASE_URL"))
		}
	case RosterFile:
		if c.Roster.File == "" {
			errs = append(errs, errors.New("ROSTER_SOURCE=file requires ROSTER_FILE"))
		}
	case RosterMemory:
	default:
		errs = append(errs, fmt.Errorf("ROSTER_SOURCE %q is not one of postgres, mariadb, file, memory", c.Roster.Source))
	}

	m := c.Matching
	if m.Components <= 0 {
		errs = append(errs, fmt.Errorf("LANDMARK_COMPONENTS must be positive, got %d", m.Components))
	} else if m.Dim <= 0 || m.Dim%m.Components != 0 {
		errs = append(errs, fmt.Errorf("LANDMARK_DIM %d is not a positive multiple of %d", m.Dim, m.Components))
	}
	if math.IsNaN(m.Threshold) || m.Threshold < -1 || m.Threshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must lie in [-1, 1], got %v", m.Threshold))
	}
	if m.Strategy != "exact" && m.Strategy != "hnsw" {
		errs = append(errs, fmt.Errorf("MATCH_STRATEGY %q is not one of exact, hnsw", m.Strategy))
	}
	if m.Shortlist <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_SHORTLIST must be positive, got %d", m.Shortlist))
	}
	if m.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("TEMPLATE_REFRESH_INTERVAL must not be negative, got %s", m.RefreshInterval))
	}

	if c.Sessions.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX_ATTEMPTS must be positive, got %d", c.Sessions.MaxAttempts))
	}
	if c.Sessions.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_LOCK_TIMEOUT must be positive, got %s", c.Sessions.LockTimeout))
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("WEB_PORT %d out of range", c.Web.Port))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds a logrus logger from the log settings. Invalid settings
// fall back to info level and text output.
func (l LogConfig) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(l.Level); err == nil {
		logger.SetLevel(level)
	}
	if l.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
