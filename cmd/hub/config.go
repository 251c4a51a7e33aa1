package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	RateEnabled bool          `yaml:"rate_enabled"`
	RateLimit   int           `yaml:"rate_limit"`
	RateWindow  time.Duration `yaml:"rate_window"`
	RateSweep   time.Duration `yaml:"rate_sweep"`
	TrustXFF    bool          `yaml:"trust_xff"`
	AddHeaders  bool          `yaml:"add_ratelimit_headers"`

	ConcurrencyMax     int           `yaml:"concurrency_max"`
	ConcurrencyTimeout time.Duration `yaml:"concurrency_timeout"`

	StoreDriver   string        `yaml:"store_driver"`
	SQLitePath    string        `yaml:"sqlite_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	DocumentTTL   time.Duration `yaml:"document_ttl"`

	StatsEnabled       bool          `yaml:"stats_enabled"`
	StatsBackend       string        `yaml:"stats_backend"`
	StatsPrefix        string        `yaml:"stats_prefix"`
	StatsTTL           time.Duration `yaml:"stats_ttl"`
	StatsBucket        string        `yaml:"stats_bucket"`
	StatsTrackSubjects bool          `yaml:"stats_track_subjects"`

	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	EvictEvery     time.Duration `yaml:"evict_every"`
	SessionBuffer  int           `yaml:"session_buffer"`
	FrameRPS       float64       `yaml:"frame_rps"`
	FrameBurst     int           `yaml:"frame_burst"`
	IdentityParam  string        `yaml:"identity_param"`
	SeedTables     []string      `yaml:"seed_tables"`
	AllowAnyOrigin bool          `yaml:"allow_any_origin"`
}

func defaultConfig() config {
	return config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		RateEnabled:    true,
		RateLimit:      100,
		RateWindow:     60 * time.Second,
		RateSweep:      2 * time.Minute,
		ConcurrencyMax: 1000,
		StoreDriver:    "memory",
		SQLitePath:     "shardhub.db",
		RedisPrefix:    "shardhub",
		StatsBackend:   "memory",
		StatsPrefix:    "shardhub:stats",
		StatsTTL:       24 * time.Hour,
		StatsBucket:    "minute",
		IdleTimeout:    5 * time.Minute,
		EvictEvery:     time.Minute,
		SessionBuffer:  32,
		FrameBurst:     10,
		IdentityParam:  "user",
		SeedTables:     []string{"todos"},
	}
}

// readConfig aplica, nesta ordem: padrões, arquivo YAML (se houver), variáveis
// de ambiente.
func readConfig(path string) (config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)

	cfg.RateEnabled = getenvBoolDefault("RATE_ENABLED", cfg.RateEnabled)
	cfg.RateLimit = getenvIntDefault("RATE_LIMIT", cfg.RateLimit)
	cfg.RateWindow = getenvDurationDefault("RATE_WINDOW", cfg.RateWindow)
	cfg.RateSweep = getenvDurationDefault("RATE_SWEEP", cfg.RateSweep)
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.TrustXFF)
	cfg.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", cfg.AddHeaders)

	cfg.ConcurrencyMax = getenvIntDefault("CONCURRENCY_MAX", cfg.ConcurrencyMax)
	cfg.ConcurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.ConcurrencyTimeout)

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", cfg.StoreDriver))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisAddr = getenvDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getenvDefault("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getenvIntDefault("REDIS_DB", cfg.RedisDB)
	cfg.RedisPrefix = getenvDefault("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.DocumentTTL = getenvDurationDefault("DOCUMENT_TTL", cfg.DocumentTTL)

	cfg.StatsEnabled = getenvBoolDefault("STATS_ENABLED", cfg.StatsEnabled)
	cfg.StatsBackend = strings.ToLower(getenvDefault("STATS_BACKEND", cfg.StatsBackend))
	cfg.StatsPrefix = getenvDefault("STATS_PREFIX", cfg.StatsPrefix)
	cfg.StatsTTL = getenvDurationDefault("STATS_TTL", cfg.StatsTTL)
	cfg.StatsBucket = strings.ToLower(getenvDefault("STATS_BUCKET", cfg.StatsBucket))
	cfg.StatsTrackSubjects = getenvBoolDefault("STATS_TRACK_SUBJECTS", cfg.StatsTrackSubjects)

	cfg.IdleTimeout = getenvDurationDefault("IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.EvictEvery = getenvDurationDefault("EVICT_EVERY", cfg.EvictEvery)
	cfg.SessionBuffer = getenvIntDefault("SESSION_BUFFER", cfg.SessionBuffer)
	cfg.FrameRPS = getenvFloatDefault("FRAME_RPS", cfg.FrameRPS)
	cfg.FrameBurst = getenvIntDefault("FRAME_BURST", cfg.FrameBurst)
	cfg.IdentityParam = getenvDefault("IDENTITY_PARAM", cfg.IdentityParam)
	cfg.AllowAnyOrigin = getenvBoolDefault("ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	// SEED_TABLES="" (definida e vazia) zera as tabelas iniciais
	if v, ok := os.LookupEnv("SEED_TABLES"); ok {
		cfg.SeedTables = splitList(v)
	}

	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch c.StoreDriver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("STORE_DRIVER must be memory, sqlite or redis, got %q", c.StoreDriver)
	}
	if c.StoreDriver == "sqlite" && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("SQLITE_PATH is required when STORE_DRIVER=sqlite")
	}
	if c.StatsEnabled {
		switch c.StatsBackend {
		case "memory", "redis":
		default:
			return fmt.Errorf("STATS_BACKEND must be memory or redis, got %q", c.StatsBackend)
		}
		switch c.StatsBucket {
		case "minute", "none":
		default:
			return fmt.Errorf("STATS_BUCKET must be minute or none, got %q", c.StatsBucket)
		}
	}
	if c.needsRedis() && strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when redis is used for the store or stats")
	}
	if c.RateLimit <= 0 {
		return errors.New("RATE_LIMIT must be > 0")
	}
	if c.RateWindow <= 0 {
		return errors.New("RATE_WINDOW must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.SessionBuffer <= 0 {
		return errors.New("SESSION_BUFFER must be > 0")
	}
	if c.FrameRPS < 0 {
		return errors.New("FRAME_RPS must be >= 0")
	}
	return nil
}

func (c config) needsRedis() bool {
	return c.StoreDriver == "redis" || (c.StatsEnabled && c.StatsBackend == "redis")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
