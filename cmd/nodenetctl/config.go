package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joschabach/micropsi2-sub002/internal/storage"
	"github.com/joschabach/micropsi2-sub002/pkg/micropsi"
)

// Config is the optional YAML file shared by all commands. Flags given on
// the command line win over it.
type Config struct {
	Store          string `yaml:"store"`
	DBPath         string `yaml:"db_path"`
	ReportsDir     string `yaml:"reports_dir"`
	Workers        int    `yaml:"workers"`
	StepIntervalMS int    `yaml:"step_interval_ms"`
	LogLevel       string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		Store:      storage.DefaultStoreKind,
		DBPath:     "micropsi.db",
		ReportsDir: "reports",
		Workers:    1,
		LogLevel:   "warn",
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.StepIntervalMS < 0 {
		return fmt.Errorf("step_interval_ms must be >= 0, got %d", c.StepIntervalMS)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// commonFlags are registered on every command that opens the store.
type commonFlags struct {
	fs             *flag.FlagSet
	config         *string
	store          *string
	dbPath         *string
	reportsDir     *string
	workers        *int
	stepIntervalMS *int
	logLevel       *string
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	defaults := DefaultConfig()
	return &commonFlags{
		fs:             fs,
		config:         fs.String("config", "", "path to a YAML config file"),
		store:          fs.String("store", defaults.Store, "store backend: memory|sqlite"),
		dbPath:         fs.String("db-path", defaults.DBPath, "sqlite database path"),
		reportsDir:     fs.String("reports-dir", defaults.ReportsDir, "directory for run artifacts"),
		workers:        fs.Int("workers", defaults.Workers, "goroutines evaluating nodes per step"),
		stepIntervalMS: fs.Int("step-interval-ms", defaults.StepIntervalMS, "pause between steps in milliseconds"),
		logLevel:       fs.String("log-level", defaults.LogLevel, "log level: debug|info|warn|error"),
	}
}

// resolve loads the config file and applies the flags that were set
// explicitly.
func (f *commonFlags) resolve() (Config, error) {
	cfg, err := LoadConfig(*f.config)
	if err != nil {
		return Config{}, err
	}
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "store":
			cfg.Store = *f.store
		case "db-path":
			cfg.DBPath = *f.dbPath
		case "reports-dir":
			cfg.ReportsDir = *f.reportsDir
		case "workers":
			cfg.Workers = *f.workers
		case "step-interval-ms":
			cfg.StepIntervalMS = *f.stepIntervalMS
		case "log-level":
			cfg.LogLevel = *f.logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (f *commonFlags) client() (*micropsi.Client, Config, error) {
	cfg, err := f.resolve()
	if err != nil {
		return nil, Config{}, err
	}
	level, _ := parseLogLevel(cfg.LogLevel)
	client, err := micropsi.New(micropsi.Options{
		StoreKind:    cfg.Store,
		DBPath:       cfg.DBPath,
		ReportsDir:   cfg.ReportsDir,
		Workers:      cfg.Workers,
		StepInterval: time.Duration(cfg.StepIntervalMS) * time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	})
	if err != nil {
		return nil, Config{}, err
	}
	return client, cfg, nil
}

func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", name)
	}
}
