package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"syllabuscal/internal/dateextract"
	appLog "syllabuscal/internal/log"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// Source kinds.
const (
	// KindPage is a plain HTML page fetched over HTTP.
	KindPage = "page"
	// KindRendered is a page that needs a headless browser to produce its text
	// (most LMS course pages).
	KindRendered = "rendered"
	// KindICS is an LMS calendar feed imported as-is.
	KindICS = "ics"
)

// SourceConfig describes a single page or feed scanned for deadlines.
type SourceConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is the page or feed endpoint.
	URL string `yaml:"url" json:"url"`
	// Kind is one of "page" (default), "rendered" or "ics".
	Kind string `yaml:"kind" json:"kind"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LogConfig controls the log level and optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// ScanConfig controls how sources are turned into text and how often.
type ScanConfig struct {
	// Refresh is a cron-style schedule string (e.g. "*/30 * * * *") for
	// re-scanning all configured sources.
	Refresh string `yaml:"refresh" json:"refresh"`

	// MinTextLen / MaxTextLen bound the size of a text block considered
	// for extraction. Blocks outside the range are skipped.
	MinTextLen int `yaml:"min_text_len" json:"min_text_len"`
	MaxTextLen int `yaml:"max_text_len" json:"max_text_len"`

	// RenderTimeoutSec bounds headless-browser page captures.
	RenderTimeoutSec int `yaml:"render_timeout_sec" json:"render_timeout_sec"`

	// HorizonDays limits how far ahead recurring feed events are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// ExtractionConfig exposes the engine heuristics that are policy choices
// rather than facts.
type ExtractionConfig struct {
	// AmbiguousOrder is "smaller-first" (default), "month-first" or "day-first".
	AmbiguousOrder string `yaml:"ambiguous_order" json:"ambiguous_order"`
	// Rules overrides per-rule policies, keyed by rule name
	// (e.g. "keyword-month-date").
	Rules map[string]dateextract.Policy `yaml:"rules" json:"rules"`
}

// ExportConfig controls .ics output.
type ExportConfig struct {
	// EventMinutes is the length given to each exported event.
	EventMinutes int    `yaml:"event_minutes" json:"event_minutes"`
	ProductID    string `yaml:"product_id" json:"product_id"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone extracted wall times are read in
	// (e.g. "America/New_York"). Empty means the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DBPath is the sqlite event store.
	DBPath string `yaml:"db_path" json:"db_path"`

	// CacheDir holds per-URL HTTP caches.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// WatchDir, when set, is watched for dropped .txt/.html files.
	WatchDir string `yaml:"watch_dir" json:"watch_dir"`

	Log        LogConfig        `yaml:"log" json:"log"`
	Scan       ScanConfig       `yaml:"scan" json:"scan"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Export     ExportConfig     `yaml:"export" json:"export"`

	// Sources is the list of pages and feeds scanned on refresh.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultRefresh     = "*/30 * * * *"
	defaultMinTextLen  = 20
	defaultMaxTextLen  = 2000
	defaultRenderSec   = 30
	defaultHorizonDays = 120
	defaultEventMin    = 60
	defaultProductID   = "-//Syllabus Date Extractor//EN"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		DBPath:   "./var/syllabuscal.db",
		CacheDir: "./var/cache",
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DBPath == "" {
		c.DBPath = "./var/syllabuscal.db"
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(filepath.Dir(c.DBPath), "cache")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}

	if c.Scan.Refresh == "" {
		c.Scan.Refresh = defaultRefresh
	}
	if c.Scan.MinTextLen <= 0 {
		c.Scan.MinTextLen = defaultMinTextLen
	}
	if c.Scan.MaxTextLen <= 0 || c.Scan.MaxTextLen < c.Scan.MinTextLen {
		c.Scan.MaxTextLen = defaultMaxTextLen
	}
	if c.Scan.RenderTimeoutSec <= 0 {
		c.Scan.RenderTimeoutSec = defaultRenderSec
	}
	if c.Scan.HorizonDays <= 0 {
		c.Scan.HorizonDays = defaultHorizonDays
	}

	// Unknown order; fall back to the default rather than refusing to start.
	if _, err := dateextract.ParseAmbiguousOrder(c.Extraction.AmbiguousOrder); err != nil {
		appLog.Error("config: unknown ambiguous_order; using default", err)
		c.Extraction.AmbiguousOrder = ""
	}
	if c.Extraction.AmbiguousOrder == "" {
		c.Extraction.AmbiguousOrder = dateextract.SmallerFirst.String()
	}
	if c.Extraction.Rules == nil {
		c.Extraction.Rules = map[string]dateextract.Policy{}
	}

	if c.Export.EventMinutes <= 0 {
		c.Export.EventMinutes = defaultEventMin
	}
	if c.Export.ProductID == "" {
		c.Export.ProductID = defaultProductID
	}

	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		switch s.Kind {
		case KindPage, KindRendered, KindICS:
		default:
			s.Kind = KindPage
		}
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = s.URL
			}
		}
	}
}

// Location resolves Timezone, falling back to the host zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// EngineOptions turns the extraction block into engine options. Rule names
// that do not exist are reported as an error.
func (c *Config) EngineOptions() ([]dateextract.Option, error) {
	order, err := dateextract.ParseAmbiguousOrder(c.Extraction.AmbiguousOrder)
	if err != nil {
		return nil, err
	}
	opts := []dateextract.Option{
		dateextract.WithLocation(c.Location()),
		dateextract.WithAmbiguousOrder(order),
	}
	for name, p := range c.Extraction.Rules {
		kind, ok := dateextract.ParseRuleKind(name)
		if !ok {
			return nil, fmt.Errorf("config: unknown extraction rule %q", name)
		}
		opts = append(opts, dateextract.WithPolicy(kind, p))
	}
	return opts, nil
}

// LogOptions converts the log block for log.Configure.
func (c *Config) LogOptions() appLog.Options {
	return appLog.Options{
		Level:      appLog.ParseLevel(c.Log.Level),
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".syllabuscal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
