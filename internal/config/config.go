package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jgivc/pagesync/internal/naming"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LayoutFlat   = "flat"
	LayoutBundle = "bundle"

	EnvToken = "PAGESYNC_TOKEN"

	defaultExtension     = ".md"
	defaultIndexFileName = "index.md"
	defaultAssetDirName  = ".pagesync"
	defaultWorkers       = 4
	defaultPublishProp   = "Status"
)

// Duration parses YAML values like "30s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("cannot parse duration %q: %w", s, err)
	}

	*d = Duration(v)

	return nil
}

type SourceConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Timeout  Duration `yaml:"timeout"`
	PageSize int      `yaml:"page_size"`

	Token string `yaml:"-"` // from environment only, never from the file
}

type CollectionConfig struct {
	ID           string `yaml:"id"`
	TargetFolder string `yaml:"target_folder"`
	Layout       string `yaml:"layout"`
}

type RecordMount struct {
	ID           string `yaml:"id"`
	TargetFolder string `yaml:"target_folder"`
}

// ClassificationConfig names the property deciding "ready to publish": a
// status or select property whose value must be in PublishedValues, or a
// checkbox of the same name as a binary fallback. Records carrying none of
// these properties are included.
type ClassificationConfig struct {
	Property        string   `yaml:"property"`
	PublishedValues []string `yaml:"published_values"`
}

type NamingConfig struct {
	Extension      string            `yaml:"extension"`
	IndexFileName  string            `yaml:"index_filename"`
	DefaultLayout  string            `yaml:"default_layout"`
	TitleOverrides map[string]string `yaml:"title_overrides"`
}

type RetryConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      Duration `yaml:"initial_delay"`
	MaxDelay          Duration `yaml:"max_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	JitterRatio       float64  `yaml:"jitter_ratio"`
}

type Config struct {
	LogLevel    string               `yaml:"log_level"`
	OutputDir   string               `yaml:"output_dir"`
	Workers     int                  `yaml:"workers"`
	Source      SourceConfig         `yaml:"source"`
	Collections []CollectionConfig   `yaml:"collections"`
	Records     []RecordMount        `yaml:"records"`
	Classify    ClassificationConfig `yaml:"classification"`
	Naming      NamingConfig         `yaml:"naming"`
	Retry       RetryConfig          `yaml:"retry"`
}

// Load reads the YAML config and the API token from the environment. Any
// failure here is fatal by design: nothing has touched the network or the
// output tree yet.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}

	// .env is optional, the environment itself may already carry the token.
	_ = godotenv.Load()

	cfg.Source.Token = os.Getenv(EnvToken)
	if cfg.Source.Token == "" {
		return nil, fmt.Errorf("missing required credential: %s is not set", EnvToken)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Naming.Extension == "" {
		c.Naming.Extension = defaultExtension
	}
	if c.Naming.IndexFileName == "" {
		c.Naming.IndexFileName = defaultIndexFileName
	}
	if c.Naming.DefaultLayout == "" {
		c.Naming.DefaultLayout = LayoutFlat
	}
	if c.Classify.Property == "" {
		c.Classify.Property = defaultPublishProp
	}
	if len(c.Classify.PublishedValues) == 0 {
		c.Classify.PublishedValues = []string{"Published"}
	}
}

func (c *Config) validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must be set")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if len(c.Collections) == 0 && len(c.Records) == 0 {
		return fmt.Errorf("at least one collection or record mount must be configured")
	}

	for _, col := range c.Collections {
		if col.ID == "" || col.TargetFolder == "" {
			return fmt.Errorf("collection entries need both id and target_folder")
		}
		if col.Layout != "" && col.Layout != LayoutFlat && col.Layout != LayoutBundle {
			return fmt.Errorf("unknown layout %q for collection %s", col.Layout, col.ID)
		}
		if !underDir(c.OutputDir, col.TargetFolder) {
			return fmt.Errorf("target_folder %q of collection %s is outside output_dir %q",
				col.TargetFolder, col.ID, c.OutputDir)
		}
	}

	for _, rec := range c.Records {
		if rec.ID == "" || rec.TargetFolder == "" {
			return fmt.Errorf("record entries need both id and target_folder")
		}
		if !underDir(c.OutputDir, rec.TargetFolder) {
			return fmt.Errorf("target_folder %q of record %s is outside output_dir %q",
				rec.TargetFolder, rec.ID, c.OutputDir)
		}
	}

	return nil
}

// underDir reports whether dir is root itself or somewhere below it. Target
// folders outside the output root would be written to but never scanned
// back, so every run would recreate their files.
func underDir(root, dir string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// AssetDir is where downloaded assets and their sidecar index live.
func (c *Config) AssetDir() string {
	return filepath.Join(c.OutputDir, defaultAssetDirName)
}

// NamingResolverConfig builds the naming resolver from file-level settings.
func (c *Config) NamingResolverConfig() *naming.Config {
	nc := &naming.Config{
		Extension:         c.Naming.Extension,
		IndexFileName:     c.Naming.IndexFileName,
		DefaultLayout:     parseLayout(c.Naming.DefaultLayout),
		CollectionLayouts: make(map[string]naming.Layout, len(c.Collections)),
		TitleOverrides:    make(map[string]naming.Layout, len(c.Naming.TitleOverrides)),
	}

	for _, col := range c.Collections {
		if col.Layout != "" {
			nc.CollectionLayouts[col.ID] = parseLayout(col.Layout)
		}
	}
	for title, layout := range c.Naming.TitleOverrides {
		nc.TitleOverrides[title] = parseLayout(layout)
	}

	return nc
}

func parseLayout(s string) naming.Layout {
	if s == LayoutBundle {
		return naming.LayoutBundle
	}

	return naming.LayoutFlat
}
