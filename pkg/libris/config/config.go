package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/libris/pkg/libris/internalerr"
)

// Store drivers.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverS3       = "s3"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config mirrors libris.yaml.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Tables  []TableConfig `yaml:"tables"`
	// Workers > 1 runs rule matching in parallel. Output order is unaffected.
	Workers int `yaml:"workers"`

	// dir is the directory of the loaded file; relative paths resolve against it.
	dir string
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver     string         `yaml:"driver"`
	BooksPath  string         `yaml:"books_path"`
	GroupsDir  string         `yaml:"groups_dir"`
	NoBackup   bool           `yaml:"no_backup"`
	SQLitePath string         `yaml:"sqlite_path"`
	S3         S3Config       `yaml:"s3"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	DSN    string `yaml:"dsn"` // supports ${VAR}
	Schema string `yaml:"schema"`
}

// S3Config configures the object storage backend.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"` // supports ${VAR}
	SecretKey string `yaml:"secret_key"` // supports ${VAR}
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
	BooksKey  string `yaml:"books_key"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TableConfig declares one rule table. Exactly one of Builtin, RulesFile or
// Rules provides the rules; the remaining fields override the source.
type TableConfig struct {
	Name         string     `yaml:"name"`
	Builtin      string     `yaml:"builtin"`
	RulesFile    string     `yaml:"rules_file"`
	Rules        []RuleSpec `yaml:"rules"`
	DefaultLabel string     `yaml:"default_label"`
	Description  string     `yaml:"description"`
	LabelField   string     `yaml:"label_field"`
	IDField      string     `yaml:"id_field"`
}

// Default returns the configuration used when no file is given: JSON files
// in the working directory and both builtin tables.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, applies defaults and validates the result.
// ${VAR} references in the store section are expanded from the environment;
// rule patterns are left alone since "$" is a regex anchor.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, internalerr.ErrNotFound)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) expandEnv() {
	for _, v := range []*string{
		&c.Store.BooksPath,
		&c.Store.GroupsDir,
		&c.Store.SQLitePath,
		&c.Store.S3.Endpoint,
		&c.Store.S3.Region,
		&c.Store.S3.Bucket,
		&c.Store.S3.AccessKey,
		&c.Store.S3.SecretKey,
		&c.Store.S3.Prefix,
		&c.Store.Postgres.DSN,
		&c.Store.Postgres.Schema,
	} {
		*v = os.ExpandEnv(*v)
	}
}

func (c *Config) applyDefaults() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverJSON
	}
	if c.Store.BooksPath == "" {
		c.Store.BooksPath = "books.json"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "libris.db"
	}
	if c.Store.S3.BooksKey == "" {
		c.Store.S3.BooksKey = "books.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if len(c.Tables) == 0 {
		for _, name := range BuiltinTableNames() {
			c.Tables = append(c.Tables, TableConfig{Name: name, Builtin: name})
		}
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverJSON, DriverSQLite, DriverMemory:
	case DriverS3:
		if c.Store.S3.Endpoint == "" {
			return fmt.Errorf("store.s3.endpoint is required: %w", internalerr.ErrInvalidConfig)
		}
		if c.Store.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required: %w", internalerr.ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required: %w", internalerr.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("store.driver %q: %w", c.Store.Driver, internalerr.ErrInvalidConfig)
	}

	seen := make(map[string]struct{}, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables[%d]: name is required: %w", i, internalerr.ErrInvalidConfig)
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("tables[%d]: duplicate table %q: %w", i, t.Name, internalerr.ErrInvalidConfig)
		}
		seen[t.Name] = struct{}{}

		sources := 0
		if t.Builtin != "" {
			sources++
		}
		if t.RulesFile != "" {
			sources++
		}
		if len(t.Rules) > 0 {
			sources++
		}
		if sources > 1 {
			return fmt.Errorf("table %q: builtin, rules_file and rules are exclusive: %w", t.Name, internalerr.ErrInvalidConfig)
		}
	}
	return nil
}

// Resolve makes a config-relative path absolute. Absolute paths and empty
// strings are returned unchanged.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// GroupsDir is the directory receiving one <table>.json per rule table.
// It defaults to the directory of the books file.
func (c *Config) GroupsDir() string {
	if c.Store.GroupsDir != "" {
		return c.Resolve(c.Store.GroupsDir)
	}
	return filepath.Dir(c.Resolve(c.Store.BooksPath))
}

// TableNames lists configured tables in declaration order.
func (c *Config) TableNames() []string {
	names := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		names[i] = t.Name
	}
	return names
}
