// Package config loads and validates kbresolve configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete kbresolve configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Paths   PathsConfig   `yaml:"paths" json:"paths"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Resolve ResolveConfig `yaml:"resolve" json:"resolve"`
	Watch   WatchConfig   `yaml:"watch" json:"watch"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PathsConfig locates the mapping files and the index store.
type PathsConfig struct {
	// MappingDir is the root directory holding one subdirectory per entity
	// type, each with a mapping.json.
	MappingDir string `yaml:"mapping_dir" json:"mapping_dir"`

	// DataDir is where synonym indexes and fit locks live.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// IndexConfig tunes synonym index construction.
// Boosts are configurable via:
//  1. User config (~/.config/kbresolve/config.yaml) - personal defaults
//  2. Project config (.kbresolve.yaml) - per-project tuning
//  3. Env vars (KBRESOLVE_EXACT_BOOST, ...) - highest priority
type IndexConfig struct {
	// BatchSize is how many documents go into one indexing batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// MaxInFlight is how many batches may index concurrently per fit.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`

	// ExactBoost weighs exact normalized matches. Must stay above TextBoost
	// so a whole-string match always outranks a token match.
	ExactBoost float64 `yaml:"exact_boost" json:"exact_boost"`

	// TextBoost weighs full-text token matches. Must stay above NgramBoost.
	TextBoost float64 `yaml:"text_boost" json:"text_boost"`

	// NgramBoost weighs prefix-fragment matches.
	NgramBoost float64 `yaml:"ngram_boost" json:"ngram_boost"`
}

// ResolveConfig tunes the resolution paths.
type ResolveConfig struct {
	// TopK is how many fuzzy candidates are returned.
	TopK int `yaml:"top_k" json:"top_k"`

	// MaxGroups caps distinct candidate groups considered per query.
	MaxGroups int `yaml:"max_groups" json:"max_groups"`

	// GroupSample caps hits counted per candidate group.
	GroupSample int `yaml:"group_sample" json:"group_sample"`

	// CacheSize is the per-resolver resolution cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// WatchConfig tunes mapping-directory watching for `kbresolve fit --watch`.
type WatchConfig struct {
	// Debounce is how long to coalesce file events before refitting.
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a Config with the standard defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			MappingDir: "mappings",
			DataDir:    defaultDataDir(),
		},
		Index: IndexConfig{
			BatchSize:   50,
			MaxInFlight: 2,
			ExactBoost:  10,
			TextBoost:   2,
			NgramBoost:  1,
		},
		Resolve: ResolveConfig{
			TopK:        10,
			MaxGroups:   100,
			GroupSample: 20,
			CacheSize:   512,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "", // Empty uses the default log path
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns the default index store location.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kbresolve", "indexes")
	}
	return filepath.Join(home, ".kbresolve", "indexes")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/kbresolve/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/kbresolve/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kbresolve", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kbresolve", "config.yaml")
	}
	return filepath.Join(home, ".config", "kbresolve", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/kbresolve/config.yaml)
//  3. Project config (.kbresolve.yaml in project root)
//  4. Environment variables (KBRESOLVE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .kbresolve.yaml or .kbresolve.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".kbresolve.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".kbresolve.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.MappingDir != "" {
		c.Paths.MappingDir = other.Paths.MappingDir
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	if other.Index.MaxInFlight != 0 {
		c.Index.MaxInFlight = other.Index.MaxInFlight
	}
	if other.Index.ExactBoost != 0 {
		c.Index.ExactBoost = other.Index.ExactBoost
	}
	if other.Index.TextBoost != 0 {
		c.Index.TextBoost = other.Index.TextBoost
	}
	if other.Index.NgramBoost != 0 {
		c.Index.NgramBoost = other.Index.NgramBoost
	}

	if other.Resolve.TopK != 0 {
		c.Resolve.TopK = other.Resolve.TopK
	}
	if other.Resolve.MaxGroups != 0 {
		c.Resolve.MaxGroups = other.Resolve.MaxGroups
	}
	if other.Resolve.GroupSample != 0 {
		c.Resolve.GroupSample = other.Resolve.GroupSample
	}
	if other.Resolve.CacheSize != 0 {
		c.Resolve.CacheSize = other.Resolve.CacheSize
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies KBRESOLVE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KBRESOLVE_MAPPING_DIR"); v != "" {
		c.Paths.MappingDir = v
	}
	if v := os.Getenv("KBRESOLVE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}

	if v := os.Getenv("KBRESOLVE_EXACT_BOOST"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil && b > 0 {
			c.Index.ExactBoost = b
		}
	}
	if v := os.Getenv("KBRESOLVE_TEXT_BOOST"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil && b > 0 {
			c.Index.TextBoost = b
		}
	}
	if v := os.Getenv("KBRESOLVE_NGRAM_BOOST"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil && b > 0 {
			c.Index.NgramBoost = b
		}
	}

	if v := os.Getenv("KBRESOLVE_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Resolve.TopK = k
		}
	}
	if v := os.Getenv("KBRESOLVE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// WatchDebounce returns the parsed watch debounce interval.
func (c *Config) WatchDebounce() (time.Duration, error) {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 0, fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
	}
	return d, nil
}

// FindProjectRoot finds the project root directory.
// It looks for a .git directory or a .kbresolve.yaml/.yml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".kbresolve.yaml")) ||
			fileExists(filepath.Join(currentDir, ".kbresolve.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.MappingDir == "" {
		return fmt.Errorf("paths.mapping_dir must not be empty")
	}

	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.MaxInFlight < 1 {
		return fmt.Errorf("index.max_in_flight must be positive, got %d", c.Index.MaxInFlight)
	}

	// Ranking only behaves if the three views keep their ordering.
	if !(c.Index.ExactBoost > c.Index.TextBoost && c.Index.TextBoost > c.Index.NgramBoost) {
		return fmt.Errorf("boosts must satisfy exact > text > ngram, got %.1f/%.1f/%.1f",
			c.Index.ExactBoost, c.Index.TextBoost, c.Index.NgramBoost)
	}
	if c.Index.NgramBoost <= 0 {
		return fmt.Errorf("index.ngram_boost must be positive, got %f", c.Index.NgramBoost)
	}

	if c.Resolve.TopK < 1 {
		return fmt.Errorf("resolve.top_k must be positive, got %d", c.Resolve.TopK)
	}
	if c.Resolve.MaxGroups < 1 {
		return fmt.Errorf("resolve.max_groups must be positive, got %d", c.Resolve.MaxGroups)
	}
	if c.Resolve.GroupSample < 1 {
		return fmt.Errorf("resolve.group_sample must be positive, got %d", c.Resolve.GroupSample)
	}
	if c.Resolve.CacheSize < 1 {
		return fmt.Errorf("resolve.cache_size must be positive, got %d", c.Resolve.CacheSize)
	}

	if _, err := c.WatchDebounce(); err != nil {
		return err
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
