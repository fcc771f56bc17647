// Package config loads application configuration from files, environment
// variables, and flags via viper, and loads an initial settings seed tree
// from YAML for offline use and test fixtures.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"github.com/aviarylabs/rangesync/pkg/errors"
)

// Config is the application configuration.
type Config struct {
	// ServerURL is the settings server base URL.
	ServerURL string `mapstructure:"server_url"`
	// APIToken authenticates against the settings server. Empty disables
	// authentication.
	APIToken string `mapstructure:"api_token"`

	// CoordinateDebounce is the quiescence window for location and
	// threshold edits before a reconciliation run.
	CoordinateDebounce time.Duration `mapstructure:"coordinate_debounce"`
	// SearchDebounce is the quiescence window for search filter edits.
	SearchDebounce time.Duration `mapstructure:"search_debounce"`

	// DefaultThreshold is used when no threshold is configured.
	DefaultThreshold float64 `mapstructure:"default_threshold"`

	// SeedFile optionally points at a YAML settings tree loaded instead of
	// the initial server fetch.
	SeedFile string `mapstructure:"seed_file"`

	// ExportDir is where CSV exports are written.
	ExportDir string `mapstructure:"export_dir"`

	// LogLevel and LogFormat configure the logger.
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Defaults match the range filter's historical behavior: a 0.01 threshold
// floor and short client-side quiescence windows.
const (
	DefaultCoordinateDebounce = 150 * time.Millisecond
	DefaultSearchDebounce     = 300 * time.Millisecond
	DefaultThreshold          = 0.01
)

// setDefaults registers defaults on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("coordinate_debounce", DefaultCoordinateDebounce)
	v.SetDefault("search_debounce", DefaultSearchDebounce)
	v.SetDefault("default_threshold", DefaultThreshold)
	v.SetDefault("export_dir", ".")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")
}

// Load reads configuration from the optional file path, RANGESYNC_*
// environment variables, and defaults, in ascending precedence of default <
// file < environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RANGESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapIO("read", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapParse("config", path, err)
	}
	return &cfg, nil
}

// LoadSeed reads a YAML settings tree, keyed by section name, for use in
// place of the initial server fetch.
func LoadSeed(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO("read", path, err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	return tree, nil
}
