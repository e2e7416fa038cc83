package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/memfs/internal/util"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// DefaultSeparator splits paths into segments
	DefaultSeparator = "/"

	// DefaultMaxNameLen matches the common NAME_MAX of 255 bytes
	DefaultMaxNameLen = 255

	// DefaultMaxDepth of 0 means path depth is unlimited
	DefaultMaxDepth = 0

	DefaultFsName = "memfs"
	DefaultName   = "memfs"
)

// CLI verbosity levels accepted by [ConfigOverride.LogLvl]
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Config contains runtime configuration values for the host filesystem layer.
type Config struct {
	MountOptions
	LogLvl     util.LogLevel // Global log level (Default info)
	Separator  string        // Path segment separator (Default "/")
	MaxNameLen int           // Maximum bytes per path segment; 0 disables the check (Default 255)
	MaxDepth   int           // Maximum number of segments per path; 0 is unlimited (Default 0)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	// LogLvl is a CLI style verbosity between 1 (error) and 5 (trace); out of
	// range values are clamped
	LogLvl     *int    `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`
	Separator  *string `yaml:"separator,omitempty" json:"separator,omitempty"`
	MaxNameLen *int    `yaml:"max_name_len,omitempty" json:"max_name_len,omitempty"`
	MaxDepth   *int    `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`
	FuseDebug  *bool   `yaml:"fuse_debug,omitempty" json:"fuse_debug,omitempty"`
	FsName     *string `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name       *string `yaml:"name,omitempty" json:"name,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:     DefaultLogLvl,
		Separator:  DefaultSeparator,
		MaxNameLen: DefaultMaxNameLen,
		MaxDepth:   DefaultMaxDepth,
	}
}

// NewConfig creates a Config from defaults with override applied; override may be nil
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = VerboseToLogLevel(*override.LogLvl)
	}
	if override.Separator != nil && *override.Separator != "" {
		c.Separator = *override.Separator
	}
	if override.MaxNameLen != nil {
		c.MaxNameLen = *override.MaxNameLen
	}
	if override.MaxDepth != nil {
		c.MaxDepth = *override.MaxDepth
	}
	if override.FuseDebug != nil {
		c.Debug = *override.FuseDebug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
}

// VerboseToLogLevel maps CLI verbosity 1 (error) .. 5 (trace) to a log level,
// clamping values out of range.
func VerboseToLogLevel(verbose int) util.LogLevel {
	verbose = min(max(verbose, ErrorVerbose), TraceVerbose)
	lvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	return lvls[verbose-1]
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
