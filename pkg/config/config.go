package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ykrivopalov/objdeps/pkg/symbols"
)

// Config holds all configuration options for objdeps.
type Config struct {
	// Symbol tool settings
	Tool ToolConfig `koanf:"tool" toml:"tool"`

	// Symbol noise filtering
	Filter FilterConfig `koanf:"filter" toml:"filter"`

	// Archive discovery settings
	Scan ScanConfig `koanf:"scan" toml:"scan"`

	// Extraction phase settings
	Build BuildConfig `koanf:"build" toml:"build"`

	// Registry persistence settings
	Store StoreConfig `koanf:"store" toml:"store"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output"`
}

// ToolConfig controls the external symbol-listing tool.
type ToolConfig struct {
	NM             string `koanf:"nm" toml:"nm"`
	TimeoutSeconds int    `koanf:"timeout_seconds" toml:"timeout_seconds"`
}

// FilterConfig defines symbol name prefixes discarded during extraction.
// Each archive's own basename is always discarded in addition.
type FilterConfig struct {
	Prefixes []string `koanf:"prefixes" toml:"prefixes"`
}

// ScanConfig controls archive discovery in directories.
type ScanConfig struct {
	Extensions []string `koanf:"extensions" toml:"extensions"`
	Exclude    []string `koanf:"exclude" toml:"exclude"` // gitignore-style patterns
}

// BuildConfig controls the parallel extraction phase.
type BuildConfig struct {
	Jobs int `koanf:"jobs" toml:"jobs"` // 0 means twice the CPU count
}

// StoreConfig controls registry persistence.
type StoreConfig struct {
	Path string `koanf:"path" toml:"path"`
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format"` // text, json, markdown
	Color   bool   `koanf:"color" toml:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Tool: ToolConfig{
			NM:             "nm",
			TimeoutSeconds: 30,
		},
		Filter: FilterConfig{
			Prefixes: append([]string(nil), symbols.DefaultNoisePrefixes...),
		},
		Scan: ScanConfig{
			Extensions: []string{".a", ".lib", ".so"},
		},
		Build: BuildConfig{
			Jobs: 0,
		},
		Store: StoreConfig{
			Path: "symbols.db",
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		// Try to detect from content or default to TOML
		parser = toml.Parser()
	}

	// Load the config file
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns defaults.
func LoadOrDefault() *Config {
	// Standard config file names to search for
	configNames := []string{
		"objdeps.toml",
		"objdeps.yaml",
		"objdeps.yml",
		"objdeps.json",
		".objdeps.toml",
		".objdeps.yaml",
		".objdeps.yml",
		".objdeps.json",
	}

	for _, name := range configNames {
		if _, err := os.Stat(name); err == nil {
			cfg, err := Load(name)
			if err == nil {
				return cfg
			}
		}
	}

	return DefaultConfig()
}
