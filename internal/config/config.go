// Package config loads bindump's configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatOpcodes = "opcodes"

	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config holds the settings bindump reads from its config file. Command line
// flags override them.
type Config struct {
	// Format is how imports are printed: text, json or opcodes.
	Format string `yaml:"format" toml:"format"`
	// Arch selects the image of a universal binary by cpu name. Empty picks
	// the first one.
	Arch       string `yaml:"arch" toml:"arch"`
	Concurrent bool   `yaml:"concurrent" toml:"concurrent"`
	Verbose    bool   `yaml:"verbose" toml:"verbose"`
	Color      string `yaml:"color" toml:"color"`
	// MaxImports caps the imports a single image may produce. 0 keeps the
	// interpreter's default, a negative value removes the cap.
	MaxImports int `yaml:"max_imports" toml:"max_imports"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Format: FormatText,
		Color:  ColorAuto,
	}
}

// Load reads the config file at path. Files ending in .toml are decoded as
// TOML, everything else as YAML. Settings missing from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %s: %w", path, err)
	}

	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return nil, fmt.Errorf("config: parse error in %s: %w", path, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parse error in %s: %w", path, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate reports the first setting that has an unknown value.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatText, FormatJSON, FormatOpcodes:
	default:
		return fmt.Errorf("unknown format %q (want text, json or opcodes)", c.Format)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("unknown color mode %q (want auto, always or never)", c.Color)
	}
	return nil
}
