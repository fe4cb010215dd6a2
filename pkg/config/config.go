package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// EnvKey is the environment variable naming HeavenGate's base
// directory.
const EnvKey = "HG_BASE"

// DefaultBase is used when EnvKey is unset.
const DefaultBase = "/var/HeavenGate"

// Config holds the parsed key=value pairs of a configuration file.
type Config struct {
	values map[string]string
}

// DefaultPath returns $HG_BASE/config/default.ini, falling back to
// DefaultBase when HG_BASE is unset.
func DefaultPath() string {
	base := os.Getenv(EnvKey)
	if base == "" {
		base = DefaultBase
	}
	return filepath.Join(base, "config", "default.ini")
}

// Load reads a key=value configuration file. A missing file is not an
// error: it yields an empty Config, since every setting has a
// compiled-in default.
func Load(path string) (*Config, error) {
	c := &Config{values: make(map[string]string)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		div := strings.Index(line, "=")
		if div < 0 {
			continue
		}

		key := strings.TrimSpace(line[:div])
		value := strings.TrimSpace(line[div+1:])
		c.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the raw string value for key and whether it was present.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns the file value for key, or def if absent.
func (c *Config) String(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

// Int returns the file value for key parsed as an int, or def if
// absent or unparseable.
func (c *Config) Int(key string, def int) int {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float64 returns the file value for key parsed as a float64, or def
// if absent or unparseable.
func (c *Config) Float64(key string, def float64) float64 {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the file value for key parsed as a bool, or def if
// absent or unparseable.
func (c *Config) Bool(key string, def bool) bool {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// StringSetting resolves a setting with the three-tier precedence: an
// explicitly-set CLI flag wins, then the config file, then def.
func StringSetting(cmd *cobra.Command, flagName, confKey string, c *Config, def string) string {
	if cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	if c != nil {
		if v, ok := c.Get(confKey); ok {
			return v
		}
	}
	v, _ := cmd.Flags().GetString(flagName)
	if v != "" {
		return v
	}
	return def
}

// IntSetting resolves an int setting with the same precedence as
// StringSetting.
func IntSetting(cmd *cobra.Command, flagName, confKey string, c *Config, def int) int {
	if cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetInt(flagName)
		return v
	}
	if c != nil {
		if v, ok := c.Get(confKey); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	v, _ := cmd.Flags().GetInt(flagName)
	if v != 0 {
		return v
	}
	return def
}
