/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package config loads and defaults the TOML configuration file the
// bootwarmd binary reads, covering both the ambient stack (logging) and
// the pipeline's own options (pack output, ignore prefixes, path
// rewrite rules, trace buffer size).
package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/bootwarm/bootwarm/internal/constant"
	"github.com/bootwarm/bootwarm/internal/logging"
	"github.com/bootwarm/bootwarm/pkg/slices"
)

// PrefixRule is the TOML-facing form of pathfilter.PrefixRule: a
// device-scoped path prefix rewrite applied before the accept/reject
// decision.
type PrefixRule struct {
	DeviceID uint64 `toml:"device_id"`
	From     string `toml:"from"`
	To       string `toml:"to"`
}

// Config is the full set of options bootwarmd reads from its TOML
// configuration file, overridable by CLI flags.
type Config struct {
	PackDir           string       `toml:"pack_dir"`
	IgnorePrefixes    []string     `toml:"ignore_prefixes"`
	AllowPrefix       string       `toml:"allow_prefix"`
	PrefixRules       []PrefixRule `toml:"prefix_rules"`
	TraceBufferSizeKB int          `toml:"trace_buffer_size_kb"`
	ForceSSDMode      bool         `toml:"force_ssd_mode"`

	LogLevel    string `toml:"log_level"`
	LogDir      string `toml:"log_dir"`
	LogToStdout bool   `toml:"log_to_stdout"`

	RotateLogMaxSize    int  `toml:"log_rotate_max_size"`
	RotateLogMaxBackups int  `toml:"log_rotate_max_backups"`
	RotateLogMaxAge     int  `toml:"log_rotate_max_age"`
	RotateLogLocalTime  bool `toml:"log_rotate_local_time"`
	RotateLogCompress   bool `toml:"log_rotate_compress"`
}

// LoadFile reads path into config, leaving config's existing values
// (normally its defaults) untouched for any key path doesn't set. A
// missing file is not an error: bootwarmd runs on defaults alone.
func LoadFile(path string, config *Config) error {
	if path == "" {
		return errors.New("config path cannot be empty")
	}
	tree, err := toml.LoadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to load config file %q", path)
	}
	if err := tree.Unmarshal(config); err != nil {
		return errors.Wrapf(err, "failed to unmarshal config file %q", path)
	}
	return nil
}

// RotateArgs adapts Config's rotation fields to the shape
// internal/logging expects.
func (c *Config) RotateArgs() *logging.RotateLogArgs {
	return &logging.RotateLogArgs{
		RotateLogMaxSize:    c.RotateLogMaxSize,
		RotateLogMaxBackups: c.RotateLogMaxBackups,
		RotateLogMaxAge:     c.RotateLogMaxAge,
		RotateLogLocalTime:  c.RotateLogLocalTime,
		RotateLogCompress:   c.RotateLogCompress,
	}
}

const defaultPackDir = "/var/lib/bootwarm/packs"

// FillUpWithDefaults populates every field Config left at its zero
// value with this project's default.
func (c *Config) FillUpWithDefaults() error {
	if c.PackDir == "" {
		c.PackDir = defaultPackDir
	}
	if c.IgnorePrefixes == nil {
		c.IgnorePrefixes = append([]string(nil), constant.IgnorePathPrefixes...)
	} else {
		// A hand-edited TOML file can repeat a prefix; every repeat
		// after the first is wasted work in pathfilter's per-path loop.
		c.IgnorePrefixes = slices.RemoveDuplicates(c.IgnorePrefixes)
	}
	if c.TraceBufferSizeKB == 0 {
		c.TraceBufferSizeKB = constant.TraceBufferSizeKB
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join(filepath.Dir(c.PackDir), logging.DefaultLogDirName)
	}
	if c.RotateLogMaxSize == 0 {
		c.RotateLogMaxSize = 200
	}
	if c.RotateLogMaxBackups == 0 {
		c.RotateLogMaxBackups = 10
	}
	c.RotateLogLocalTime = true
	c.RotateLogCompress = true
	return nil
}
