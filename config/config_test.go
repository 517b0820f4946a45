/*
 * SPDX-License-Identifier: Apache-2.0
 */

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
pack_dir = "/var/lib/bootwarm/packs"
allow_prefix = "/"
trace_buffer_size_kb = 4096
force_ssd_mode = true

[[prefix_rules]]
device_id = 8388608
from = "/chroot"
to = ""
`

func TestLoadFileUnmarshalsTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bootwarm.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0644))

	var cfg Config
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, "/var/lib/bootwarm/packs", cfg.PackDir)
	assert.Equal(t, "/", cfg.AllowPrefix)
	assert.Equal(t, 4096, cfg.TraceBufferSizeKB)
	assert.True(t, cfg.ForceSSDMode)
	require.Len(t, cfg.PrefixRules, 1)
	assert.Equal(t, uint64(8388608), cfg.PrefixRules[0].DeviceID)
	assert.Equal(t, "/chroot", cfg.PrefixRules[0].From)
}

func TestLoadFileMissingPathIsNotAnError(t *testing.T) {
	var cfg Config
	err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"), &cfg)
	require.NoError(t, err)
}

func TestFillUpWithDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.FillUpWithDefaults())

	assert.Equal(t, defaultPackDir, cfg.PackDir)
	assert.NotEmpty(t, cfg.IgnorePrefixes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotZero(t, cfg.TraceBufferSizeKB)
}

func TestFillUpWithDefaultsDedupsExplicitIgnorePrefixes(t *testing.T) {
	cfg := Config{IgnorePrefixes: []string{"/proc", "/sys", "/proc"}}
	require.NoError(t, cfg.FillUpWithDefaults())

	assert.Equal(t, []string{"/proc", "/sys"}, cfg.IgnorePrefixes)
}

func TestFillUpWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{PackDir: "/custom/dir", LogLevel: "debug"}
	require.NoError(t, cfg.FillUpWithDefaults())

	assert.Equal(t, "/custom/dir", cfg.PackDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}
