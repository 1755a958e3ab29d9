package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/biosync/internal/buildinfo"
	"github.com/tphakala/biosync/internal/conf"
)

func TestConfigCommandWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "biosync", "config.yaml")

	settings := &conf.Settings{}
	root := RootCommand(settings, buildinfo.NewContext("1.0.0", "2026-10-01", "test"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--config", path})
	require.NoError(t, root.Execute())

	_, err := os.Stat(path)
	require.NoError(t, err, "a missing config file is created from the embedded defaults")

	assert.Contains(t, out.String(), "engine:")
	assert.Contains(t, out.String(), "devices:")
	assert.NotEmpty(t, settings.Devices)
}

func TestVersionFlag(t *testing.T) {
	root := RootCommand(&conf.Settings{}, buildinfo.NewContext("1.2.3", "2026-10-01", "test"))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1.2.3 (built 2026-10-01)")
}
