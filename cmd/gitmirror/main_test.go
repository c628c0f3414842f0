package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/gitmirror/internal/version"
)

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"remote", "branch", "datadir", "interval", "depth", "http-addr", "watch"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), "flag %q should be registered", name)
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), version.AppName)
	assert.Contains(t, out.String(), version.Version)
}

func TestLoadConfigBindsFlags(t *testing.T) {
	require.NoError(t, rootCmd.ParseFlags([]string{"--branch", "release"}))
	require.NoError(t, loadConfig(rootCmd))
}
