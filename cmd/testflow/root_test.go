package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/testflow/internal/cli"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "probe", RunE: func(*cobra.Command, []string) error { return nil }}
	registerPersistentFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, cli.ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("store:\n  type: redis\n  redis_addr: cache:6379\nlog:\n  level: warn\n"), 0o644))

	cmd := newFlagCommand(t, "--config", path, "--redis-addr", "other:6380", "--token", "t0k", "--debug")
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, cli.StoreRedis, cfg.Store.Type)
	assert.Equal(t, "other:6380", cfg.Store.RedisAddr)
	assert.Equal(t, "t0k", cfg.Store.Token)
	assert.Equal(t, "t0k", cfg.Orchestrator.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestCommands_ImportValidateGraph(t *testing.T) {
	dir := t.TempDir()
	flowFile := filepath.Join(dir, "login.yaml")
	require.NoError(t, os.WriteFile(flowFile, []byte(`name: Login
nodes:
  - id: A
    type: http_request
    label: Login
  - id: B
    type: assertion
    label: Check
edges:
  - id: ab
    source: A
    target: B
`), 0o644))

	storeDir := filepath.Join(dir, "store")
	base := []string{"--config", filepath.Join(dir, "none.yaml"), "--dir", storeDir}

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append(args, base...))
		err := rootCmd.Execute()
		return out.String(), err
	}

	out, err := run("import", flowFile)
	require.NoError(t, err)
	assert.Contains(t, out, "imported login (2 nodes, 1 edges)")

	out, err = run("flows")
	require.NoError(t, err)
	assert.Contains(t, out, "login")

	out, err = run("validate", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Flow is valid!")

	out, err = run("graph", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "A --> B")

	out, err = run("layout", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "A")

	_, err = run("run", "login")
	assert.Error(t, err, "no orchestrator configured")
}
