package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	database := filepath.Join(dir, "app.db")
	configPath := filepath.Join(dir, "dsrouter.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
datasources:
  - id: m1
    role: master
    driver: sqlite3
    database: %[1]s
  - id: s1
    role: slave
    driver: sqlite3
    database: %[1]s
pool:
  maxActive: 4
`, database)), 0o600))

	opts := newOptions()
	opts.ConfigPath = configPath
	opts.Reads = 2
	opts.Statements = []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY)",
		"INSERT INTO users VALUES (1)",
		"SELECT * FROM users",
	}
	opts.Metrics = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))

	output := out.String()
	require.Contains(t, output, "m1               master   true")
	require.Contains(t, output, "s1               slave    true")
	require.Contains(t, output, "routed to s1")
	require.Contains(t, output, "routed to m1")
	require.Contains(t, output, "1 rows affected")
	require.Contains(t, output, "1 rows\n")
	require.Contains(t, output, `dsrouter_operations_total{datasource="m1",operation="write",outcome="success"} 2`)
}

func writeConfig(t *testing.T, health string) string {
	t.Helper()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "dsrouter.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
datasources:
  - id: m1
    role: master
    driver: sqlite3
    database: %[1]s
  - id: s1
    role: slave
    driver: sqlite3
    database: %[1]s
%[2]s`, filepath.Join(dir, "app.db"), health)), 0o600))
	return configPath
}

func TestRun_HealthDisabled(t *testing.T) {
	for _, health := range []string{"", "health:\n  enabled: false\n  interval: 1s\n"} {
		opts := newOptions()
		opts.ConfigPath = writeConfig(t, health)
		opts.Reads = 0

		var out bytes.Buffer
		require.NoError(t, run(context.Background(), opts, &out))
		require.NotContains(t, out.String(), "pinged")
		require.Contains(t, out.String(), "health checks are disabled")
	}
}

func TestRun_HealthEnabled(t *testing.T) {
	opts := newOptions()
	opts.ConfigPath = writeConfig(t, "health:\n  enabled: true\n  timeout: 1s\n")
	opts.Reads = 0

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out))

	output := out.String()
	require.Contains(t, output, "pinged m1")
	require.Contains(t, output, "pinged s1")
	require.NotContains(t, output, "health checks are disabled")
	require.Contains(t, output, "s1               slave    true")
}

func TestRun_InvalidOptions(t *testing.T) {
	opts := newOptions()
	opts.Reads = -1
	require.Error(t, run(context.Background(), opts, &bytes.Buffer{}))

	opts = newOptions()
	opts.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	require.Error(t, run(context.Background(), opts, &bytes.Buffer{}))
}
