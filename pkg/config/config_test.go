package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "meshnode.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadEffectiveFromFile(t *testing.T) {
	p := writeConfig(t, `
server:
  address: "127.0.0.1"
  port: 9100
storage:
  db_path: "/tmp/mesh"
resolver:
  gateway_url: "http://gw:8080"
  max_attempts: 5
ingest:
  workers: 8
  queue_capacity: 2048
confirm:
  window: "5m"
`)
	eff, err := LoadEffective(p)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9100", eff.Addr)
	require.Equal(t, "/tmp/mesh", eff.DBPath)
	require.Equal(t, 5, eff.Config.Resolver.MaxAttempts)
	require.Equal(t, 8, eff.Config.Ingest.Workers)
	require.Equal(t, 2048, eff.Config.Ingest.QueueCapacity)
	require.Equal(t, "5m", eff.Config.Confirm.Window)
	require.Equal(t, "config", eff.Source)
}

func TestLoadEffectiveEnvOverrides(t *testing.T) {
	p := writeConfig(t, "server:\n  port: 9100\n")
	t.Setenv("MESHNODE_PORT", "9200")
	t.Setenv("MESHNODE_DB_PATH", "/env/db")

	eff, err := LoadEffective(p)
	require.NoError(t, err)
	require.Equal(t, ":9200", eff.Addr, "env port must win over the file")
	require.Equal(t, "/env/db", eff.DBPath)
	require.Equal(t, "env", eff.Source)
}

func TestLoadEffectiveDefaults(t *testing.T) {
	eff, err := LoadEffective("")
	require.NoError(t, err)
	require.Equal(t, ":4024", eff.Addr)
	require.Equal(t, "./data", eff.DBPath)
	require.Equal(t, "defaults", eff.Source)
}

func TestLoadEffectiveMissingFile(t *testing.T) {
	_, err := LoadEffective("/does/not/exist.yaml")
	require.Error(t, err, "explicit missing file must error")
}

func TestLoadEffectiveBadYAML(t *testing.T) {
	p := writeConfig(t, "server: [not: a: mapping")
	_, err := LoadEffective(p)
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	require.Equal(t, 5*time.Minute, ParseDuration("5m", time.Second))
	require.Equal(t, time.Second, ParseDuration("", time.Second))
	require.Equal(t, time.Second, ParseDuration("nonsense", time.Second))
}

func TestParseSize(t *testing.T) {
	require.Equal(t, 16<<20, ParseSize("16 MiB", 1))
	require.Equal(t, 42, ParseSize("", 42))
	require.Equal(t, 42, ParseSize("lots", 42))
}
