package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
server:
  jwt_secret: unit-test-secret
database:
  host: localhost
  name: marina
  user: marina
  password: marina
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8*time.Hour, cfg.Server.JWTExpiration)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "always_open", cfg.Reconciliation.Policy)
	assert.Equal(t, 15, cfg.Reconciliation.DefaultTimeInMarina)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_RefusesMissingJWTSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  jwt_secret: from-file
database:
  host: db.internal
reconciliation:
  policy: always_open
`)

	t.Setenv("MARINA_SERVER_PORT", "7070")
	t.Setenv("MARINA_JWT_SECRET", "from-env")
	t.Setenv("MARINA_DB_HOST", "db.override")
	t.Setenv("MARINA_RECONCILIATION_POLICY", "identifier_match")
	t.Setenv("MARINA_INIT_DB", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.JWTSecret)
	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, "identifier_match", cfg.Reconciliation.Policy)
	assert.True(t, cfg.Server.InitDB)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "marina", User: "app", Password: "pw"}
	assert.Equal(t, "postgres://app:pw@db:5432/marina?sslmode=disable", d.DSN())
}
