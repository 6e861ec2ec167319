package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clientvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
db_driver: postgres
db_dsn: "postgres://vault@localhost/vault"
dispatch_interval: 5s
`), 0o600))

	cfg, err := LoadConfigFile(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 5*time.Second, cfg.DispatchInterval)
	assert.Equal(t, "./wwwroot", cfg.PublicRoot)
	assert.Equal(t, int64(512<<20), cfg.MaxUploadBytes)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o600))

	_, err := LoadConfigFile(path, DefaultConfig())
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBDriver = "mysql"
	cfg.AuditBodyCap = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported db driver")
	assert.Contains(t, err.Error(), "audit body cap")

	cfg = DefaultConfig()
	cfg.DBDriver = DriverPostgres
	assert.ErrorContains(t, cfg.Validate(), "dsn")
}

func TestNewServerServesHealthz(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "vault.sqlite")
	cfg.PublicRoot = filepath.Join(dir, "wwwroot")
	cfg.AdminAPIKey = "secret-admin"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, closer, err := NewServer(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closer.Close() })

	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["ok"])

	assert.DirExists(t, filepath.Join(cfg.PublicRoot, "uploads", "clients"))
	assert.DirExists(t, filepath.Join(cfg.PublicRoot, "uploads", "archives"))

	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	req.Header.Set("X-API-Key", "secret-admin")
	rec = httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMigrateCreatesDatabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "migrate.sqlite")

	require.NoError(t, Migrate(context.Background(), cfg))
	require.NoError(t, Migrate(context.Background(), cfg))
	assert.FileExists(t, cfg.DBPath)
}
