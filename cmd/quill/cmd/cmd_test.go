package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/quill/api"
	"github.com/jmcleod/quill/config"
	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/storage"
)

const testSecret = "cmd-test-signing-secret"

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Env:              "development",
		AuthSecret:       testSecret,
		Port:             8080,
		DataDir:          dir,
		Storage:          backend,
		DefaultLocale:    "zh",
		UploadDir:        filepath.Join(dir, "uploads"),
		UploadMaxSize:    1 << 20,
		RateLimitBackend: config.RateLimitMemory,
		AuditMaxEntries:  100,
		LogFormat:        "text",
	}
}

func TestOpenRepository(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{config.StorageBBolt, config.StorageSQLite, config.StorageMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			repo, closeRepo, err := openRepository(ctx, cfg)
			require.NoError(t, err)
			defer closeRepo()

			rec := &storage.Record{Data: []byte(`{"title":"hello"}`), Version: 1}
			require.NoError(t, repo.Put(ctx, "content", "POST", "p1", rec))
			got, err := repo.Get(ctx, "content", "POST", "p1")
			require.NoError(t, err)
			assert.Equal(t, rec.Data, got.Data)
		})
	}

	t.Run("files land in the data dir", func(t *testing.T) {
		cfg := testConfig(t, config.StorageBBolt)
		_, closeRepo, err := openRepository(ctx, cfg)
		require.NoError(t, err)
		require.NoError(t, closeRepo())
		assert.FileExists(t, filepath.Join(cfg.DataDir, bboltFile))
	})
}

func TestRunInit(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageBBolt)
	cfg.AuthSecret = ""
	envPath := filepath.Join(t.TempDir(), ".env")

	var out bytes.Buffer
	require.NoError(t, runInit(ctx, &out, cfg, envPath, "admin", "admin@example.com", ""))
	assert.Contains(t, out.String(), "Wrote AUTH_SECRET")
	assert.Contains(t, out.String(), `Created admin "admin"`)
	assert.Contains(t, out.String(), "Password: ")

	env, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.AuthSecret, env["AUTH_SECRET"])
	assert.NotEmpty(t, env["AUTH_SECRET"])

	info, err := os.Stat(envPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second run keeps the secret and resets the password.
	out.Reset()
	require.NoError(t, runInit(ctx, &out, cfg, envPath, "admin", "", "replacement-password"))
	assert.NotContains(t, out.String(), "Wrote AUTH_SECRET")
	assert.Contains(t, out.String(), `Updated admin "admin"`)
	assert.NotContains(t, out.String(), "Password: ")

	repo, closeRepo, err := openRepository(ctx, cfg)
	require.NoError(t, err)
	defer closeRepo()
	u, err := content.NewStore(repo).Authenticate(ctx, "admin", "replacement-password")
	require.NoError(t, err)
	assert.Equal(t, content.RoleAdmin, u.Role)
}

func TestRunInitRejectsMemoryStorage(t *testing.T) {
	cfg := testConfig(t, config.StorageMemory)
	err := runInit(context.Background(), io.Discard, cfg, filepath.Join(t.TempDir(), ".env"), "admin", "", "")
	assert.ErrorContains(t, err, "persistent storage")
}

func TestApplyServerFlags(t *testing.T) {
	cfg := testConfig(t, config.StorageBBolt)
	cfg.DataDir = "./data"
	cfg.UploadDir = "./data/uploads"

	c := &cobra.Command{}
	c.Flags().IntVarP(&port, "port", "p", 0, "")
	c.Flags().StringVar(&dataDir, "data-dir", "", "")
	c.Flags().StringVar(&storageKind, "storage", "", "")
	require.NoError(t, c.Flags().Set("port", "9090"))
	require.NoError(t, c.Flags().Set("data-dir", "/srv/quill"))
	require.NoError(t, c.Flags().Set("storage", "SQLite"))

	require.NoError(t, applyServerFlags(c, cfg))
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/srv/quill", cfg.DataDir)
	assert.Equal(t, "/srv/quill/uploads", cfg.UploadDir)
	assert.Equal(t, config.StorageSQLite, cfg.Storage)

	require.NoError(t, c.Flags().Set("storage", "redis"))
	assert.Error(t, applyServerFlags(c, cfg))
}

func TestNewAppRejectsMissingSecret(t *testing.T) {
	cfg := testConfig(t, config.StorageMemory)
	cfg.AuthSecret = ""
	_, err := newApp(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "AUTH_SECRET")
}

func TestNewAppRoutes(t *testing.T) {
	cfg := testConfig(t, config.StorageMemory)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, os.MkdirAll(cfg.UploadDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.UploadDir, "note.txt"), []byte("uploaded"), 0o600))

	srv := httptest.NewServer(a.handler)
	defer srv.Close()
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	get := func(t *testing.T, path string) (*http.Response, string) {
		t.Helper()
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	t.Run("health", func(t *testing.T) {
		resp, body := get(t, "/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "OK", body)
	})

	t.Run("protected page redirects to login", func(t *testing.T) {
		resp, _ := get(t, "/dashboard")
		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Equal(t, "/login?from=%2Fdashboard", resp.Header.Get("Location"))
	})

	t.Run("login page renders with locale", func(t *testing.T) {
		resp, body := get(t, "/login")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `lang="zh"`)
		var localeCookie bool
		for _, c := range resp.Cookies() {
			if c.Name == "locale" {
				localeCookie = true
			}
		}
		assert.True(t, localeCookie, "gate sets the locale cookie")
	})

	t.Run("api is mounted", func(t *testing.T) {
		resp, body := get(t, "/api/v1/auth/session")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &payload))
	})

	t.Run("uploads are served without listings", func(t *testing.T) {
		resp, body := get(t, "/uploads/note.txt")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "uploaded", body)

		resp, _ = get(t, "/uploads/")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPrintAudit(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	entries := []api.AuditEntry{
		{ID: "2", Event: api.AuditPostDeleted, ActorID: "u1", Actor: "alice", Target: "p9", RemoteAddr: "10.0.0.1", CreatedAt: at},
		{ID: "1", Event: api.AuditUserCreated, ActorID: "u1", CreatedAt: at.Add(-time.Minute)},
	}

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printAuditTable(&out, entries))
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "EVENT")
		assert.Contains(t, lines[1], "post_deleted")
		assert.Contains(t, lines[1], "alice")
		assert.Contains(t, lines[1], "2026-05-04T10:30:00Z")
		assert.Contains(t, lines[2], "u1", "falls back to the actor id")
		assert.Contains(t, lines[2], "-")
	})

	t.Run("empty table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printAuditTable(&out, nil))
		assert.Equal(t, "No audit entries.\n", out.String())
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printAuditJSON(&out, entries))
		var decoded []api.AuditEntry
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, api.AuditPostDeleted, decoded[0].Event)

		out.Reset()
		require.NoError(t, printAuditJSON(&out, nil))
		assert.Equal(t, "[]\n", out.String())
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, Version+"\n", out.String())
}
