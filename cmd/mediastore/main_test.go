package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "migrate", "reconcile", "env", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out := runCommand(t, "version")
	assert.Contains(t, out, "mediastore dev")
}

func TestEnvCommand(t *testing.T) {
	out := runCommand(t, "env")
	for _, name := range []string{"HTTP_PORT", "DATAPATH", "DELETIONS_KEY", "ALLOWED_SIZES", "DATABASE_URL"} {
		assert.Contains(t, out, name)
	}
}

func TestMigrateAndReconcile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATAPATH", dir)
	t.Setenv("DATABASE_URL", "sqlite")
	t.Setenv("TRANSFORMER", "native")

	assert.Contains(t, runCommand(t, "migrate"), "Migrations applied")

	out := runCommand(t, "reconcile")
	assert.Contains(t, out, `"checked": 0`)
}

func TestRouter(t *testing.T) {
	cfg, err := config.Load(
		config.WithDataPath(t.TempDir()),
		config.WithDatabaseURL("memory"),
		config.WithTransformer(config.TransformerNative),
	)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc, err := cfg.BuildService(context.Background(), reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	router := NewRouter(cfg, svc, reg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mediastore_http_requests_total")
}
