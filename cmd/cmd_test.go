// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"github.com/jarylc/go-recaptchabuster"
	"github.com/jarylc/go-recaptchabuster/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// execute runs the command tree with args and returns what it wrote to stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	rootCmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func missingExtension(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing", "buster.crx")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "recaptchabuster version "+Version+"\n", stdout)
}

func TestVersionFlag(t *testing.T) {
	stdout, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestSolveRequiresURL(t *testing.T) {
	_, _, err := execute(t, "solve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSolveRejectsInvalidConfig(t *testing.T) {
	_, _, err := execute(t, "solve", "https://example.com", "--browser", "firefox")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.name")
}

func TestSolveMissingExtension(t *testing.T) {
	stdout, _, err := execute(t, "solve", "https://example.com", "--extension", missingExtension(t))
	require.Error(t, err)

	var cfgErr *recaptchabuster.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Message, "extension not found")
	assert.Contains(t, stdout, "https://example.com: not solved")
}

func TestSolveMissingExtensionJSON(t *testing.T) {
	stdout, _, err := execute(t, "solve", "https://example.com", "--extension", missingExtension(t), "--json")
	require.Error(t, err)

	var res map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "https://example.com", res["url"])
	assert.Equal(t, false, res["solved"])
	assert.Equal(t, "error", res["outcome"])
	assert.Contains(t, res["error"], "extension not found")
}

func TestSolveEnvOverrides(t *testing.T) {
	t.Setenv("RECAPTCHABUSTER_SOLVER_MAX_ATTEMPTS", "0")

	_, _, err := execute(t, "solve", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "solver.max_attempts")
}

func TestSolveFlagBeatsEnv(t *testing.T) {
	t.Setenv("RECAPTCHABUSTER_BROWSER_NAME", "firefox")

	// the flag fixes the browser, so the run gets as far as the missing extension
	_, _, err := execute(t, "solve", "https://example.com", "--browser", "edge", "--extension", missingExtension(t))
	var cfgErr *recaptchabuster.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "unexpected error: %v", err)
}

func TestSolveConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recaptchabuster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser:\n  name: safari\n"), 0o644))

	_, _, err := execute(t, "--config", path, "solve", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "safari")
}

func TestSolveMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "solve", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestPrintResult(t *testing.T) {
	res := result{
		URL:      "https://www.google.com/recaptcha/api2/demo",
		Solved:   true,
		Outcome:  recaptchabuster.OutcomeSolved,
		Attempts: 2,
		LiveView: "http://127.0.0.1:9221/?id=ABC",
	}

	var text bytes.Buffer
	require.NoError(t, printResult(&text, res, false))
	assert.Equal(t, "https://www.google.com/recaptcha/api2/demo: solved (solved after 2 attempt(s))\n"+
		"live view: http://127.0.0.1:9221/?id=ABC\n", text.String())

	var out bytes.Buffer
	require.NoError(t, printResult(&out, res, true))
	assert.JSONEq(t, `{
		"url": "https://www.google.com/recaptcha/api2/demo",
		"solved": true,
		"outcome": "solved",
		"attempts": 2,
		"live_view": "http://127.0.0.1:9221/?id=ABC"
	}`, out.String())
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":9221", "http://127.0.0.1:9221"},
		{"0.0.0.0:9221", "http://127.0.0.1:9221"},
		{"localhost:8080", "http://localhost:8080"},
		{"[::1]:9221", "http://[::1]:9221"},
	}
	for _, tt := range tests {
		got, err := baseURL(tt.addr)
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.want, got)
	}

	_, err := baseURL("9221")
	assert.Error(t, err)
}

func TestSessionConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Browser.Name = "edge"
	cfg.Browser.Headless = true
	cfg.Browser.NoSandbox = true

	sessionCfg := sessionConfig(cfg, nil)
	assert.Equal(t, recaptchabuster.BrowserEdge, sessionCfg.Browser)
	assert.True(t, sessionCfg.Headless)
	assert.Len(t, sessionCfg.ExtraFlags, 1)
	assert.Empty(t, sessionCfg.RemoteDebuggingAddr)

	cfg.LiveView.Addr = ":9221"
	sessionCfg = sessionConfig(cfg, nil)
	assert.Equal(t, "127.0.0.1:9222", sessionCfg.RemoteDebuggingAddr)
}

func TestWait(t *testing.T) {
	assert.NoError(t, wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
}
