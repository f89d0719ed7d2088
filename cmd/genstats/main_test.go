package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genstats/client/internal/stub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	dir     string
	baseURL string
	stub    *stub.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, k := range []string{"GENSTATS_BASE_URL", "GENSTATS_INSIGHT_PATH", "GENSTATS_DATA_DIR", "DATA_DIR", "PORT", "GENSTATS_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	srv := stub.New(stub.Options{Responder: func(q string) string { return "insight: " + q }})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testEnv{dir: t.TempDir(), baseURL: ts.URL, stub: srv}
}

// run executes the CLI with a fresh command tree and returns its stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append([]string{
		"--config", filepath.Join(e.dir, "genstats.yaml"),
		"--base-url", e.baseURL,
		"--env-file", "",
		"--log-level", "error",
	}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCLI_UploadSummaryAsk(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeCSV(t, "data.csv", "a,b\n1,2\n3,4\n")

	out, err := env.run(t, "upload", "-q", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded data.csv")
	assert.Equal(t, 1, env.stub.Registry().Len())

	out, err = env.run(t, "summary", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, `"filename":"data.csv"`)
	assert.Contains(t, out, `"lines":3`)

	out, err = env.run(t, "ask", "find", "outliers")
	require.NoError(t, err)
	assert.Equal(t, "insight: find outliers\n", out)

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset: ")
	assert.NotContains(t, out, "Dataset: none")
	assert.Contains(t, out, "Last query: find outliers")
}

func TestCLI_SummaryWithoutDataset(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no dataset selected")
}

func TestCLI_SessionsAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeCSV(t, "data.csv", "x\n1\n")

	_, err := env.run(t, "--session", "one", "upload", "-q", path)
	require.NoError(t, err)

	out, err := env.run(t, "--session", "two", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset: none")

	out, err = env.run(t, "--session", "one", "status")
	require.NoError(t, err)
	assert.NotContains(t, out, "Dataset: none")
}

func TestCLI_HistoryAndReset(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeCSV(t, "data.csv", "x\n1\n")

	_, err := env.run(t, "upload", "-q", path)
	require.NoError(t, err)
	env.stub.Fail(stub.RouteSummary, 500)
	_, err = env.run(t, "summary")
	require.Error(t, err)

	out, err := env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "upload")
	assert.Contains(t, out, "failure")

	out, err = env.run(t, "history", "--stats", "--markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "| summary |")

	_, err = env.run(t, "reset", "--history")
	require.NoError(t, err)

	out, err = env.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Dataset: none")

	out, err = env.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No operations recorded yet.")
}

func TestCLI_StatusHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "status", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "Health: ok")
}

func TestShell_Commands(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeCSV(t, "data.csv", "x\n1\n")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(strings.Join([]string{
		":summary",
		":upload " + path,
		":summary",
		":ask   ",
		":ask how many rows?",
		"hello realtime",
		":bogus",
		":quit",
		":ask never reached",
	}, "\n")))
	root.SetArgs([]string{
		"--config", filepath.Join(env.dir, "genstats.yaml"),
		"--base-url", env.baseURL,
		"--env-file", "",
		"--log-level", "error",
		"shell",
	})
	require.NoError(t, root.Execute())

	got := out.String()
	assert.Contains(t, got, "no dataset selected")
	assert.Contains(t, got, "Uploaded data.csv as ")
	assert.Contains(t, got, `"filename": "data.csv"`)
	assert.Contains(t, got, "query is empty")
	assert.Contains(t, got, "insight: how many rows?")
	assert.Contains(t, got, "realtime channel not configured")
	assert.Contains(t, got, "Unknown command :bogus")
	assert.NotContains(t, got, "never reached")
}
