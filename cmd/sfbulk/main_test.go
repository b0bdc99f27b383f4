package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesforce-bulk/internal/sftest"
)

// setupEnv aponta a CLI para uma org falsa e um histórico temporário.
func setupEnv(t *testing.T) *sftest.Server {
	t.Helper()
	srv := sftest.Start(t)

	t.Setenv("SF_SETTINGS", "")
	t.Setenv("SF_AUTH_METHOD", "client_credentials")
	t.Setenv("SF_CLIENT_ID", sftest.ClientID)
	t.Setenv("SF_CLIENT_SECRET", sftest.ClientSecret)
	t.Setenv("SF_LOGIN_URL", srv.URL)
	t.Setenv("SF_POLL_INTERVAL", "1ms")
	t.Setenv("SF_HISTORY_DB", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("SF_STATS_REDIS_ADDR", "")
	return srv
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root, cleanup := newRootCmd(zap.NewNop())
	defer cleanup()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	srv := setupEnv(t)

	out, err := run(t, "", "check")
	require.NoError(t, err)
	assert.Equal(t, "connected: instance="+srv.URL+" api=v64.0\n", out)
}

func TestCheck_SettingsFile(t *testing.T) {
	srv := setupEnv(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth_method: password
username: `+sftest.Username+`
password: `+sftest.Password+`
security_token: `+sftest.SecurityToken+`
api_version: 63
`), 0o600))

	out, err := run(t, "", "check", "--settings", path)
	require.NoError(t, err)
	assert.Equal(t, "connected: instance="+srv.URL+" api=v63.0\n", out)
}

func TestCheck_BadCredentials(t *testing.T) {
	setupEnv(t)
	t.Setenv("SF_CLIENT_SECRET", "wrong")

	_, err := run(t, "", "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_client")
}

func TestSOQL(t *testing.T) {
	srv := setupEnv(t)
	srv.Seed("Account", sftest.Record{"Name": "Acme"})

	out, err := run(t, "", "soql", "SELECT Id, Name FROM Account")
	require.NoError(t, err)
	assert.Contains(t, out, `"Name": "Acme"`)
}

func TestQuery_WritesCSVAndRecordsHistory(t *testing.T) {
	srv := setupEnv(t)
	srv.PageSize = 1
	srv.Seed("Account", sftest.Record{"Name": "A"}, sftest.Record{"Name": "B"})

	out, err := run(t, "", "query", "SELECT Name FROM Account")
	require.NoError(t, err)
	assert.Equal(t, "Name\nA\nB\n", out)

	jobs, err := run(t, "", "jobs")
	require.NoError(t, err)
	assert.Contains(t, jobs, "JobComplete")
	assert.Contains(t, jobs, "query")
}

func TestQuery_FormatDictToFile(t *testing.T) {
	srv := setupEnv(t)
	srv.Seed("Account", sftest.Record{"Name": "A"})
	path := filepath.Join(t.TempDir(), "out.json")

	_, err := run(t, "", "query", "SELECT Name FROM Account", "--format", "dict", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Name": "A"`)
}

func TestQuery_UnsupportedFormat(t *testing.T) {
	srv := setupEnv(t)

	_, err := run(t, "", "query", "SELECT Name FROM Account", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Allowed formats are: dict, reader, csv")
	assert.Zero(t, srv.Requests())
}

func TestIngest_InsertFromStdinWithFailures(t *testing.T) {
	srv := setupEnv(t)
	failedPath := filepath.Join(t.TempDir(), "failed.csv")

	out, err := run(t, "Name\nGood\nFAIL\n", "ingest", "insert", "--object", "Account", "--failed-out", failedPath)
	require.NoError(t, err)
	assert.Contains(t, out, "JobComplete: processed=2 failed=1")
	assert.Len(t, srv.Records("Account"), 1)

	failed, err := os.ReadFile(failedPath)
	require.NoError(t, err)
	assert.Contains(t, string(failed), "sf__Error")
	assert.Contains(t, string(failed), "FAIL")
}

func TestIngest_FailedJobIsAnError(t *testing.T) {
	srv := setupEnv(t)
	srv.FailNextJob("InvalidBatch : bad column")
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name\nA\n"), 0o600))

	_, err := run(t, "", "ingest", "insert", "--object", "Account", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad column")
}

func TestIngest_UpsertWithoutExternalID(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "Name\nA\n", "ingest", "upsert", "--object", "Account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external id")
}

func TestIngest_UnknownOperation(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "", "ingest", "merge", "--object", "Account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge")
}

func TestJobs_HistoryDisabled(t *testing.T) {
	setupEnv(t)
	t.Setenv("SF_HISTORY_DB", "off")

	_, err := run(t, "", "jobs")
	require.ErrorIs(t, err, errHistoryDisabled)
}
