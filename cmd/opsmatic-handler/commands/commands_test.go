package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opsmatic "github.com/opsmatic/opsmatic-handler"
	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

const runStatusFixture = "../../../pkg/chef/testdata/run_status.json"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile, verbose = "", false
	runStatusFile, dryRun, outputFormat = "", false, "json"
	for _, env := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy", "MOCK_OPSMATIC_COLLECTOR"} {
		t.Setenv(env, "")
	}

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(io.Discard)
	RootCmd.SetArgs(args)
	err := RootCmd.Execute()
	logrus.SetLevel(logrus.InfoLevel)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, opsmatic.Version+"\n", out)
}

func TestReportDryRunJSON(t *testing.T) {
	out, err := execute(t, "report", "--run-status", runStatusFixture, "--dry-run")
	require.NoError(t, err)

	var event models.ReportEvent
	require.NoError(t, json.Unmarshal([]byte(out), &event))
	assert.Equal(t, "foo.example.com", event.Subject)
	assert.Equal(t, "Chef updated 2 resources", event.Summary)
	assert.Equal(t, "success", event.Data.Status)
	assert.Equal(t, 100.5, event.Data.Duration)
	assert.Len(t, event.Data.UpdatedResources, 2)
}

func TestReportDryRunYAML(t *testing.T) {
	out, err := execute(t, "report", "--run-status", runStatusFixture, "--dry-run", "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "subject: foo.example.com")

	var event models.ReportEvent
	require.NoError(t, yaml.Unmarshal([]byte(out), &event))
	assert.Equal(t, "cm/chef", event.Type)
}

func TestReportDryRunWritesNothing(t *testing.T) {
	agentDir := t.TempDir()
	t.Setenv("OPSMATIC_AGENT_DIR", agentDir)
	t.Setenv("OPSMATIC_INTEGRATION_TOKEN", "secret")

	_, err := execute(t, "report", "--run-status", runStatusFixture, "--dry-run")
	require.NoError(t, err)

	entries, err := os.ReadDir(agentDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReportUnsupportedOutput(t *testing.T) {
	_, err := execute(t, "report", "--run-status", runStatusFixture, "--dry-run", "--output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestReportMissingDocumentStillSucceeds(t *testing.T) {
	hook := logtest.NewGlobal()

	_, err := execute(t, "report", "--run-status", filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "Unable to load Chef run status")
}

func TestReportPostsAndWritesHints(t *testing.T) {
	var received models.ReportEvent
	var token string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.URL.Query().Get("token")
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	agentDir := t.TempDir()
	t.Setenv("OPSMATIC_INTEGRATION_TOKEN", "secret")
	t.Setenv("OPSMATIC_COLLECTOR_URL", server.URL+"/webhooks/events/chef")
	t.Setenv("OPSMATIC_AGENT_DIR", agentDir)
	hook := logtest.NewGlobal()

	_, err := execute(t, "report", "--run-status", runStatusFixture)
	require.NoError(t, err)

	assert.Equal(t, "secret", token)
	assert.Equal(t, "foo.example.com", received.Subject)
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, entry.Level, entry.Message)
		assert.NotContains(t, entry.Message, "secret")
	}

	watchList, err := os.ReadFile(filepath.Join(agentDir, "external.d", "chef_resources.json"))
	require.NoError(t, err)
	for _, path := range []string{"/etc/nginx/nginx.conf", "/etc/motd", "/opt/app.tar.gz"} {
		assert.True(t, strings.Contains(string(watchList), path), path)
	}
	assert.FileExists(t, filepath.Join(agentDir, "user_data", "metadata", "chef_attributes.json"))
	assert.FileExists(t, filepath.Join(agentDir, "user_data", "metadata", "chef_cookbooks.json"))
}

func TestReportCollectorDownStillSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	t.Setenv("OPSMATIC_INTEGRATION_TOKEN", "secret")
	t.Setenv("OPSMATIC_COLLECTOR_URL", server.URL)
	t.Setenv("OPSMATIC_AGENT_DIR", t.TempDir())
	hook := logtest.NewGlobal()

	_, err := execute(t, "report", "--run-status", runStatusFixture)
	require.NoError(t, err)

	var warnings []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry.Message)
		}
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "500")
}

func TestReportBinaryExceptionFromStdin(t *testing.T) {
	var received models.ReportEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	t.Setenv("OPSMATIC_INTEGRATION_TOKEN", "secret")
	t.Setenv("OPSMATIC_COLLECTOR_URL", server.URL)
	t.Setenv("OPSMATIC_AGENT_DIR", t.TempDir())
	hook := logtest.NewGlobal()

	RootCmd.SetIn(strings.NewReader("{\"success\": false, \"end_time\": 1700000000, \"exception\": \"Exception with a binary char \xA9\", \"node\": {\"fqdn\": \"foo.example.com\"}}"))
	defer RootCmd.SetIn(nil)
	_, err := execute(t, "report", "--run-status", "-")
	require.NoError(t, err)

	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, entry.Level, entry.Message)
	}
	assert.Equal(t, "Chef run failed", received.Summary)
	assert.Equal(t, "failure", received.Data.Status)
	assert.Equal(t, "Exception with a binary char \uFFFD", received.Data.Exception)
}
