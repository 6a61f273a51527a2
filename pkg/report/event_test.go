package report

import (
	"encoding/json"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

func changes(n int) []models.ResourceChange {
	out := make([]models.ResourceChange, n)
	for i := range out {
		out[i] = models.ResourceChange{ResourceType: "template", Name: "r", Action: "create"}
	}
	return out
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name     string
		run      models.RunResult
		expected string
	}{
		{"none", models.RunResult{Success: true}, "Chef updated 0 resources"},
		{"one", models.RunResult{Success: true, UpdatedResources: changes(1)}, "Chef updated 1 resource"},
		{"many", models.RunResult{Success: true, UpdatedResources: changes(3)}, "Chef updated 3 resources"},
		{"failed", models.RunResult{Success: false, UpdatedResources: changes(2)}, "Chef run failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Summary(&tt.run))
		})
	}
}

func TestBuildEvent(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &models.RunResult{
		Success:          true,
		StartTime:        start,
		EndTime:          start.Add(90 * time.Second),
		Elapsed:          90500 * time.Millisecond,
		UpdatedResources: changes(2),
	}

	event := BuildEvent(run, "foo.example.com")
	assert.Equal(t, start.Add(90*time.Second).Unix(), event.Timestamp)
	assert.Equal(t, "chef_raw", event.Source)
	assert.Equal(t, "hostname", event.SubjectType)
	assert.Equal(t, "foo.example.com", event.Subject)
	assert.Equal(t, "automation", event.Category)
	assert.Equal(t, "cm/chef", event.Type)
	assert.Equal(t, "Chef updated 2 resources", event.Summary)
	assert.Equal(t, "success", event.Data.Status)
	assert.Equal(t, start.Unix(), event.Data.StartTime)
	assert.Equal(t, 90.5, event.Data.Duration)
	assert.Len(t, event.Data.UpdatedResources, 2)
	assert.Empty(t, event.Data.Exception)
}

func TestBuildEventFailedRunWithBinaryException(t *testing.T) {
	run := &models.RunResult{
		Success:   false,
		Exception: "Exception with a binary char \xA9",
	}

	event := BuildEvent(run, "foo.example.com")
	assert.Equal(t, "failure", event.Data.Status)
	assert.Equal(t, "Chef run failed", event.Summary)
	assert.Equal(t, "Exception with a binary char \uFFFD", event.Data.Exception)
	assert.NotNil(t, event.Data.UpdatedResources)

	b, err := json.Marshal(event)
	require.NoError(t, err)
	assert.True(t, utf8.Valid(b))
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "plain ascii", SanitizeText("plain ascii"))
	assert.Equal(t, "café", SanitizeText("café"))
	assert.Equal(t, "a\uFFFDb", SanitizeText("a\xffb"))
	assert.True(t, utf8.ValidString(SanitizeText("\xc3\x28 \xe2\x82")))
}
