package report

import (
	"fmt"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

// Summary is the one line description shown for the run.
func Summary(run *models.RunResult) string {
	if !run.Success {
		return "Chef run failed"
	}
	count := len(run.UpdatedResources)
	word := "resources"
	if count == 1 {
		word = "resource"
	}
	return fmt.Sprintf("Chef updated %d %s", count, word)
}

// BuildEvent converts a run into the collector payload.
func BuildEvent(run *models.RunResult, subject string) models.ReportEvent {
	status := models.StatusFailure
	if run.Success {
		status = models.StatusSuccess
	}

	updated := make([]models.ResourceChange, 0, len(run.UpdatedResources))
	updated = append(updated, run.UpdatedResources...)

	event := models.ReportEvent{
		Timestamp:   run.EndTime.Unix(),
		Source:      models.EventSource,
		SubjectType: models.EventSubjectType,
		Subject:     subject,
		Category:    models.EventCategory,
		Type:        models.EventType,
		Summary:     Summary(run),
		Data: models.EventData{
			Status:           status,
			StartTime:        run.StartTime.Unix(),
			EndTime:          run.EndTime.Unix(),
			Duration:         run.Elapsed.Seconds(),
			UpdatedResources: updated,
		},
	}
	if run.Exception != "" {
		event.Data.Exception = SanitizeText(run.Exception)
	}
	return event
}

// SanitizeText replaces every ill-formed UTF-8 sequence with U+FFFD.
// ReplaceIllFormed never fails on in-memory input.
func SanitizeText(s string) string {
	clean, _, _ := transform.String(runes.ReplaceIllFormed(), s)
	return clean
}
