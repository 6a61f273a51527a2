package models

import (
	"time"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	EventSource      = "chef_raw"
	EventSubjectType = "hostname"
	EventCategory    = "automation"
	EventType        = "cm/chef"
)

// Resource types that carry a filesystem path worth watching.
const (
	ResourceTypeTemplate     = "template"
	ResourceTypeCookbookFile = "cookbook_file"
	ResourceTypeRemoteFile   = "remote_file"
	ResourceTypeFile         = "file"
)

// RunResult is the outcome of a single provisioning run.
type RunResult struct {
	Success          bool
	StartTime        time.Time
	EndTime          time.Time
	Elapsed          time.Duration
	UpdatedResources []ResourceChange
	Exception        string
	AllResources     []Resource
	Node             *Node
	Cookbooks        map[string]string
}

// ResourceChange describes a resource the run updated.
type ResourceChange struct {
	CookbookName string `json:"cookbook_name"`
	RecipeName   string `json:"recipe_name"`
	Action       string `json:"action"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// Resource is any resource declared in the run, changed or not.
type Resource struct {
	ResourceType string `json:"resource_type"`
	Name         string `json:"name"`
	CookbookName string `json:"cookbook_name,omitempty"`
	RecipeName   string `json:"recipe_name,omitempty"`
	Path         string `json:"path,omitempty"`
}

// WatchablePath returns the path the local agent could watch for this
// resource, if it has one.
func (r Resource) WatchablePath() (string, bool) {
	if r.Path == "" {
		return "", false
	}
	return r.Path, true
}

// Node is the host the run converged.
type Node struct {
	Name       string
	FQDN       string
	Attributes map[string]any
}

// ReportEvent is the payload posted to the collector.
type ReportEvent struct {
	Timestamp   int64     `json:"timestamp"`
	Source      string    `json:"source"`
	SubjectType string    `json:"subject_type"`
	Subject     string    `json:"subject"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Summary     string    `json:"summary"`
	Data        EventData `json:"data"`
}

type EventData struct {
	Status           string           `json:"status"`
	StartTime        int64            `json:"start_time"`
	EndTime          int64            `json:"end_time"`
	Duration         float64          `json:"duration"`
	UpdatedResources []ResourceChange `json:"updated_resources"`
	Exception        string           `json:"exception,omitempty"`
}

// WatchList is the file hint consumed by the agent.
type WatchList struct {
	Files []WatchedFile `json:"files"`
}

type WatchedFile struct {
	Path string `json:"path"`
}
