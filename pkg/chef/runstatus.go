package chef

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

// StdinPath tells Load to read the document from stdin.
const StdinPath = "-"

// runStatusDocument is the run status hash Chef's JSON report handler
// writes, plus the resolved cookbook versions.
type runStatusDocument struct {
	Success          bool               `json:"success"`
	StartTime        timestamp          `json:"start_time"`
	EndTime          timestamp          `json:"end_time"`
	ElapsedTime      *float64           `json:"elapsed_time"`
	Exception        string             `json:"exception"`
	Node             json.RawMessage    `json:"node"`
	UpdatedResources []resourceDocument `json:"updated_resources"`
	AllResources     []resourceDocument `json:"all_resources"`
	Cookbooks        map[string]string  `json:"cookbooks"`
}

type resourceDocument struct {
	ResourceType string `json:"resource_type"`
	ResourceName string `json:"resource_name"`
	Name         string `json:"name"`
	CookbookName string `json:"cookbook_name"`
	RecipeName   string `json:"recipe_name"`
	Action       action `json:"action"`
	Path         string `json:"path"`
}

// kind prefers resource_type; older documents only carry resource_name.
func (r resourceDocument) kind() string {
	if r.ResourceType != "" {
		return r.ResourceType
	}
	return r.ResourceName
}

// action is a single action or a list of them.
type action string

func (a *action) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = action(single)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("action must be a string or a list of strings: %w", err)
	}
	*a = action(strings.Join(list, ","))
	return nil
}

// timestamp accepts unix seconds, RFC 3339, or Ruby's Time#to_s format.
type timestamp struct {
	time.Time
}

const rubyTimeLayout = "2006-01-02 15:04:05 -0700"

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(b, &seconds); err == nil {
		whole, frac := math.Modf(seconds)
		t.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("invalid timestamp %s", b)
	}
	for _, layout := range []string{time.RFC3339Nano, rubyTimeLayout} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// Load reads a run status document from path, or from stdin when path is
// StdinPath. JSON and YAML are both accepted.
func Load(fs afero.Fs, path string, stdin io.Reader) (*models.RunResult, error) {
	var data []byte
	var err error
	if path == StdinPath {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = afero.ReadFile(fs, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run status %s: %w", path, err)
	}
	return Parse(data)
}

// Parse converts a run status document into a RunResult.
func Parse(data []byte) (*models.RunResult, error) {
	// Exceptions may carry raw non UTF-8 bytes, which the YAML parser rejects.
	// ReplaceIllFormed never fails on in-memory input.
	clean, _, _ := transform.Bytes(runes.ReplaceIllFormed(), data)

	var doc runStatusDocument
	if err := yaml.Unmarshal(clean, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse run status: %w", err)
	}

	run := &models.RunResult{
		Success:          doc.Success,
		StartTime:        doc.StartTime.Time,
		EndTime:          doc.EndTime.Time,
		Exception:        doc.Exception,
		Cookbooks:        doc.Cookbooks,
		UpdatedResources: make([]models.ResourceChange, 0, len(doc.UpdatedResources)),
		AllResources:     make([]models.Resource, 0, len(doc.AllResources)),
	}

	switch {
	case doc.ElapsedTime != nil:
		run.Elapsed = time.Duration(*doc.ElapsedTime * float64(time.Second))
	case !run.StartTime.IsZero() && !run.EndTime.IsZero():
		run.Elapsed = run.EndTime.Sub(run.StartTime)
	}

	for _, r := range doc.UpdatedResources {
		run.UpdatedResources = append(run.UpdatedResources, models.ResourceChange{
			CookbookName: r.CookbookName,
			RecipeName:   r.RecipeName,
			Action:       string(r.Action),
			Name:         r.Name,
			ResourceType: r.kind(),
		})
	}
	for _, r := range doc.AllResources {
		run.AllResources = append(run.AllResources, models.Resource{
			ResourceType: r.kind(),
			Name:         r.Name,
			CookbookName: r.CookbookName,
			RecipeName:   r.RecipeName,
			Path:         r.Path,
		})
	}

	attrs, err := nodeAttributes(doc.Node)
	if err != nil {
		return nil, err
	}
	if attrs != nil {
		run.Node = nodeFromAttributes(attrs)
	}
	return run, nil
}

// nodeAttributes decodes the node tree keeping numbers as json.Number, so
// large integers are written back unchanged.
func nodeAttributes(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var attrs map[string]any
	if err := decoder.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("failed to parse node: %w", err)
	}
	return attrs, nil
}

func nodeFromAttributes(attrs map[string]any) *models.Node {
	node := &models.Node{Attributes: attrs}
	node.Name, _ = attrs["name"].(string)
	if automatic, ok := attrs["automatic"].(map[string]any); ok {
		node.FQDN, _ = automatic["fqdn"].(string)
	}
	if node.FQDN == "" {
		node.FQDN, _ = attrs["fqdn"].(string)
	}
	return node
}
