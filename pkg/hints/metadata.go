package hints

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

const (
	metadataDir        = "user_data/metadata"
	attributesFilename = "chef_attributes.json"
	cookbooksFilename  = "chef_cookbooks.json"

	// CategoryField is injected into every metadata file.
	CategoryField = "opsmatic_event_category"
)

func (w *Writer) AttributesPath() string {
	return filepath.Join(w.agentDir, metadataDir, attributesFilename)
}

func (w *Writer) CookbooksPath() string {
	return filepath.Join(w.agentDir, metadataDir, cookbooksFilename)
}

// WriteAttributes writes the node attribute tree without the automatic
// (ohai discovered) attributes.
func (w *Writer) WriteAttributes(node *models.Node) error {
	if node == nil {
		return fmt.Errorf("no node data in run")
	}
	doc := make(map[string]any, len(node.Attributes)+1)
	for k, v := range node.Attributes {
		if k == "automatic" {
			continue
		}
		doc[k] = v
	}
	doc[CategoryField] = models.EventCategory

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to prepare node data: %w", err)
	}
	return w.writeMetadata(w.AttributesPath(), payload)
}

// WriteCookbooks writes the cookbook name to resolved version map.
func (w *Writer) WriteCookbooks(cookbooks map[string]string) error {
	doc := make(map[string]string, len(cookbooks)+1)
	for name, version := range cookbooks {
		doc[name] = version
	}
	doc[CategoryField] = models.EventCategory

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to prepare cookbook data: %w", err)
	}
	return w.writeMetadata(w.CookbooksPath(), payload)
}

func (w *Writer) writeMetadata(filename string, payload []byte) error {
	dir := filepath.Dir(filename)
	if err := w.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := afero.WriteFile(w.fs, filename, payload, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}
