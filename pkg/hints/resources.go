package hints

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/opsmatic/opsmatic-handler/pkg/models"
)

const (
	externalDir       = "external.d"
	resourcesFilename = "chef_resources.json"
)

// ErrAgentDirMissing means the agent is not installed on this host, so
// there is nobody to read the hints.
var ErrAgentDirMissing = errors.New("agent directory does not exist")

// WatchSet is the set of paths hinted to the agent, keyed by path.
type WatchSet map[string]struct{}

// Paths returns the paths in lexical order.
func (s WatchSet) Paths() []string {
	paths := lo.Keys(s)
	sort.Strings(paths)
	return paths
}

// WatchList converts the set to the agent's file format.
func (s WatchSet) WatchList() models.WatchList {
	return models.WatchList{
		Files: lo.Map(s.Paths(), func(p string, _ int) models.WatchedFile {
			return models.WatchedFile{Path: p}
		}),
	}
}

// CollectWatchFiles returns the distinct paths of every resource that has a
// watchable path and whose type is in kinds.
func CollectWatchFiles(resources []models.Resource, kinds []string) WatchSet {
	set := WatchSet{}
	for _, resource := range resources {
		if !lo.Contains(kinds, resource.ResourceType) {
			continue
		}
		if path, ok := resource.WatchablePath(); ok {
			set[path] = struct{}{}
		}
	}
	return set
}

// Writer drops hint files into the agent directory.
type Writer struct {
	fs       afero.Fs
	agentDir string
}

func NewWriter(fs afero.Fs, agentDir string) *Writer {
	return &Writer{fs: fs, agentDir: agentDir}
}

// ResourcesPath is where the watch list is written.
func (w *Writer) ResourcesPath() string {
	return filepath.Join(w.agentDir, externalDir, resourcesFilename)
}

// WriteWatchList overwrites external.d/chef_resources.json with the set.
// It returns ErrAgentDirMissing when the agent directory is absent.
func (w *Writer) WriteWatchList(set WatchSet) error {
	exists, err := afero.DirExists(w.fs, w.agentDir)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", w.agentDir, err)
	}
	if !exists {
		return ErrAgentDirMissing
	}

	payload, err := json.Marshal(set.WatchList())
	if err != nil {
		return fmt.Errorf("failed to marshal watch list: %w", err)
	}

	dataDir := filepath.Join(w.agentDir, externalDir)
	if err := w.fs.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dataDir, err)
	}
	if err := afero.WriteFile(w.fs, w.ResourcesPath(), payload, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.ResourcesPath(), err)
	}
	return nil
}
