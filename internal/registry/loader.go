package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/wenc23/zimagetool/internal/common/fsutil"
	"github.com/wenc23/zimagetool/pkg/types"
)

// indexFile marks a directory as a diffusers-style pipeline folder.
const indexFile = "model_index.json"

// Scanner discovers model folders under a directory.
type Scanner interface {
	Scan(dir string) ([]types.Model, error)
}

// DiffusersScanner lists immediate subdirectories that carry a model_index.json.
type DiffusersScanner struct{}

func NewDiffusersScanner() *DiffusersScanner { return &DiffusersScanner{} }

func (DiffusersScanner) Scan(dir string) ([]types.Model, error) {
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(abs, e.Name())
		cls, ok := readPipelineClass(p)
		if !ok {
			continue
		}
		models = append(models, types.Model{ID: e.Name(), Path: p, Pipeline: cls})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with the default scanner. A missing directory yields an
// empty list so a daemon configured with only a model path still starts.
func LoadDir(dir string) ([]types.Model, error) {
	if dir == "" {
		return nil, nil
	}
	abs, err := fsutil.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if !fsutil.PathExists(abs) {
		return nil, nil
	}
	return NewDiffusersScanner().Scan(abs)
}

// Lookup resolves ref against the registry: a matching id wins, otherwise
// ref is treated as a filesystem path.
func Lookup(models []types.Model, ref string) (string, error) {
	for _, m := range models {
		if m.ID == ref {
			return m.Path, nil
		}
	}
	return fsutil.Resolve(ref)
}

func readPipelineClass(dir string) (string, bool) {
	b, err := os.ReadFile(filepath.Join(dir, indexFile))
	if err != nil {
		return "", false
	}
	var idx struct {
		Class string `json:"_class_name"`
	}
	// a malformed index still marks the folder as a model
	_ = json.Unmarshal(b, &idx)
	return idx.Class, true
}
