package target

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry is the list of monitored pages, backed by a YAML (or JSON) file
// holding a sequence of {url, label} objects.
type Registry struct {
	mu      sync.RWMutex
	path    string
	targets []Target
}

// NewRegistry creates an in-memory registry from the given targets.
func NewRegistry(targets ...Target) *Registry {
	r := &Registry{}
	for _, t := range targets {
		_ = r.add(t)
	}
	return r
}

// LoadRegistry reads a sites file. A missing file yields an empty registry
// that Save will create.
func LoadRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sites file: %w", err)
	}

	var sites []Target
	if err := yaml.Unmarshal(raw, &sites); err != nil {
		return nil, fmt.Errorf("parse sites file %s: %w", path, err)
	}

	for i, s := range sites {
		t, err := New(s.URL, s.Label)
		if err != nil {
			return nil, fmt.Errorf("site %d in %s: %w", i, path, err)
		}
		_ = r.add(t)
	}
	return r, nil
}

// List returns a copy of all targets in file order.
func (r *Registry) List() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Lookup finds a target by id.
func (r *Registry) Lookup(id string) (Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.targets {
		if t.ID == id {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
}

// Resolve accepts either an id or a url that is registered.
func (r *Registry) Resolve(idOrURL string) (Target, error) {
	if t, err := r.Lookup(idOrURL); err == nil {
		return t, nil
	}
	id, err := ID(idOrURL)
	if err != nil {
		return Target{}, err
	}
	return r.Lookup(id)
}

// Add registers a new target. It reports false if the url was already present.
func (r *Registry) Add(url, label string) (Target, bool, error) {
	t, err := New(url, label)
	if err != nil {
		return Target{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return t, r.add(t), nil
}

func (r *Registry) add(t Target) bool {
	for _, existing := range r.targets {
		if existing.ID == t.ID {
			return false
		}
	}
	r.targets = append(r.targets, t)
	return true
}

// Save writes the registry back to the file it was loaded from.
func (r *Registry) Save() error {
	if r.path == "" {
		return errors.New("registry has no backing file")
	}

	r.mu.RLock()
	out, err := yaml.Marshal(r.targets)
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode sites: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sites dir: %w", err)
		}
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write sites file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace sites file: %w", err)
	}
	return nil
}
