// Package hostsim is an in-process stand-in for the serving host: it scans
// a model repository, builds the opaque handles the backend contract
// expects, and drives a backend's entry points through the full lifecycle.
// Tests and the backendctl tool use it to exercise a backend without a
// real host.
package hostsim

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevmodo/triton-go/pkg/modelconfig"
)

// configNames are probed in order inside each model directory.
var configNames = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// Entry is one model found in a repository. A broken model carries its
// load error here instead of failing the whole scan: one bad model must
// not take its siblings down.
type Entry struct {
	Name       string
	Dir        string
	ConfigPath string
	Config     *modelconfig.Config
	Versions   []int64
	Err        error
}

// LatestVersion returns the highest version directory, or 1 when the model
// keeps no versioned subdirectories.
func (e *Entry) LatestVersion() int64 {
	if len(e.Versions) == 0 {
		return 1
	}
	return e.Versions[len(e.Versions)-1]
}

// Repository is a scanned model repository: one subdirectory per model,
// each holding a config file and optional numeric version directories.
type Repository struct {
	root    string
	entries map[string]*Entry
	names   []string
}

// Scan reads a model repository directory. A leading '~' in the root is
// expanded to the user's home directory. Per-model problems (missing or
// malformed config) are recorded on the entry; only an unreadable root is
// a scan error.
func Scan(root string) (*Repository, error) {
	root, err := expandHome(root)
	if err != nil {
		return nil, fmt.Errorf("repository path: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("repository path: %w", err)
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read repository: %w", err)
	}
	repo := &Repository{root: abs, entries: map[string]*Entry{}}
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		e := scanModel(abs, de.Name())
		repo.entries[e.Name] = e
		repo.names = append(repo.names, e.Name)
	}
	sort.Strings(repo.names)
	return repo, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

func scanModel(root, name string) *Entry {
	dir := filepath.Join(root, name)
	e := &Entry{Name: name, Dir: dir}

	for _, cn := range configNames {
		p := filepath.Join(dir, cn)
		if _, err := os.Stat(p); err == nil {
			e.ConfigPath = p
			break
		}
	}
	if e.ConfigPath == "" {
		e.Err = fmt.Errorf("model %q: no config file (tried %v)", name, configNames)
		return e
	}
	cfg, err := modelconfig.Load(e.ConfigPath)
	if err != nil {
		e.Err = err
		return e
	}
	if cfg.Name != name {
		e.Err = fmt.Errorf("model directory %q declares name %q", name, cfg.Name)
		return e
	}
	e.Config = cfg

	// version directories are numeric subdirectories, sorted ascending
	dirents, err := os.ReadDir(dir)
	if err != nil {
		e.Err = err
		return e
	}
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		if v, err := strconv.ParseInt(de.Name(), 10, 64); err == nil && v > 0 {
			e.Versions = append(e.Versions, v)
		}
	}
	sort.Slice(e.Versions, func(i, j int) bool { return e.Versions[i] < e.Versions[j] })
	return e
}

// Root returns the absolute repository root.
func (r *Repository) Root() string { return r.root }

// Names lists model names in sorted order, broken entries included.
func (r *Repository) Names() []string { return r.names }

// Entries lists all scanned models in name order.
func (r *Repository) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.entries[n])
	}
	return out
}

// Model resolves one loadable model. A scanned-but-broken model returns
// its recorded load error.
func (r *Repository) Model(name string) (*Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("model %q not in repository %s", name, r.root)
	}
	if e.Err != nil {
		return nil, e.Err
	}
	return e, nil
}
