package backend

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/kevmodo/triton-go/pkg/modelconfig"
)

// Model is the backend's view of one loaded model version: the parsed and
// validated configuration plus whatever state the backend attached during
// ModelInitialize. It lives from ModelInitialize to ModelFinalize.
type Model struct {
	ctx        *Context
	name       string
	version    int64
	repository string
	cfg        *modelconfig.Config

	mu        sync.Mutex
	state     any
	finalized bool
}

func newModel(ctx *Context, hm HostModel) (*Model, error) {
	doc, err := hm.ConfigDocument()
	if err != nil {
		return nil, ErrConfiguration("model %q: reading configuration: %v", hm.Name(), err)
	}
	cfg, err := modelconfig.Parse(doc)
	if err != nil {
		return nil, ErrConfiguration("model %q: %v", hm.Name(), err)
	}
	return &Model{
		ctx:        ctx,
		name:       hm.Name(),
		version:    hm.Version(),
		repository: hm.Repository(),
		cfg:        cfg,
	}, nil
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Version returns the loaded model version.
func (m *Model) Version() int64 { return m.version }

// Repository returns the model's artifact directory.
func (m *Model) Repository() string { return m.repository }

// Config returns the parsed model configuration. Callers must not mutate it.
func (m *Model) Config() *modelconfig.Config { return m.cfg }

// Context returns the process-wide backend context.
func (m *Model) Context() *Context { return m.ctx }

// SetState attaches backend-defined per-model state.
func (m *Model) SetState(state any) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// State returns the state attached by SetState, or nil.
func (m *Model) State() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ArtifactPath resolves a file under the model's versioned artifact
// directory: <repository>/<version>/<filename>.
func (m *Model) ArtifactPath(filename string) string {
	return filepath.Join(m.repository, strconv.FormatInt(m.version, 10), filename)
}

// LoadArtifact reads a versioned model artifact.
func (m *Model) LoadArtifact(filename string) ([]byte, error) {
	return os.ReadFile(m.ArtifactPath(filename))
}

func (m *Model) markFinalized() {
	m.mu.Lock()
	m.finalized = true
	m.state = nil
	m.mu.Unlock()
}

func (m *Model) isFinalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}
