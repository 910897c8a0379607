package hostsim

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gammazero/workerpool"

	"github.com/kevmodo/triton-go/pkg/backend"
	"github.com/kevmodo/triton-go/pkg/modelconfig"
)

// Options tune the simulated host.
type Options struct {
	// LogSink receives the backend's log records; nil lets the backend
	// fall back to stderr.
	LogSink io.Writer
	// APIVersion overrides the contract version the host reports, for
	// version-mismatch scenarios. Zero value reports the current version.
	APIVersion backend.APIVersion
	// Parameters are backend-level settings handed over at Initialize.
	Parameters map[string]string
	// ConcurrentWorkers is the per-instance dispatch width for models that
	// declare concurrent execution. Defaults to 4. Models that do not
	// declare it always get a single-worker dispatcher: the host's
	// serialization guarantee.
	ConcurrentWorkers int
}

// hostInfo implements backend.HostBackend.
type hostInfo struct {
	name string
	opts Options
}

func (hi *hostInfo) Name() string { return hi.name }

func (hi *hostInfo) APIVersion() backend.APIVersion {
	if hi.opts.APIVersion == (backend.APIVersion{}) {
		return backend.CurrentAPIVersion
	}
	return hi.opts.APIVersion
}

func (hi *hostInfo) Parameters() map[string]string { return hi.opts.Parameters }
func (hi *hostInfo) LogSink() io.Writer            { return hi.opts.LogSink }

// runner is one model instance plus the worker pool that feeds it. The
// pool is the host-side scheduling policy: one worker serializes execute
// calls, several permit them to overlap.
type runner struct {
	inst *backend.Instance
	pool *workerpool.WorkerPool
}

type loadedModel struct {
	entry   *Entry
	model   *backend.Model
	runners []*runner
	next    atomic.Uint64

	// mu keeps Unload from stopping the worker pools while an Infer holds
	// a runner: dispatch runs under the read side, teardown takes the
	// write side and flips closed first.
	mu     sync.RWMutex
	closed bool
}

func (lm *loadedModel) pick() *runner {
	n := lm.next.Add(1)
	return lm.runners[int(n-1)%len(lm.runners)]
}

// Host drives one backend through the plugin lifecycle the way a serving
// process would: initialize once, load models and their instances from a
// repository, dispatch inference, unload in reverse.
type Host struct {
	repo *Repository
	opts Options
	ep   *backend.EntryPoints

	mu      sync.Mutex
	loaded  map[string]*loadedModel
	started bool
}

// New builds a host over a scanned repository.
func New(repo *Repository, opts Options) *Host {
	if opts.ConcurrentWorkers <= 0 {
		opts.ConcurrentWorkers = 4
	}
	return &Host{repo: repo, opts: opts, loaded: map[string]*loadedModel{}}
}

// Start loads the backend: the library-load plus Initialize step.
func (h *Host) Start(backendName string, b backend.Backend) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return fmt.Errorf("host already started")
	}
	ep := backend.NewEntryPoints(b)
	if err := ep.Initialize(&hostInfo{name: backendName, opts: h.opts}); err != nil {
		return err
	}
	h.ep = ep
	h.started = true
	return nil
}

// EntryPoints exposes the backend surface, e.g. for tests inspecting the
// backend context or metrics.
func (h *Host) EntryPoints() *backend.EntryPoints { return h.ep }

// Repository returns the scanned model repository.
func (h *Host) Repository() *Repository { return h.repo }

// Instances lists the live instances of a loaded model.
func (h *Host) Instances(modelName string) []*backend.Instance {
	h.mu.Lock()
	defer h.mu.Unlock()
	lm, ok := h.loaded[modelName]
	if !ok {
		return nil
	}
	out := make([]*backend.Instance, len(lm.runners))
	for i, rn := range lm.runners {
		out[i] = rn.inst
	}
	return out
}

// Load initializes a model and every instance its configuration declares.
// A failure rolls back whatever was already created for this model and
// leaves other loaded models untouched.
func (h *Host) Load(modelName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return fmt.Errorf("host not started")
	}
	if _, dup := h.loaded[modelName]; dup {
		return fmt.Errorf("model %q already loaded", modelName)
	}
	entry, err := h.repo.Model(modelName)
	if err != nil {
		return err
	}
	m, err := h.ep.ModelInitialize(&simModel{entry: entry, version: entry.LatestVersion()})
	if err != nil {
		return err
	}
	lm := &loadedModel{entry: entry, model: m}
	if err := h.createInstances(lm); err != nil {
		h.destroyInstances(lm)
		_ = h.ep.ModelFinalize(m)
		return err
	}
	h.loaded[modelName] = lm
	return nil
}

func (h *Host) createInstances(lm *loadedModel) error {
	cfg := lm.model.Config()
	idx := 0
	for _, group := range cfg.Instances {
		for c := 0; c < group.Count; c++ {
			device := 0
			if group.Kind == modelconfig.KindGPU && len(group.DeviceIDs) > 0 {
				device = group.DeviceIDs[c%len(group.DeviceIDs)]
			}
			si := &simInstance{
				name:   fmt.Sprintf("%s_%d", lm.model.Name(), idx),
				kind:   group.Kind,
				device: device,
			}
			inst, err := h.ep.ModelInstanceInitialize(lm.model, si)
			if err != nil {
				return err
			}
			workers := 1
			if cfg.ConcurrentExecution {
				workers = h.opts.ConcurrentWorkers
			}
			lm.runners = append(lm.runners, &runner{inst: inst, pool: workerpool.New(workers)})
			idx++
		}
	}
	return nil
}

func (h *Host) destroyInstances(lm *loadedModel) {
	for i := len(lm.runners) - 1; i >= 0; i-- {
		lm.runners[i].pool.StopWait()
		_ = h.ep.ModelInstanceFinalize(lm.runners[i].inst)
	}
	lm.runners = nil
}

// Infer dispatches one batch of requests to an instance of the model,
// round robin across replicas, and waits for the batch to resolve. Every
// request carries its own outcome afterwards; the returned error is the
// batch-level failure, if any.
func (h *Host) Infer(modelName string, reqs []*Request) error {
	h.mu.Lock()
	lm, ok := h.loaded[modelName]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("model %q not loaded", modelName)
	}
	hostReqs := make([]backend.HostRequest, len(reqs))
	for i, r := range reqs {
		hostReqs[i] = r
	}
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	if lm.closed {
		return fmt.Errorf("model %q not loaded", modelName)
	}
	rn := lm.pick()
	var execErr error
	rn.pool.SubmitWait(func() {
		execErr = h.ep.ModelInstanceExecute(rn.inst, hostReqs)
	})
	return execErr
}

// Unload drains and destroys a model's instances, then finalizes the
// model. Mirrors load order in reverse.
func (h *Host) Unload(modelName string) error {
	h.mu.Lock()
	lm, ok := h.loaded[modelName]
	delete(h.loaded, modelName)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("model %q not loaded", modelName)
	}
	// Drain: in-flight Infer calls hold the read side; once the write lock
	// is ours no new dispatch can reach the pools.
	lm.mu.Lock()
	lm.closed = true
	lm.mu.Unlock()
	h.destroyInstances(lm)
	return h.ep.ModelFinalize(lm.model)
}

// Shutdown unloads every model and finalizes the backend.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	started := h.started
	names := make([]string, 0, len(h.loaded))
	for name := range h.loaded {
		names = append(names, name)
	}
	h.mu.Unlock()
	if !started {
		return nil
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.Unload(name); err != nil {
			return err
		}
	}
	return h.ep.Finalize()
}
