package backend

import (
	"runtime/debug"
	"sync"
	"time"
)

// State is the plugin-wide lifecycle state driven by the host.
type State string

const (
	StateUnloaded    State = "unloaded"
	StateInitialized State = "initialized"
	StateFinalized   State = "finalized"
)

// EntryPoints is the fixed, versioned surface the host calls. It binds one
// Backend value, enforces the lifecycle state machine around it, and
// guarantees the execute contract: every request in a batch ends with
// exactly one reported outcome, whatever the backend does.
type EntryPoints struct {
	backend Backend

	mu        sync.Mutex
	state     State
	ctx       *Context
	models    int
	instances int
}

// NewEntryPoints binds a backend implementation to the host-facing surface.
func NewEntryPoints(b Backend) *EntryPoints {
	return &EntryPoints{backend: b, state: StateUnloaded}
}

// Context returns the process-wide backend context, or nil before
// Initialize.
func (ep *EntryPoints) Context() *Context {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.ctx
}

// State returns the current lifecycle state.
func (ep *EntryPoints) State() State {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.state
}

// Initialize is called once when the host loads the plugin. It fails fast
// on an incompatible contract version and establishes the process-wide
// context that Finalize tears down.
func (ep *EntryPoints) Initialize(hb HostBackend) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.state != StateUnloaded {
		return ErrInitialization("backend %q: Initialize called in state %q", hb.Name(), ep.state)
	}
	if hostVersion := hb.APIVersion(); !CurrentAPIVersion.CompatibleWith(hostVersion) {
		return ErrInitialization("backend %q: plugin implements API version %s, host speaks %s",
			hb.Name(), CurrentAPIVersion, hostVersion)
	}
	ctx := newContext(hb)
	if init, ok := ep.backend.(Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			ctx.teardown()
			if KindOf(err) == KindInitialization {
				return err
			}
			return ErrInitialization("backend %q: %v", hb.Name(), err)
		}
	}
	ep.ctx = ctx
	ep.state = StateInitialized
	ctx.log.Info().Str("api_version", hb.APIVersion().String()).Msg("backend initialized")
	return nil
}

// Finalize is called once just before the plugin is unloaded. Cleanup is
// best effort: failures in the backend's hook or in registered cleanups
// are logged and swallowed, since the host proceeds with the unload
// regardless. Only a state-machine violation returns an error.
func (ep *EntryPoints) Finalize() error {
	ep.mu.Lock()
	if ep.state != StateInitialized {
		state := ep.state
		ep.mu.Unlock()
		return ErrInitialization("Finalize called in state %q", state)
	}
	ctx := ep.ctx
	models, instances := ep.models, ep.instances
	ep.state = StateFinalized
	ep.mu.Unlock()

	if models > 0 || instances > 0 {
		ctx.log.Warn().Int("models", models).Int("instances", instances).
			Msg("finalizing backend with live models; continuing teardown")
	}
	if fin, ok := ep.backend.(Finalizer); ok {
		if err := fin.Finalize(ctx); err != nil {
			ctx.log.Error().Err(err).Msg("backend finalize hook failed")
		}
	}
	ctx.teardown()
	ctx.log.Info().Msg("backend finalized")
	return nil
}

// ModelInitialize is called once per model the host loads. Configuration
// parse or validation failures, and rejections from the backend's hook,
// surface as configuration errors: that model fails to load, other models
// are unaffected.
func (ep *EntryPoints) ModelInitialize(hm HostModel) (*Model, error) {
	ep.mu.Lock()
	if ep.state != StateInitialized {
		state := ep.state
		ep.mu.Unlock()
		return nil, ErrInitialization("model %q: ModelInitialize called in state %q", hm.Name(), state)
	}
	ctx := ep.ctx
	ep.mu.Unlock()

	m, err := newModel(ctx, hm)
	if err != nil {
		return nil, err
	}
	if mi, ok := ep.backend.(ModelInitializer); ok {
		if err := mi.ModelInitialize(m); err != nil {
			if KindOf(err) == KindConfiguration {
				return nil, err
			}
			return nil, ErrConfiguration("model %q: %v", m.Name(), err)
		}
	}
	ep.mu.Lock()
	ep.models++
	ep.mu.Unlock()
	ctx.log.Info().Str("model", m.Name()).Int64("version", m.Version()).Msg("model initialized")
	return m, nil
}

// ModelFinalize is called once just before a model is unloaded. Hook
// failures are logged and swallowed.
func (ep *EntryPoints) ModelFinalize(m *Model) error {
	if m.isFinalized() {
		return ErrInternal("model %q: already finalized", m.Name())
	}
	if mf, ok := ep.backend.(ModelFinalizer); ok {
		if err := mf.ModelFinalize(m); err != nil {
			m.ctx.log.Error().Err(err).Str("model", m.Name()).Msg("model finalize hook failed")
		}
	}
	m.markFinalized()
	ep.mu.Lock()
	ep.models--
	ep.mu.Unlock()
	m.ctx.log.Info().Str("model", m.Name()).Msg("model finalized")
	return nil
}

// ModelInstanceInitialize creates one executable replica of a model.
// Failures are resource errors scoped to this instance.
func (ep *EntryPoints) ModelInstanceInitialize(m *Model, hi HostInstance) (*Instance, error) {
	ep.mu.Lock()
	if ep.state != StateInitialized {
		state := ep.state
		ep.mu.Unlock()
		return nil, ErrInitialization("instance %q: ModelInstanceInitialize called in state %q", hi.Name(), state)
	}
	ep.mu.Unlock()
	if m.isFinalized() {
		return nil, ErrInternal("instance %q: model %q is finalized", hi.Name(), m.Name())
	}

	inst := newInstance(m, hi)
	if ii, ok := ep.backend.(InstanceInitializer); ok {
		if err := ii.InstanceInitialize(inst); err != nil {
			if KindOf(err) == KindResource {
				return nil, err
			}
			return nil, ErrResource("instance %q: %v", inst.Name(), err)
		}
	}
	inst.setLifecycle(InstanceReady)
	ep.mu.Lock()
	ep.instances++
	ep.mu.Unlock()
	m.ctx.log.Info().
		Str("model", m.Name()).
		Str("instance", inst.Name()).
		Str("kind", inst.Kind().String()).
		Int("device", inst.DeviceID()).
		Msg("instance initialized")
	return inst, nil
}

// ModelInstanceFinalize destroys one instance. Hook failures are logged
// and swallowed; finalizing twice is an error.
func (ep *EntryPoints) ModelInstanceFinalize(inst *Instance) error {
	if inst.LifecycleState() == InstanceFinalized {
		return ErrInternal("instance %q: already finalized", inst.Name())
	}
	if fi, ok := ep.backend.(InstanceFinalizer); ok {
		if err := fi.InstanceFinalize(inst); err != nil {
			inst.model.ctx.log.Error().Err(err).Str("instance", inst.Name()).Msg("instance finalize hook failed")
		}
	}
	inst.setLifecycle(InstanceFinalized)
	ep.mu.Lock()
	ep.instances--
	ep.mu.Unlock()
	inst.model.ctx.log.Info().Str("instance", inst.Name()).Msg("instance finalized")
	return nil
}

// ModelInstanceExecute runs one batch. It guarantees, regardless of what
// the backend does (return early, error out, panic, or forget a request),
// that every request in the batch ends with exactly one reported outcome.
// Unless the model declared concurrent execution support, calls on the
// same instance are serialized here, so the backend may keep
// instance-local state unsynchronized.
func (ep *EntryPoints) ModelInstanceExecute(inst *Instance, requests []HostRequest) error {
	if state := inst.LifecycleState(); state != InstanceReady {
		// The requests still each need an outcome; the host gave them to us.
		err := ErrInternal("instance %q: execute in state %q", inst.Name(), state)
		for _, hr := range requests {
			_ = hr.ReportError(KindOf(err), err.Error())
		}
		return err
	}
	model := inst.model
	ctx := model.ctx

	if !model.Config().ConcurrentExecution {
		inst.execMu.Lock()
		defer inst.execMu.Unlock()
	}

	batch := make([]*Request, len(requests))
	for i, hr := range requests {
		batch[i] = newRequest(hr, model)
	}

	metrics := ctx.Metrics()
	metrics.inflight.WithLabelValues(model.Name()).Inc()
	start := time.Now()
	execErr := ep.runExecute(inst, batch)
	metrics.executionDuration.WithLabelValues(model.Name()).Observe(time.Since(start).Seconds())
	metrics.inflight.WithLabelValues(model.Name()).Dec()

	// Backstop: no request leaves a batch without an outcome.
	for _, r := range batch {
		if r.Finalized() {
			continue
		}
		cause := execErr
		if cause == nil {
			cause = ErrInternal("request %s: backend returned without reporting an outcome", r.ID())
		}
		if err := r.ReportError(cause); err != nil {
			ctx.log.Error().Err(err).Str("request", r.ID()).Msg("failed to report request outcome")
		}
	}

	outcome := "success"
	if execErr != nil {
		outcome = "error"
		ctx.log.Error().Err(execErr).
			Str("model", model.Name()).
			Str("instance", inst.Name()).
			Int("batch", len(batch)).
			Msg("execute failed")
	}
	metrics.executionsTotal.WithLabelValues(model.Name(), outcome).Inc()
	return execErr
}

// runExecute isolates the backend call so a panic in the engine becomes a
// per-batch error instead of a process abort.
func (ep *EntryPoints) runExecute(inst *Instance, batch []*Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			inst.model.ctx.log.Error().
				Interface("panic", p).
				Str("instance", inst.Name()).
				Bytes("stack", debug.Stack()).
				Msg("backend panicked during execute")
			err = ErrComputation("backend panicked: %v", p)
		}
	}()
	return ep.backend.Execute(inst, batch)
}
