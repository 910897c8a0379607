// Package echo is the example backend: a stand-in execution engine that
// copies each input tensor to its paired output, optionally prefixing
// BYTES elements with a configured greeting. The computation is trivial on
// purpose; the package exists to exercise the full lifecycle and
// marshaling contract in pkg/backend.
package echo

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kevmodo/triton-go/pkg/backend"
	"github.com/kevmodo/triton-go/pkg/modelconfig"
	"github.com/kevmodo/triton-go/pkg/tensor"
)

// Backend implements backend.Backend plus every optional lifecycle hook.
type Backend struct {
	log     zerolog.Logger
	runtime *runtime
}

// New returns an unstarted echo backend.
func New() *Backend { return &Backend{} }

// runtime stands in for a device runtime handle a real engine would
// acquire once per process.
type runtime struct {
	acquired bool
}

// modelState is attached to each loaded model.
type modelState struct {
	greeting string
}

// instanceState is the per-replica state. The counter is atomic because a
// model may declare concurrent execution, which lifts the host's
// per-instance serialization.
type instanceState struct {
	executions atomic.Int64
}

// Executions reports how many execute calls an instance has served.
// Exposed for the host-side tooling that inspects instance activity.
func Executions(inst *backend.Instance) int64 {
	if s, ok := inst.State().(*instanceState); ok {
		return s.executions.Load()
	}
	return 0
}

// Initialize acquires process-wide resources and registers their release,
// newest-first, on the context.
func (b *Backend) Initialize(ctx *backend.Context) error {
	b.log = ctx.Logger().With().Str("engine", "echo").Logger()
	b.runtime = &runtime{acquired: true}
	ctx.OnFinalize("echo runtime", func() error {
		b.runtime.acquired = false
		return nil
	})
	b.log.Debug().Msg("echo runtime acquired")
	return nil
}

// Finalize has nothing to do beyond the cleanups registered at Initialize.
func (b *Backend) Finalize(ctx *backend.Context) error {
	b.log.Debug().Msg("echo backend finalizing")
	return nil
}

// ModelInitialize checks the declared schema against what the engine can
// serve: inputs and outputs pair by position, and each pair must agree on
// datatype and dims, since the engine writes outputs by copying inputs.
func (b *Backend) ModelInitialize(m *backend.Model) error {
	cfg := m.Config()
	if len(cfg.Inputs) != len(cfg.Outputs) {
		return backend.ErrConfiguration("model %q: echo needs one output per input, config declares %d inputs and %d outputs",
			m.Name(), len(cfg.Inputs), len(cfg.Outputs))
	}
	for i, in := range cfg.Inputs {
		out := cfg.Outputs[i]
		if in.DataType != out.DataType {
			return backend.ErrConfiguration("model %q: output %q has datatype %s, paired input %q has %s",
				m.Name(), out.Name, out.DataType, in.Name, in.DataType)
		}
		if !in.Dims.Equal(out.Dims) {
			return backend.ErrConfiguration("model %q: output %q has dims %s, paired input %q has %s",
				m.Name(), out.Name, out.Dims, in.Name, in.Dims)
		}
	}
	greeting := cfg.Parameter("greeting", "")
	if greeting != "" {
		// greeting only makes sense for BYTES tensors
		for _, in := range cfg.Inputs {
			if in.DataType != tensor.Bytes {
				return backend.ErrConfiguration("model %q: greeting parameter set but input %q is %s, not BYTES",
					m.Name(), in.Name, in.DataType)
			}
		}
	}
	m.SetState(&modelState{greeting: greeting})
	return nil
}

// ModelFinalize drops the model state.
func (b *Backend) ModelFinalize(m *backend.Model) error {
	b.log.Debug().Str("model", m.Name()).Msg("model released")
	return nil
}

// InstanceInitialize allocates per-replica state. The engine is CPU-only;
// a GPU placement is a resource error for that instance.
func (b *Backend) InstanceInitialize(inst *backend.Instance) error {
	if inst.Kind() != modelconfig.KindCPU {
		return backend.ErrResource("instance %q: echo engine supports CPU placement only, got %s device %d",
			inst.Name(), inst.Kind(), inst.DeviceID())
	}
	if b.runtime == nil || !b.runtime.acquired {
		return backend.ErrResource("instance %q: echo runtime not acquired", inst.Name())
	}
	inst.SetState(&instanceState{})
	return nil
}

// InstanceFinalize releases the replica's scratch space.
func (b *Backend) InstanceFinalize(inst *backend.Instance) error {
	b.log.Debug().Str("instance", inst.Name()).Msg("instance released")
	return nil
}

// Execute serves each request in the batch independently: a schema or
// computation failure resolves that request with an error and the loop
// moves on.
func (b *Backend) Execute(inst *backend.Instance, batch []*backend.Request) error {
	state, ok := inst.State().(*instanceState)
	if !ok {
		return backend.ErrInternal("instance %q: missing echo state", inst.Name())
	}
	ms, ok := inst.Model().State().(*modelState)
	if !ok {
		return backend.ErrInternal("model %q: missing echo state", inst.Model().Name())
	}
	state.executions.Add(1)
	for _, req := range batch {
		if err := b.serve(inst, ms, req); err != nil {
			b.log.Debug().Err(err).Str("request", req.ID()).Msg("request failed")
		}
	}
	return nil
}

// serve computes one request. Respond guarantees the request ends with
// exactly one outcome whether fn succeeds or fails.
func (b *Backend) serve(inst *backend.Instance, ms *modelState, req *backend.Request) error {
	cfg := inst.Model().Config()
	return req.Respond(func(resp *backend.Response) error {
		for i, outSpec := range cfg.Outputs {
			inSpec := cfg.Inputs[i]
			view, err := req.Input(inSpec.Name)
			if err != nil {
				return err
			}
			payload, err := b.transform(ms, view)
			if err != nil {
				return err
			}
			out, err := resp.OutputSized(outSpec.Name, outSpec.DataType, view.Shape, int64(len(payload)))
			if err != nil {
				return err
			}
			copy(out.Data, payload)
		}
		return nil
	})
}

// transform produces the output payload for one input view. Inputs are
// copied, not aliased: the host may reclaim input buffers the moment the
// outcome is reported.
func (b *Backend) transform(ms *modelState, view *tensor.View) ([]byte, error) {
	if view.DataType != tensor.Bytes || ms.greeting == "" {
		out := make([]byte, len(view.Data))
		copy(out, view.Data)
		return out, nil
	}
	elems, err := tensor.DecodeBytes(view.Data)
	if err != nil {
		// Validate has run by now, so framing failures here mean engine
		// bugs rather than bad input.
		return nil, backend.ErrComputation("tensor %q: %v", view.Name, err)
	}
	greeted := make([][]byte, len(elems))
	for i, e := range elems {
		ge := make([]byte, 0, len(ms.greeting)+len(e))
		ge = append(ge, ms.greeting...)
		ge = append(ge, e...)
		greeted[i] = ge
	}
	return tensor.EncodeBytes(greeted), nil
}
