package backend

import (
	"sync"

	"github.com/kevmodo/triton-go/pkg/modelconfig"
)

// InstanceState is the lifecycle state of one model instance.
type InstanceState string

const (
	InstanceUninitialized InstanceState = "uninitialized"
	InstanceReady         InstanceState = "ready"
	InstanceFinalized     InstanceState = "finalized"
)

// Instance is one executable replica of a model on a specific device.
// Instances of the same model are independent: nothing in this struct is
// shared between them, and instance-local state attached via SetState is
// only touched from execute calls scoped to this instance.
type Instance struct {
	name     string
	kind     modelconfig.DeviceKind
	deviceID int
	model    *Model

	mu        sync.Mutex
	lifecycle InstanceState
	state     any

	// execMu serializes execute calls when the model did not declare
	// concurrent execution support.
	execMu sync.Mutex
}

func newInstance(model *Model, hi HostInstance) *Instance {
	return &Instance{
		name:      hi.Name(),
		kind:      hi.Kind(),
		deviceID:  hi.DeviceID(),
		model:     model,
		lifecycle: InstanceUninitialized,
	}
}

// Name returns the host's name for this instance.
func (inst *Instance) Name() string { return inst.name }

// Kind returns the device class the instance is placed on.
func (inst *Instance) Kind() modelconfig.DeviceKind { return inst.kind }

// DeviceID returns the device ordinal for GPU placements.
func (inst *Instance) DeviceID() int { return inst.deviceID }

// Model returns the model this instance replicates.
func (inst *Instance) Model() *Model { return inst.model }

// LifecycleState returns the instance's lifecycle state.
func (inst *Instance) LifecycleState() InstanceState {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.lifecycle
}

// SetState attaches backend-defined instance-local state.
func (inst *Instance) SetState(state any) {
	inst.mu.Lock()
	inst.state = state
	inst.mu.Unlock()
}

// State returns the state attached by SetState, or nil.
func (inst *Instance) State() any {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

func (inst *Instance) setLifecycle(s InstanceState) {
	inst.mu.Lock()
	inst.lifecycle = s
	if s == InstanceFinalized {
		inst.state = nil
	}
	inst.mu.Unlock()
}
