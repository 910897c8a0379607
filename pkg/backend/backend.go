// Package backend implements the plugin side of an inference-serving
// host's backend contract: the lifecycle entry points the host drives, the
// request/response tensor marshaling around each execute call, and the
// per-model/per-instance state the backend hangs its engine off.
//
// A backend implements Execute plus whichever optional lifecycle hooks it
// needs, then hands itself to NewEntryPoints; the EntryPoints value is the
// fixed surface the host calls.
package backend

// Backend is the execution engine contract. Execute runs one batch of
// requests against one model instance. Requests in a batch are independent;
// a failure in one must be reported on that request alone and must not
// prevent the others from being served. Execute may block for the duration
// of the computation but must leave no request unresolved: any request it
// does not finalize is resolved with an error by the entry-point layer.
//
// Input views obtained from a Request borrow host memory and must not be
// retained once the request's outcome is reported.
type Backend interface {
	Execute(inst *Instance, batch []*Request) error
}

// The hooks below are optional; the entry-point layer discovers them by
// type assertion and skips any the backend does not implement.

// Initializer is called once when the plugin is loaded.
type Initializer interface {
	Initialize(ctx *Context) error
}

// Finalizer is called once just before the plugin is unloaded. By that
// point every model and instance has been finalized.
type Finalizer interface {
	Finalize(ctx *Context) error
}

// ModelInitializer is called once per loaded model, after its
// configuration has been parsed and validated. This is where a backend
// checks the declared tensor schema against what its engine supports.
type ModelInitializer interface {
	ModelInitialize(m *Model) error
}

// ModelFinalizer is called once just before a model is unloaded.
type ModelFinalizer interface {
	ModelFinalize(m *Model) error
}

// InstanceInitializer is called once per model instance to allocate
// per-device, per-replica state.
type InstanceInitializer interface {
	InstanceInitialize(inst *Instance) error
}

// InstanceFinalizer is called once just before an instance is destroyed.
type InstanceFinalizer interface {
	InstanceFinalize(inst *Instance) error
}
