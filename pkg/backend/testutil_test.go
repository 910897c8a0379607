package backend

import (
	"fmt"
	"io"
	"sync"

	"github.com/kevmodo/triton-go/pkg/modelconfig"
	"github.com/kevmodo/triton-go/pkg/tensor"
)

// In-memory host handles for unit tests. The full-fidelity simulator lives
// in internal/hostsim; these stay minimal so the package tests read as
// contract checks.

type fakeHostBackend struct {
	name    string
	version APIVersion
	params  map[string]string
	sink    io.Writer
}

func (f *fakeHostBackend) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeHostBackend) APIVersion() APIVersion {
	if f.version == (APIVersion{}) {
		return CurrentAPIVersion
	}
	return f.version
}

func (f *fakeHostBackend) Parameters() map[string]string { return f.params }
func (f *fakeHostBackend) LogSink() io.Writer            { return io.Discard }

type fakeModel struct {
	name    string
	version int64
	repo    string
	doc     string
}

func (f *fakeModel) Name() string                    { return f.name }
func (f *fakeModel) Version() int64                  { return f.version }
func (f *fakeModel) Repository() string              { return f.repo }
func (f *fakeModel) ConfigDocument() ([]byte, error) { return []byte(f.doc), nil }

const echoDoc = `{
	"name": "test",
	"inputs": [{"name": "prompt", "datatype": "BYTES", "dims": [3]}],
	"outputs": [{"name": "output", "datatype": "BYTES", "dims": [3]}]
}`

const concurrentDoc = `{
	"name": "test",
	"inputs": [{"name": "prompt", "datatype": "BYTES", "dims": [3]}],
	"outputs": [{"name": "output", "datatype": "BYTES", "dims": [3]}],
	"concurrent_execution": true
}`

type fakeInstance struct {
	name   string
	kind   modelconfig.DeviceKind
	device int
}

func (f *fakeInstance) Name() string                 { return f.name }
func (f *fakeInstance) Kind() modelconfig.DeviceKind { return f.kind }
func (f *fakeInstance) DeviceID() int                { return f.device }

type fakeInput struct {
	props InputProperties
	data  []byte
}

func (f *fakeInput) Properties() (InputProperties, error) { return f.props, nil }
func (f *fakeInput) Buffer() ([]byte, error)              { return f.data, nil }

type fakeOutput struct {
	dt    tensor.DataType
	shape tensor.Shape
	data  []byte
}

type fakeRequest struct {
	id      string
	order   []string
	inputs  map[string]*fakeInput
	sendErr error // injected Send failure for responses on this request

	mu       sync.Mutex
	outcomes int // terminal reports observed by the "host"
	errKind  ErrorKind
	errMsg   string
	sent     *fakeResponse
}

func newFakeRequest(id string) *fakeRequest {
	return &fakeRequest{id: id, inputs: map[string]*fakeInput{}}
}

func (r *fakeRequest) addBytesInput(name string, shape tensor.Shape, elems []string) *fakeRequest {
	data := tensor.EncodeStrings(elems)
	r.addRawInput(name, tensor.Bytes, shape, data)
	return r
}

func (r *fakeRequest) addRawInput(name string, dt tensor.DataType, shape tensor.Shape, data []byte) *fakeRequest {
	r.order = append(r.order, name)
	r.inputs[name] = &fakeInput{
		props: InputProperties{Name: name, DataType: dt, Shape: shape, ByteSize: int64(len(data))},
		data:  data,
	}
	return r
}

func (r *fakeRequest) ID() string           { return r.id }
func (r *fakeRequest) InputNames() []string { return r.order }

func (r *fakeRequest) Input(name string) (HostInput, error) {
	in, ok := r.inputs[name]
	if !ok {
		return nil, fmt.Errorf("no input %q", name)
	}
	return in, nil
}

func (r *fakeRequest) NewResponse() (HostResponse, error) {
	return &fakeResponse{req: r, outputs: map[string]*fakeOutput{}}, nil
}

func (r *fakeRequest) ReportError(kind ErrorKind, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes++
	r.errKind = kind
	r.errMsg = msg
	return nil
}

func (r *fakeRequest) outcomeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes
}

type fakeResponse struct {
	req      *fakeRequest
	outputs  map[string]*fakeOutput
	sent     bool
	released bool
}

func (resp *fakeResponse) OutputBuffer(name string, dt tensor.DataType, shape tensor.Shape, byteSize int64) ([]byte, error) {
	out := &fakeOutput{dt: dt, shape: shape.Clone(), data: make([]byte, byteSize)}
	resp.outputs[name] = out
	return out.data, nil
}

func (resp *fakeResponse) Send() error {
	resp.req.mu.Lock()
	defer resp.req.mu.Unlock()
	if resp.req.sendErr != nil {
		return resp.req.sendErr
	}
	if resp.sent {
		return fmt.Errorf("response already sent")
	}
	resp.sent = true
	resp.req.outcomes++
	resp.req.sent = resp
	return nil
}

func (resp *fakeResponse) Release() error {
	resp.released = true
	return nil
}

// hookBackend implements every lifecycle hook through overridable funcs so
// a test can script exactly the behavior it needs.
type hookBackend struct {
	initialize   func(*Context) error
	finalize     func(*Context) error
	modelInit    func(*Model) error
	modelFin     func(*Model) error
	instanceInit func(*Instance) error
	instanceFin  func(*Instance) error
	execute      func(*Instance, []*Request) error
}

func (b *hookBackend) Initialize(ctx *Context) error {
	if b.initialize != nil {
		return b.initialize(ctx)
	}
	return nil
}

func (b *hookBackend) Finalize(ctx *Context) error {
	if b.finalize != nil {
		return b.finalize(ctx)
	}
	return nil
}

func (b *hookBackend) ModelInitialize(m *Model) error {
	if b.modelInit != nil {
		return b.modelInit(m)
	}
	return nil
}

func (b *hookBackend) ModelFinalize(m *Model) error {
	if b.modelFin != nil {
		return b.modelFin(m)
	}
	return nil
}

func (b *hookBackend) InstanceInitialize(inst *Instance) error {
	if b.instanceInit != nil {
		return b.instanceInit(inst)
	}
	return nil
}

func (b *hookBackend) InstanceFinalize(inst *Instance) error {
	if b.instanceFin != nil {
		return b.instanceFin(inst)
	}
	return nil
}

func (b *hookBackend) Execute(inst *Instance, batch []*Request) error {
	if b.execute != nil {
		return b.execute(inst, batch)
	}
	for _, r := range batch {
		if err := r.Respond(func(*Response) error { return nil }); err != nil {
			return err
		}
	}
	return nil
}
