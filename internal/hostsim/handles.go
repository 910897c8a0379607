package hostsim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kevmodo/triton-go/pkg/backend"
	"github.com/kevmodo/triton-go/pkg/modelconfig"
	"github.com/kevmodo/triton-go/pkg/tensor"
)

// simModel implements backend.HostModel for a repository entry.
type simModel struct {
	entry   *Entry
	version int64
}

func (m *simModel) Name() string       { return m.entry.Name }
func (m *simModel) Version() int64     { return m.version }
func (m *simModel) Repository() string { return m.entry.Dir }

func (m *simModel) ConfigDocument() ([]byte, error) {
	return m.entry.Config.Document()
}

// simInstance implements backend.HostInstance.
type simInstance struct {
	name   string
	kind   modelconfig.DeviceKind
	device int
}

func (i *simInstance) Name() string                 { return i.name }
func (i *simInstance) Kind() modelconfig.DeviceKind { return i.kind }
func (i *simInstance) DeviceID() int                { return i.device }

// Input is one in-memory request input tensor.
type Input struct {
	props backend.InputProperties
	data  []byte
}

func (in *Input) Properties() (backend.InputProperties, error) { return in.props, nil }
func (in *Input) Buffer() ([]byte, error)                      { return in.data, nil }

// RequestError is the no-success outcome of a request.
type RequestError struct {
	Kind    backend.ErrorKind
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// OutputTensor is one output of a completed response. The host owns the
// buffer once the response is sent.
type OutputTensor struct {
	Name     string
	DataType tensor.DataType
	Shape    tensor.Shape
	Data     []byte
}

// Outcome is the single terminal result of a request: exactly one of
// Response or Err is set.
type Outcome struct {
	Response *CompletedResponse
	Err      *RequestError
}

// CompletedResponse holds the outputs of a sent response.
type CompletedResponse struct {
	outputs map[string]*OutputTensor
}

// Output returns a named output tensor, or nil.
func (cr *CompletedResponse) Output(name string) *OutputTensor { return cr.outputs[name] }

// Outputs returns the number of output tensors.
func (cr *CompletedResponse) Outputs() int { return len(cr.outputs) }

// Sorted returns the output tensors ordered by name.
func (cr *CompletedResponse) Sorted() []*OutputTensor {
	out := make([]*OutputTensor, 0, len(cr.outputs))
	for _, ot := range cr.outputs {
		out = append(out, ot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Request is an in-memory host request handle. Build it with the Add*
// methods, hand it to Host.Infer, then read the recorded Outcome.
type Request struct {
	id    string
	order []string
	ins   map[string]*Input

	mu      sync.Mutex
	outcome *Outcome
}

// NewRequest builds a request; an empty id gets a generated one, matching
// hosts that assign correlation ids themselves.
func NewRequest(id string) *Request {
	if id == "" {
		id = uuid.NewString()
	}
	return &Request{id: id, ins: map[string]*Input{}}
}

// AddInput attaches a raw input buffer.
func (r *Request) AddInput(name string, dt tensor.DataType, shape tensor.Shape, data []byte) *Request {
	r.order = append(r.order, name)
	r.ins[name] = &Input{
		props: backend.InputProperties{
			Name:     name,
			DataType: dt,
			Shape:    shape.Clone(),
			Memory:   tensor.MemoryCPU,
			ByteSize: int64(len(data)),
		},
		data: data,
	}
	return r
}

// AddBytesInput attaches a BYTES input framed from string elements.
func (r *Request) AddBytesInput(name string, shape tensor.Shape, elems []string) *Request {
	return r.AddInput(name, tensor.Bytes, shape, tensor.EncodeStrings(elems))
}

// ID implements backend.HostRequest.
func (r *Request) ID() string { return r.id }

// InputNames implements backend.HostRequest.
func (r *Request) InputNames() []string { return r.order }

// Input implements backend.HostRequest.
func (r *Request) Input(name string) (backend.HostInput, error) {
	in, ok := r.ins[name]
	if !ok {
		return nil, fmt.Errorf("request %s has no input %q", r.id, name)
	}
	return in, nil
}

// NewResponse implements backend.HostRequest.
func (r *Request) NewResponse() (backend.HostResponse, error) {
	return &response{req: r, outputs: map[string]*OutputTensor{}}, nil
}

// ReportError implements backend.HostRequest.
func (r *Request) ReportError(kind backend.ErrorKind, msg string) error {
	return r.setOutcome(&Outcome{Err: &RequestError{Kind: kind, Message: msg}})
}

func (r *Request) setOutcome(o *Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != nil {
		return fmt.Errorf("request %s already finalized", r.id)
	}
	r.outcome = o
	return nil
}

// Outcome returns the recorded terminal result, or nil while pending.
func (r *Request) Outcome() *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// response implements backend.HostResponse.
type response struct {
	req     *Request
	mu      sync.Mutex
	outputs map[string]*OutputTensor
	closed  bool
}

func (resp *response) OutputBuffer(name string, dt tensor.DataType, shape tensor.Shape, byteSize int64) ([]byte, error) {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	if resp.closed {
		return nil, fmt.Errorf("request %s: output buffer requested on closed response", resp.req.id)
	}
	if byteSize < 0 {
		return nil, fmt.Errorf("request %s: output %q: negative byte size %d", resp.req.id, name, byteSize)
	}
	out := &OutputTensor{Name: name, DataType: dt, Shape: shape.Clone(), Data: make([]byte, byteSize)}
	resp.outputs[name] = out
	return out.Data, nil
}

func (resp *response) Send() error {
	resp.mu.Lock()
	if resp.closed {
		resp.mu.Unlock()
		return fmt.Errorf("request %s: response already closed", resp.req.id)
	}
	resp.closed = true
	outputs := resp.outputs
	resp.mu.Unlock()
	return resp.req.setOutcome(&Outcome{Response: &CompletedResponse{outputs: outputs}})
}

func (resp *response) Release() error {
	resp.mu.Lock()
	defer resp.mu.Unlock()
	resp.closed = true
	resp.outputs = nil
	return nil
}
