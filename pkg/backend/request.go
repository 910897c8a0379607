package backend

import (
	"sync"

	"github.com/kevmodo/triton-go/pkg/tensor"
)

// Request adapts one opaque host request handle into typed, validated
// tensor views, and tracks that the request reaches exactly one terminal
// outcome. Requests are built by ModelInstanceExecute and must not be
// retained past the batch that delivered them.
type Request struct {
	host  HostRequest
	model *Model

	once   sync.Once // builds the input index
	byName map[string]HostInput

	mu        sync.Mutex
	finalized bool
}

func newRequest(hr HostRequest, model *Model) *Request {
	return &Request{host: hr, model: model}
}

// ID returns the host's correlation id for the request.
func (r *Request) ID() string { return r.host.ID() }

// InputNames lists the inputs the request carries.
func (r *Request) InputNames() []string { return r.host.InputNames() }

func (r *Request) inputIndex() map[string]HostInput {
	r.once.Do(func() {
		names := r.host.InputNames()
		r.byName = make(map[string]HostInput, len(names))
		for _, name := range names {
			if in, err := r.host.Input(name); err == nil {
				r.byName[name] = in
			}
		}
	})
	return r.byName
}

// Input resolves one named input into a validated tensor view. The view
// borrows host memory: it is readable until the request's outcome is
// reported and must not be retained beyond that.
//
// Everything that can disagree with the model's declared configuration
// surfaces here as a schema error scoped to this one request: an
// undeclared name, a missing input, a datatype or shape mismatch, or a
// buffer whose size (or BYTES framing) contradicts the shape.
func (r *Request) Input(name string) (*tensor.View, error) {
	spec, declared := r.model.Config().Input(name)
	if !declared {
		return nil, ErrSchema("request %s: input %q is not declared by model %q", r.ID(), name, r.model.Name())
	}
	in, ok := r.inputIndex()[name]
	if !ok {
		return nil, ErrSchema("request %s: required input %q is missing", r.ID(), name)
	}
	props, err := in.Properties()
	if err != nil {
		return nil, ErrSchema("request %s: input %q: %v", r.ID(), name, err)
	}
	if props.DataType != spec.DataType {
		return nil, ErrSchema("request %s: input %q has datatype %s, model declares %s",
			r.ID(), name, props.DataType, spec.DataType)
	}
	if !spec.MatchesShape(props.Shape) {
		return nil, ErrSchema("request %s: input %q has shape %s, model declares dims %s",
			r.ID(), name, props.Shape, spec.Dims)
	}
	buf, err := in.Buffer()
	if err != nil {
		return nil, ErrSchema("request %s: input %q: %v", r.ID(), name, err)
	}
	view := &tensor.View{
		Name:     name,
		DataType: props.DataType,
		Shape:    props.Shape.Clone(),
		Memory:   props.Memory,
		DeviceID: props.DeviceID,
		Data:     buf,
	}
	if err := view.Validate(); err != nil {
		return nil, ErrSchema("request %s: %v", r.ID(), err)
	}
	return view, nil
}

// InputStrings reads a BYTES input as its decoded string elements.
func (r *Request) InputStrings(name string) ([]string, error) {
	view, err := r.Input(name)
	if err != nil {
		return nil, err
	}
	elems, err := view.Strings()
	if err != nil {
		return nil, ErrSchema("request %s: %v", r.ID(), err)
	}
	return elems, nil
}

// InputUint64 reads a single-element UINT64 input.
func (r *Request) InputUint64(name string) (uint64, error) {
	view, err := r.Input(name)
	if err != nil {
		return 0, err
	}
	n, err := view.Uint64()
	if err != nil {
		return 0, ErrSchema("request %s: %v", r.ID(), err)
	}
	return n, nil
}

// Finalized reports whether the request already has its terminal outcome.
func (r *Request) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// claimOutcome marks the request finalized; the second caller loses.
func (r *Request) claimOutcome() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return false
	}
	r.finalized = true
	return true
}

// ReportError resolves the request with a per-request error outcome. The
// error's kind is forwarded to the host; errors from outside this package
// classify as internal. Reporting on an already-finalized request is a
// contract violation and returns an error without touching the handle.
func (r *Request) ReportError(cause error) error {
	if cause == nil {
		return ErrInternal("request %s: ReportError with nil error", r.ID())
	}
	if !r.claimOutcome() {
		return ErrInternal("request %s: outcome already reported", r.ID())
	}
	r.model.Context().Metrics().requestResolved(r.model.Name(), cause)
	return r.host.ReportError(KindOf(cause), cause.Error())
}

// Respond resolves the request with a response built by fn. On success the
// response is sent and the host takes ownership of every output buffer; on
// failure the response is released and the error is reported as this
// request's outcome. Either way the request ends with exactly one outcome,
// and fn's error comes back to the caller for logging.
func (r *Request) Respond(fn func(*Response) error) error {
	if r.Finalized() {
		return ErrInternal("request %s: outcome already reported", r.ID())
	}
	hr, err := r.host.NewResponse()
	if err != nil {
		reportErr := ErrInternal("request %s: creating response: %v", r.ID(), err)
		_ = r.ReportError(reportErr)
		return reportErr
	}
	resp := &Response{req: r, host: hr}
	if err := fn(resp); err != nil {
		_ = hr.Release()
		_ = r.ReportError(err)
		return err
	}
	if !r.claimOutcome() {
		_ = hr.Release()
		return ErrInternal("request %s: outcome already reported", r.ID())
	}
	if err := hr.Send(); err != nil {
		// The host saw no outcome from the failed send, so the error report
		// below is the request's single terminal outcome. Going through the
		// host handle directly: the local claim is already spent.
		reportErr := ErrInternal("request %s: sending response: %v", r.ID(), err)
		r.model.Context().Metrics().requestResolved(r.model.Name(), reportErr)
		_ = r.host.ReportError(KindOf(reportErr), reportErr.Error())
		return reportErr
	}
	r.model.Context().Metrics().requestResolved(r.model.Name(), nil)
	return nil
}
