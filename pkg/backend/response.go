package backend

import (
	"github.com/kevmodo/triton-go/pkg/tensor"
)

// Response accumulates output tensors for one request. Output buffers are
// allocated by the host, written by the backend, and handed back whole when
// the response is sent; after that the backend must not touch them.
type Response struct {
	req  *Request
	host HostResponse
}

// Output allocates a host-owned buffer for a fixed-size-datatype output
// tensor and returns a writable view over it. The buffer is sized exactly
// to shape × element size.
func (resp *Response) Output(name string, dt tensor.DataType, shape tensor.Shape) (*tensor.View, error) {
	size := dt.Size()
	if size == 0 {
		return nil, ErrInternal("request %s: output %q: datatype %s needs an explicit byte size, use OutputSized",
			resp.req.ID(), name, dt)
	}
	return resp.OutputSized(name, dt, shape, shape.NumElements()*int64(size))
}

// OutputSized allocates a host-owned buffer of an explicit byte size, for
// variable-length datatypes such as BYTES where the framed length is only
// known once the payload is built.
func (resp *Response) OutputSized(name string, dt tensor.DataType, shape tensor.Shape, byteSize int64) (*tensor.View, error) {
	spec, declared := resp.req.model.Config().Output(name)
	if !declared {
		return nil, ErrInternal("request %s: output %q is not declared by model %q",
			resp.req.ID(), name, resp.req.model.Name())
	}
	if spec.DataType != dt {
		return nil, ErrInternal("request %s: output %q allocated as %s, model declares %s",
			resp.req.ID(), name, dt, spec.DataType)
	}
	if err := shape.Validate(); err != nil {
		return nil, ErrInternal("request %s: output %q: %v", resp.req.ID(), name, err)
	}
	buf, err := resp.host.OutputBuffer(name, dt, shape, byteSize)
	if err != nil {
		return nil, ErrInternal("request %s: allocating output %q: %v", resp.req.ID(), name, err)
	}
	if int64(len(buf)) != byteSize {
		return nil, ErrInternal("request %s: output %q: host allocated %d bytes, asked for %d",
			resp.req.ID(), name, len(buf), byteSize)
	}
	return &tensor.View{
		Name:     name,
		DataType: dt,
		Shape:    shape.Clone(),
		Data:     buf,
	}, nil
}

// OutputBytes frames the given elements and writes them into a newly
// allocated BYTES output.
func (resp *Response) OutputBytes(name string, shape tensor.Shape, elems [][]byte) error {
	payload := tensor.EncodeBytes(elems)
	view, err := resp.OutputSized(name, tensor.Bytes, shape, int64(len(payload)))
	if err != nil {
		return err
	}
	copy(view.Data, payload)
	return nil
}
