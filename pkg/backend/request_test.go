package backend

import (
	"fmt"
	"testing"

	"github.com/kevmodo/triton-go/pkg/tensor"
)

func newTestRequest(t *testing.T, fr *fakeRequest) *Request {
	t.Helper()
	ep := newTestEntryPoints(t, &hookBackend{})
	m, err := ep.ModelInitialize(&fakeModel{name: "test", version: 1, doc: echoDoc})
	if err != nil {
		t.Fatalf("model initialize: %v", err)
	}
	return newRequest(fr, m)
}

func TestRequestInput(t *testing.T) {
	r := newTestRequest(t, promptRequest("r1", "foo", "bar", "baz"))
	view, err := r.Input("prompt")
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if view.DataType != tensor.Bytes || !view.Shape.Equal(tensor.Shape{3}) {
		t.Fatalf("view = %+v", view)
	}
	elems, err := view.Strings()
	if err != nil {
		t.Fatalf("strings: %v", err)
	}
	if len(elems) != 3 || elems[0] != "foo" {
		t.Fatalf("elems = %v", elems)
	}
}

func TestRequestInputSchemaErrors(t *testing.T) {
	cases := []struct {
		name string
		req  *fakeRequest
		in   string
	}{
		{"undeclared name", promptRequest("r", "a", "b", "c"), "nonsense"},
		{"missing input", newFakeRequest("r"), "prompt"},
		{"datatype mismatch", newFakeRequest("r").addRawInput("prompt", tensor.FP32, tensor.Shape{3}, make([]byte, 12)), "prompt"},
		{"shape mismatch", newFakeRequest("r").addBytesInput("prompt", tensor.Shape{2}, []string{"a", "b"}), "prompt"},
		{"element count contradicts shape", newFakeRequest("r").addRawInput("prompt", tensor.Bytes, tensor.Shape{3}, tensor.EncodeStrings([]string{"only one"})), "prompt"},
		{"malformed framing", newFakeRequest("r").addRawInput("prompt", tensor.Bytes, tensor.Shape{3}, []byte{0x02, 0x00}), "prompt"},
	}
	for _, tc := range cases {
		r := newTestRequest(t, tc.req)
		_, err := r.Input(tc.in)
		if err == nil {
			t.Fatalf("%s: accepted", tc.name)
		}
		if !IsSchema(err) {
			t.Fatalf("%s: wrong error kind: %v", tc.name, err)
		}
	}
}

func TestRequestDoubleOutcome(t *testing.T) {
	fr := promptRequest("r1", "a", "b", "c")
	r := newTestRequest(t, fr)
	if err := r.Respond(func(*Response) error { return nil }); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if err := r.ReportError(ErrComputation("late failure")); err == nil {
		t.Fatalf("error report after response accepted")
	}
	if err := r.Respond(func(*Response) error { return nil }); err == nil {
		t.Fatalf("second response accepted")
	}
	if fr.outcomeCount() != 1 {
		t.Fatalf("host saw %d outcomes, want 1", fr.outcomeCount())
	}
}

func TestRespondReportsCallbackFailure(t *testing.T) {
	fr := promptRequest("r1", "a", "b", "c")
	r := newTestRequest(t, fr)
	cause := ErrComputation("value out of range")
	if err := r.Respond(func(*Response) error { return cause }); err == nil {
		t.Fatalf("callback failure swallowed")
	}
	if fr.outcomeCount() != 1 || fr.errKind != KindComputation {
		t.Fatalf("outcome: count=%d kind=%v", fr.outcomeCount(), fr.errKind)
	}
	if fr.sent != nil {
		t.Fatalf("failed respond still sent a response")
	}
}

func TestRespondSendFailureStillReportsOutcome(t *testing.T) {
	fr := promptRequest("r1", "a", "b", "c")
	fr.sendErr = fmt.Errorf("host rejected the response")
	r := newTestRequest(t, fr)
	err := r.Respond(func(resp *Response) error {
		return resp.OutputBytes("output", tensor.Shape{3}, [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	})
	if err == nil {
		t.Fatalf("send failure swallowed")
	}
	// The failed send delivered nothing, so the host must still see exactly
	// one terminal outcome: the error report.
	if fr.outcomeCount() != 1 {
		t.Fatalf("host saw %d outcomes after send failure, want exactly 1", fr.outcomeCount())
	}
	if fr.sent != nil {
		t.Fatalf("failed send recorded as a delivered response")
	}
	if fr.errKind != KindInternal {
		t.Fatalf("error kind = %v, want %v", fr.errKind, KindInternal)
	}
}

func TestResponseOutputValidation(t *testing.T) {
	fr := promptRequest("r1", "a", "b", "c")
	r := newTestRequest(t, fr)
	err := r.Respond(func(resp *Response) error {
		if _, err := resp.OutputSized("undeclared", tensor.Bytes, tensor.Shape{1}, 8); err == nil {
			t.Fatalf("undeclared output accepted")
		}
		if _, err := resp.OutputSized("output", tensor.FP32, tensor.Shape{3}, 12); err == nil {
			t.Fatalf("output datatype mismatch accepted")
		}
		if _, err := resp.Output("output", tensor.Bytes, tensor.Shape{3}); err == nil {
			t.Fatalf("Output without explicit size accepted for BYTES")
		}
		return resp.OutputBytes("output", tensor.Shape{3}, [][]byte{[]byte("a"), []byte("b"), []byte("c")})
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	out := fr.sent.outputs["output"]
	if out == nil || len(out.data) != 4*3+3 {
		t.Fatalf("unexpected output: %+v", out)
	}
}
