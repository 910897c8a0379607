package echo

import (
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/kevmodo/triton-go/internal/hostsim"
	"github.com/kevmodo/triton-go/pkg/backend"
	"github.com/kevmodo/triton-go/pkg/modelconfig"
	"github.com/kevmodo/triton-go/pkg/tensor"
)

type testHost struct{}

func (testHost) Name() string                   { return "echo" }
func (testHost) APIVersion() backend.APIVersion { return backend.CurrentAPIVersion }
func (testHost) Parameters() map[string]string  { return nil }
func (testHost) LogSink() io.Writer             { return io.Discard }

type testModel struct {
	name string
	doc  string
}

func (m *testModel) Name() string                   { return m.name }
func (m *testModel) Version() int64                 { return 1 }
func (m *testModel) Repository() string             { return "" }
func (m *testModel) ConfigDocument() ([]byte, error) { return []byte(m.doc), nil }

type testInstance struct {
	name   string
	kind   modelconfig.DeviceKind
	device int
}

func (i *testInstance) Name() string                 { return i.name }
func (i *testInstance) Kind() modelconfig.DeviceKind { return i.kind }
func (i *testInstance) DeviceID() int                { return i.device }

const bytesDoc = `{
  "name": "test",
  "inputs": [{"name": "prompt", "datatype": "BYTES", "dims": [-1]}],
  "outputs": [{"name": "output", "datatype": "BYTES", "dims": [-1]}]
}`

const greetingDoc = `{
  "name": "test",
  "inputs": [{"name": "prompt", "datatype": "BYTES", "dims": [-1]}],
  "outputs": [{"name": "output", "datatype": "BYTES", "dims": [-1]}],
  "parameters": {"greeting": "hello "}
}`

const fp32Doc = `{
  "name": "test",
  "inputs": [{"name": "in", "datatype": "FP32", "dims": [4]}],
  "outputs": [{"name": "out", "datatype": "FP32", "dims": [4]}]
}`

func startBackend(t *testing.T) *backend.EntryPoints {
	t.Helper()
	ep := backend.NewEntryPoints(New())
	if err := ep.Initialize(testHost{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = ep.Finalize() })
	return ep
}

func loadModel(t *testing.T, ep *backend.EntryPoints, doc string) (*backend.Model, *backend.Instance) {
	t.Helper()
	m, err := ep.ModelInitialize(&testModel{name: "test", doc: doc})
	if err != nil {
		t.Fatalf("model initialize: %v", err)
	}
	inst, err := ep.ModelInstanceInitialize(m, &testInstance{name: "test_0", kind: modelconfig.KindCPU})
	if err != nil {
		t.Fatalf("instance initialize: %v", err)
	}
	return m, inst
}

func TestModelInitializeSchemaPairing(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "count mismatch",
			doc: `{"name": "test",
				"inputs": [{"name": "a", "datatype": "FP32", "dims": [1]},
				          {"name": "b", "datatype": "FP32", "dims": [1]}],
				"outputs": [{"name": "out", "datatype": "FP32", "dims": [1]}]}`,
			want: "one output per input",
		},
		{
			name: "datatype mismatch",
			doc: `{"name": "test",
				"inputs": [{"name": "a", "datatype": "FP32", "dims": [1]}],
				"outputs": [{"name": "out", "datatype": "INT32", "dims": [1]}]}`,
			want: "datatype",
		},
		{
			name: "dims mismatch",
			doc: `{"name": "test",
				"inputs": [{"name": "a", "datatype": "FP32", "dims": [2]}],
				"outputs": [{"name": "out", "datatype": "FP32", "dims": [3]}]}`,
			want: "dims",
		},
		{
			name: "greeting on non-bytes input",
			doc: `{"name": "test",
				"inputs": [{"name": "a", "datatype": "FP32", "dims": [1]}],
				"outputs": [{"name": "out", "datatype": "FP32", "dims": [1]}],
				"parameters": {"greeting": "hi "}}`,
			want: "not BYTES",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ep := startBackend(t)
			_, err := ep.ModelInitialize(&testModel{name: "test", doc: tc.doc})
			if err == nil {
				t.Fatalf("expected configuration error")
			}
			if !backend.IsConfiguration(err) {
				t.Fatalf("expected configuration kind, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestInstanceInitializeRejectsGPU(t *testing.T) {
	ep := startBackend(t)
	m, err := ep.ModelInitialize(&testModel{name: "test", doc: bytesDoc})
	if err != nil {
		t.Fatalf("model initialize: %v", err)
	}
	_, err = ep.ModelInstanceInitialize(m, &testInstance{name: "test_0", kind: modelconfig.KindGPU, device: 0})
	if err == nil {
		t.Fatalf("expected resource error for GPU placement")
	}
	if !backend.IsResource(err) {
		t.Fatalf("expected resource kind, got %v", err)
	}
}

func TestExecuteEchoesBytes(t *testing.T) {
	ep := startBackend(t)
	_, inst := loadModel(t, ep, bytesDoc)

	req := hostsim.NewRequest("r1").AddBytesInput("prompt", tensor.Shape{3}, []string{"foo", "bar", "baz"})
	if err := ep.ModelInstanceExecute(inst, []backend.HostRequest{req}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	oc := req.Outcome()
	if oc == nil || oc.Response == nil {
		t.Fatalf("expected a response outcome, got %+v", oc)
	}
	out := oc.Response.Output("output")
	if out == nil {
		t.Fatalf("missing output tensor")
	}
	if !out.Shape.Equal(tensor.Shape{3}) {
		t.Fatalf("output shape = %v, want [3]", out.Shape)
	}
	elems, err := tensor.DecodeStrings(out.Data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := []string{"foo", "bar", "baz"}
	for i, e := range elems {
		if e != want[i] {
			t.Fatalf("element %d = %q, want %q", i, e, want[i])
		}
	}
}

func TestExecuteAppliesGreeting(t *testing.T) {
	ep := startBackend(t)
	_, inst := loadModel(t, ep, greetingDoc)

	req := hostsim.NewRequest("r1").AddBytesInput("prompt", tensor.Shape{2}, []string{"alice", "bob"})
	if err := ep.ModelInstanceExecute(inst, []backend.HostRequest{req}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	oc := req.Outcome()
	if oc == nil || oc.Response == nil {
		t.Fatalf("expected a response outcome, got %+v", oc)
	}
	elems, err := tensor.DecodeStrings(oc.Response.Output("output").Data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := []string{"hello alice", "hello bob"}
	for i, e := range elems {
		if e != want[i] {
			t.Fatalf("element %d = %q, want %q", i, e, want[i])
		}
	}
}

func TestExecuteCopiesFixedWidthData(t *testing.T) {
	ep := startBackend(t)
	_, inst := loadModel(t, ep, fp32Doc)

	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	req := hostsim.NewRequest("r1").AddInput("in", tensor.FP32, tensor.Shape{4}, data)
	if err := ep.ModelInstanceExecute(inst, []backend.HostRequest{req}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	oc := req.Outcome()
	if oc == nil || oc.Response == nil {
		t.Fatalf("expected a response outcome, got %+v", oc)
	}
	out := oc.Response.Output("out")
	if len(out.Data) != 16 {
		t.Fatalf("output length = %d, want 16", len(out.Data))
	}
	for i := range data {
		if out.Data[i] != data[i] {
			t.Fatalf("byte %d = %d, want %d", i, out.Data[i], data[i])
		}
	}
	// Output must be a copy, not an alias of the input buffer.
	data[0] = 0xFF
	if out.Data[0] == 0xFF {
		t.Fatalf("output aliases the input buffer")
	}
}

func TestExecuteResolvesBadRequestAndCountsRuns(t *testing.T) {
	ep := startBackend(t)
	_, inst := loadModel(t, ep, bytesDoc)

	// Length prefix claims 100 bytes but only 2 follow.
	bad := make([]byte, 6)
	binary.LittleEndian.PutUint32(bad, 100)
	badReq := hostsim.NewRequest("bad").AddInput("prompt", tensor.Bytes, tensor.Shape{1}, bad)
	goodReq := hostsim.NewRequest("good").AddBytesInput("prompt", tensor.Shape{1}, []string{"ok"})

	if err := ep.ModelInstanceExecute(inst, []backend.HostRequest{badReq, goodReq}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if oc := badReq.Outcome(); oc == nil || oc.Err == nil {
		t.Fatalf("bad request should resolve with an error, got %+v", oc)
	} else if oc.Err.Kind != backend.KindSchema {
		t.Fatalf("bad request error kind = %s, want %s", oc.Err.Kind, backend.KindSchema)
	}
	if oc := goodReq.Outcome(); oc == nil || oc.Response == nil {
		t.Fatalf("good request should resolve with a response, got %+v", oc)
	}
	if n := Executions(inst); n != 1 {
		t.Fatalf("executions = %d, want 1", n)
	}
}
