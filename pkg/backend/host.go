package backend

import (
	"io"
	"strconv"

	"github.com/kevmodo/triton-go/pkg/modelconfig"
	"github.com/kevmodo/triton-go/pkg/tensor"
)

// The host hands the backend opaque handles. This file declares the only
// accessors and mutators the backend may use on them; the backend never
// inspects a handle beyond this surface and never holds one past the call
// window the contract grants (requests: until their outcome is reported,
// models and instances: until their finalize call).

// APIVersion versions the host/backend contract. Major bumps break the
// contract; minor bumps add to it.
type APIVersion struct {
	Major int
	Minor int
}

// CurrentAPIVersion is the contract version this package implements.
var CurrentAPIVersion = APIVersion{Major: 1, Minor: 2}

// CompatibleWith reports whether a plugin built against version v can run
// under a host exposing hostVersion: same major, and the host must offer at
// least the minor surface the plugin was built with.
func (v APIVersion) CompatibleWith(hostVersion APIVersion) bool {
	return v.Major == hostVersion.Major && v.Minor <= hostVersion.Minor
}

func (v APIVersion) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// HostBackend is the handle passed to Initialize.
type HostBackend interface {
	// Name is the host's name for this backend.
	Name() string
	// APIVersion is the contract version the host speaks.
	APIVersion() APIVersion
	// Parameters carries host-supplied backend-level settings.
	Parameters() map[string]string
	// LogSink receives the backend's structured log records. The host owns
	// log routing; may be nil, in which case the backend logs to stderr.
	LogSink() io.Writer
}

// HostModel is the handle passed to ModelInitialize and valid until the
// matching ModelFinalize.
type HostModel interface {
	Name() string
	Version() int64
	// Repository is the directory holding the model's artifacts.
	Repository() string
	// ConfigDocument returns the model configuration as a JSON document.
	ConfigDocument() ([]byte, error)
}

// HostInstance is the handle passed to ModelInstanceInitialize.
type HostInstance interface {
	Name() string
	Kind() modelconfig.DeviceKind
	DeviceID() int
}

// HostRequest is the handle for one inference request, valid until exactly
// one terminal outcome has been reported for it.
type HostRequest interface {
	// ID is the host's correlation id for the request.
	ID() string
	// InputNames lists the inputs the request carries.
	InputNames() []string
	// Input resolves one named input.
	Input(name string) (HostInput, error)
	// NewResponse starts the success outcome.
	NewResponse() (HostResponse, error)
	// ReportError is the terminal no-success outcome.
	ReportError(kind ErrorKind, msg string) error
}

// InputProperties describes one request input.
type InputProperties struct {
	Name     string
	DataType tensor.DataType
	Shape    tensor.Shape
	Memory   tensor.MemoryKind
	DeviceID int
	ByteSize int64
}

// HostInput is one named input tensor of a request. Its buffer is
// host-owned and read-only for the duration of the execute call.
type HostInput interface {
	Properties() (InputProperties, error)
	Buffer() ([]byte, error)
}

// HostResponse accumulates output tensors and is either sent (ownership of
// all output buffers transfers to the host) or released.
type HostResponse interface {
	// OutputBuffer allocates a host-owned buffer of exactly byteSize bytes
	// for a named output tensor and returns it for the backend to fill.
	OutputBuffer(name string, dt tensor.DataType, shape tensor.Shape, byteSize int64) ([]byte, error)
	// Send delivers the response. At most once; the backend must not touch
	// any output buffer afterwards.
	Send() error
	// Release abandons an unsent response.
	Release() error
}
