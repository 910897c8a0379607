package backend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for reporting to the host. Initialization,
// configuration, and resource errors are load-time fatal (for the plugin,
// one model, or one instance respectively); schema and computation errors
// are scoped to a single request and never abort a batch.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInitialization
	KindConfiguration
	KindResource
	KindSchema
	KindComputation
)

func (k ErrorKind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindConfiguration:
		return "configuration"
	case KindResource:
		return "resource"
	case KindSchema:
		return "schema"
	case KindComputation:
		return "computation"
	default:
		return "internal"
	}
}

// backendError carries a kind alongside a formatted message. The wrapped
// error (if the format used %w) stays reachable through errors.Is/As.
type backendError struct {
	kind ErrorKind
	err  error
}

func (e *backendError) Error() string { return e.err.Error() }
func (e *backendError) Unwrap() error { return e.err }

func newError(kind ErrorKind, format string, args ...any) error {
	return &backendError{kind: kind, err: fmt.Errorf(format, args...)}
}

// ErrInitialization reports that the plugin itself cannot load.
func ErrInitialization(format string, args ...any) error {
	return newError(KindInitialization, format, args...)
}

// ErrConfiguration reports that one model's configuration is unusable; the
// host surfaces it as a load failure for that model only.
func ErrConfiguration(format string, args ...any) error {
	return newError(KindConfiguration, format, args...)
}

// ErrResource reports that one model instance cannot acquire what it needs.
func ErrResource(format string, args ...any) error {
	return newError(KindResource, format, args...)
}

// ErrSchema reports a per-request mismatch between a request and the
// model's declared configuration.
func ErrSchema(format string, args ...any) error {
	return newError(KindSchema, format, args...)
}

// ErrComputation reports a per-request failure inside the execution engine.
func ErrComputation(format string, args ...any) error {
	return newError(KindComputation, format, args...)
}

// ErrInternal reports a contract violation or a failure with no better
// classification.
func ErrInternal(format string, args ...any) error {
	return newError(KindInternal, format, args...)
}

// KindOf extracts the kind of an error produced by this package. Errors
// from elsewhere classify as internal.
func KindOf(err error) ErrorKind {
	var be *backendError
	if errors.As(err, &be) {
		return be.kind
	}
	return KindInternal
}

func isKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	var be *backendError
	return errors.As(err, &be) && be.kind == kind
}

// IsInitialization reports whether err is an initialization error.
func IsInitialization(err error) bool { return isKind(err, KindInitialization) }

// IsConfiguration reports whether err is a per-model configuration error.
func IsConfiguration(err error) bool { return isKind(err, KindConfiguration) }

// IsResource reports whether err is a per-instance resource error.
func IsResource(err error) bool { return isKind(err, KindResource) }

// IsSchema reports whether err is a per-request schema error.
func IsSchema(err error) bool { return isKind(err, KindSchema) }

// IsComputation reports whether err is a per-request computation error.
func IsComputation(err error) bool { return isKind(err, KindComputation) }
