package backend

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Context is the process-wide backend state: created by Initialize, shared
// read-only by every model and instance, torn down by Finalize. It is an
// explicit object rather than package globals so tests can construct and
// destroy independent backends.
type Context struct {
	name    string
	version APIVersion
	params  map[string]string
	log     zerolog.Logger
	metrics *Metrics

	mu       sync.Mutex
	cleanups []cleanup
	done     bool
}

type cleanup struct {
	name string
	fn   func() error
}

func newContext(hb HostBackend) *Context {
	sink := hb.LogSink()
	if sink == nil {
		sink = os.Stderr
	}
	params := hb.Parameters()
	if params == nil {
		params = map[string]string{}
	}
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(params["log_level"]); err == nil && params["log_level"] != "" {
		level = lv
	}
	log := zerolog.New(sink).Level(level).With().
		Timestamp().
		Str("backend", hb.Name()).
		Logger()
	return &Context{
		name:    hb.Name(),
		version: hb.APIVersion(),
		params:  params,
		log:     log,
		metrics: newMetrics(),
	}
}

// Name is the host's name for this backend.
func (c *Context) Name() string { return c.name }

// HostAPIVersion is the contract version the host reported at Initialize.
func (c *Context) HostAPIVersion() APIVersion { return c.version }

// Logger returns the backend's structured logger.
func (c *Context) Logger() zerolog.Logger { return c.log }

// Parameter returns a backend-level parameter with a default.
func (c *Context) Parameter(name, def string) string {
	if v, ok := c.params[name]; ok {
		return v
	}
	return def
}

// Metrics returns the backend's metric collectors.
func (c *Context) Metrics() *Metrics { return c.metrics }

// OnFinalize registers a cleanup. Cleanups run at Finalize in reverse
// registration order, mirroring acquisition order. Errors are logged, not
// propagated: teardown is best effort by contract.
func (c *Context) OnFinalize(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		c.log.Warn().Str("cleanup", name).Msg("cleanup registered after finalize; running immediately")
		if err := fn(); err != nil {
			c.log.Error().Err(err).Str("cleanup", name).Msg("cleanup failed")
		}
		return
	}
	c.cleanups = append(c.cleanups, cleanup{name: name, fn: fn})
}

// teardown runs all registered cleanups newest-first.
func (c *Context) teardown() {
	c.mu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.done = true
	c.mu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		start := time.Now()
		if err := cleanups[i].fn(); err != nil {
			c.log.Error().Err(err).Str("cleanup", cleanups[i].name).Msg("cleanup failed")
			continue
		}
		c.log.Debug().Str("cleanup", cleanups[i].name).Dur("took", time.Since(start)).Msg("cleanup done")
	}
}
