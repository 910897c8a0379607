package e2e

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kevmodo/triton-go/internal/echo"
	"github.com/kevmodo/triton-go/internal/hostsim"
)

// echoConfigJSON renders a minimal one-input, one-output BYTES config for
// a model directory. extra is spliced verbatim after the tensor schemas,
// e.g. a parameters or instances block.
func echoConfigJSON(name string, extra string) string {
	doc := fmt.Sprintf(`{
  "name": %q,
  "inputs": [{"name": "prompt", "datatype": "BYTES", "dims": [-1]}],
  "outputs": [{"name": "output", "datatype": "BYTES", "dims": [-1]}]%s
}`, name, extra)
	return doc
}

// writeModel lays out one model under the repository root: a config file
// plus a single numeric version directory.
func writeModel(t *testing.T, root, name, configFile, doc string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, "1"), 0o755); err != nil {
		t.Fatalf("mkdir model %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), []byte(doc), 0o644); err != nil {
		t.Fatalf("write config for %s: %v", name, err)
	}
}

// startEchoHost scans the repository root and starts an echo backend on
// it. Shutdown runs during test cleanup.
func startEchoHost(t *testing.T, root string, opts hostsim.Options) *hostsim.Host {
	t.Helper()
	if opts.LogSink == nil {
		opts.LogSink = io.Discard
	}
	repo, err := hostsim.Scan(root)
	if err != nil {
		t.Fatalf("scan repository: %v", err)
	}
	h := hostsim.New(repo, opts)
	if err := h.Start("echo", echo.New()); err != nil {
		t.Fatalf("start host: %v", err)
	}
	t.Cleanup(func() {
		if err := h.Shutdown(); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return h
}
