package tools

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// WorkerStatus describes the configured extraction worker.
type WorkerStatus struct {
	Binary    string   `json:"binary"`
	Args      []string `json:"args,omitempty"`
	Installed bool     `json:"installed"`
	Path      string   `json:"path,omitempty"`
	Version   string   `json:"version,omitempty"`
	// Missing lists file arguments (such as the worker script) that do not
	// exist on disk.
	Missing []string `json:"missing,omitempty"`
}

// Ready reports whether the worker can be started.
func (s WorkerStatus) Ready() bool {
	return s.Installed && len(s.Missing) == 0
}

// DetectWorker looks the worker binary up on PATH, asks it for a version
// and checks that script-like arguments exist.
func DetectWorker(ctx context.Context, binary string, args []string) WorkerStatus {
	status := WorkerStatus{Binary: binary, Args: args}

	path, err := exec.LookPath(binary)
	if err != nil {
		return status
	}
	status.Installed = true
	status.Path = path

	for _, arg := range args {
		if strings.HasPrefix(arg, "-") || !strings.ContainsAny(arg, "/.") {
			continue
		}
		if _, err := os.Stat(arg); err != nil {
			status.Missing = append(status.Missing, arg)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "--version").CombinedOutput()
	if err == nil {
		version := strings.TrimSpace(string(out))
		if len(version) > 100 {
			version = version[:100]
		}
		// Extract first line
		if idx := strings.IndexByte(version, '\n'); idx > 0 {
			version = version[:idx]
		}
		status.Version = version
	}

	return status
}
