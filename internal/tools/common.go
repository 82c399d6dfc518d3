package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// DefaultWaitDelay bounds how long Run keeps waiting for output pipes after
// the process was killed. Grandchildren that inherited the pipes would
// otherwise keep Wait blocked.
const DefaultWaitDelay = 5 * time.Second

// maxStderr caps the stderr kept in a Result. Older output is dropped.
const maxStderr = 64 << 10

// Spec defines how to invoke an external program.
type Spec struct {
	Name    string
	Binary  string
	Args    []string
	Timeout time.Duration
	// WaitDelay defaults to DefaultWaitDelay.
	WaitDelay time.Duration
}

// Result captures the outcome of a program run.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   string
	Duration time.Duration
	// TimedOut is set when the process was killed because Timeout elapsed.
	TimedOut bool
	Error    error
}

// OutputLine represents a single line of real-time output.
type OutputLine struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
}

// CheckInstalled verifies that a binary exists on PATH.
func CheckInstalled(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("%s is not installed or not on PATH", binary)
	}
	return path, nil
}

// Run executes a program and waits for it. Stdout is collected whole.
// Stderr is collected and, when output is non-nil, sent line by line to
// output, which Run closes before returning.
func Run(ctx context.Context, spec Spec, output chan<- OutputLine) *Result {
	stderrLines := &lineWriter{ctx: ctx, stream: "stderr", out: output}
	defer stderrLines.close()

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}
	stderrLines.ctx = runCtx

	start := time.Now()

	cmd := exec.CommandContext(runCtx, spec.Binary, spec.Args...)
	cmd.WaitDelay = spec.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: maxStderr}
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(stderr, stderrLines)

	if err := cmd.Start(); err != nil {
		return &Result{ExitCode: -1, Error: fmt.Errorf("start %s: %w", spec.Binary, err), Duration: time.Since(start)}
	}

	waitErr := cmd.Wait()
	stderrLines.flush()

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Error:    waitErr,
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	if res.TimedOut || ctx.Err() != nil {
		res.ExitCode = -1
	}
	return res
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// lineWriter splits writes into lines and forwards them to out. Sends give
// up once ctx is done so a stalled reader cannot block the process copy.
type lineWriter struct {
	ctx    context.Context
	stream string
	out    chan<- OutputLine

	mu      sync.Mutex
	partial []byte
	closed  bool
}

func (l *lineWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil || l.closed {
		return len(p), nil
	}
	l.partial = append(l.partial, p...)
	for {
		i := bytes.IndexByte(l.partial, '\n')
		if i < 0 {
			break
		}
		l.send(string(bytes.TrimRight(l.partial[:i], "\r")))
		l.partial = l.partial[i+1:]
	}
	return len(p), nil
}

func (l *lineWriter) send(line string) {
	select {
	case l.out <- OutputLine{Timestamp: time.Now(), Stream: l.stream, Line: line}:
	case <-l.ctx.Done():
	}
}

func (l *lineWriter) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil || l.closed || len(l.partial) == 0 {
		return
	}
	l.send(string(l.partial))
	l.partial = nil
}

func (l *lineWriter) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil && !l.closed {
		close(l.out)
	}
	l.closed = true
}
