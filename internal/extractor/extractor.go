// Package extractor runs the external extraction worker against a local
// raster and parses the document it prints.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tikpoptv/terrahost/internal/tools"
)

// DefaultTimeout is the wall-clock limit for one worker run.
const DefaultTimeout = 5 * time.Minute

// Method tags sessions processed through this invoker.
const Method = "subprocess"

var (
	// ErrTimeout is returned when the worker exceeded its timeout and was
	// killed.
	ErrTimeout = errors.New("extraction worker timed out")

	// ErrWorkerFailed is returned when the worker could not start, exited
	// non-zero or reported an error in its document.
	ErrWorkerFailed = errors.New("extraction worker failed")

	// ErrInvalidOutput is returned when stdout is not exactly one JSON
	// object.
	ErrInvalidOutput = errors.New("invalid extraction output")
)

// Invoker is the extraction invoker.
type Invoker struct {
	binary  string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Invoker)

func WithTimeout(d time.Duration) Option {
	return func(i *Invoker) {
		if d > 0 {
			i.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) { i.logger = l }
}

// New builds an invoker that runs `binary args... <path>`.
func New(binary string, args []string, opts ...Option) *Invoker {
	i := &Invoker{
		binary:  binary,
		args:    append([]string(nil), args...),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Invoker) Binary() string { return i.binary }
func (i *Invoker) Args() []string { return i.args }

// Extract runs the worker on path. Worker stderr lines go to output when it
// is non-nil; Extract closes output before returning.
func (i *Invoker) Extract(ctx context.Context, path string, output chan<- tools.OutputLine) (*Document, error) {
	spec := tools.Spec{
		Name:    "extractor",
		Binary:  i.binary,
		Args:    append(append([]string(nil), i.args...), path),
		Timeout: i.timeout,
	}

	i.logger.Debug("starting extraction worker", "binary", i.binary, "path", path)
	res := tools.Run(ctx, spec, output)
	i.logger.Debug("extraction worker exited", "exit_code", res.ExitCode, "duration", res.Duration, "stdout_bytes", len(res.Stdout))

	if res.TimedOut {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, i.timeout)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkerFailed, err)
	}
	if res.ExitCode != 0 || res.Error != nil {
		return nil, fmt.Errorf("%w: exit code %d: %s", ErrWorkerFailed, res.ExitCode, diagnostic(res))
	}

	doc, err := Parse(res.Stdout)
	if err != nil {
		if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
			return nil, fmt.Errorf("%w (stderr: %s)", err, truncate(stderr, 500))
		}
		return nil, err
	}
	return doc, nil
}

// Parse decodes exactly one JSON object. A document with a top-level error
// is reported as ErrWorkerFailed.
func Parse(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidOutput)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: output is not a JSON object: %s", ErrInvalidOutput, truncate(string(trimmed), 120))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing content after document", ErrInvalidOutput)
	}

	if doc.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrWorkerFailed, doc.Error)
	}
	doc.Raw = trimmed
	return &doc, nil
}

// diagnostic picks the most useful text from a failed run: an error
// document on stdout, then stderr, then the wait error.
func diagnostic(res *tools.Result) string {
	var errDoc struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(bytes.TrimSpace(res.Stdout), &errDoc) == nil && errDoc.Error != "" {
		return errDoc.Error
	}
	if s := strings.TrimSpace(res.Stderr); s != "" {
		return truncate(s, 500)
	}
	if res.Error != nil {
		return res.Error.Error()
	}
	return "no diagnostic output"
}

// truncate keeps the end of s, where tracebacks put the actual error.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
