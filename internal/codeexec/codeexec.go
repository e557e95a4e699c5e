// Package codeexec runs model-written Python programs in a child
// process with a timeout and an output cap.
package codeexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// Config configures a [Runner].
type Config struct {
	// Interpreter is the program path. Default python3.
	Interpreter string
	// Args are passed before the program, which is read from stdin.
	// Default ["-"].
	Args           []string
	WorkingDir     string
	Timeout        time.Duration
	MaxOutputBytes int
	Logger         *slog.Logger
}

// Runner executes programs.
type Runner struct {
	interpreter    string
	args           []string
	workingDir     string
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.Args == nil {
		cfg.Args = []string{"-"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		interpreter:    cfg.Interpreter,
		args:           cfg.Args,
		workingDir:     cfg.WorkingDir,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         logger.With("component", "codeexec"),
	}
}

// Result is the outcome of one run. Stdout and Stderr are always
// populated, whatever the exit status.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Run executes code. An error is returned only when the interpreter
// could not be started; program failures are reported in Result.
func (r *Runner) Run(ctx context.Context, code string) (*Result, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("no code given")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.interpreter, r.args...)
	cmd.Dir = r.workingDir
	cmd.Stdin = strings.NewReader(code)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Grandchildren may hold the output pipes open after a kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:  truncateOutput(stdout.String(), r.maxOutputBytes),
		Stderr:  truncateOutput(stderr.String(), r.maxOutputBytes),
		Elapsed: time.Since(start),
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
	case err != nil:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", r.interpreter, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	r.logger.Debug("code executed",
		"exit_code", res.ExitCode,
		"timed_out", res.TimedOut,
		"elapsed", res.Elapsed.Round(time.Millisecond),
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
	)
	return res, nil
}

// Format renders a result for the model.
func (res *Result) Format() string {
	var b strings.Builder
	if res.TimedOut {
		b.WriteString("Execution timed out.\n")
	}
	fmt.Fprintf(&b, "Exit code: %d\n", res.ExitCode)
	if res.Stdout != "" {
		b.WriteString("stdout:\n")
		b.WriteString(res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if res.Stderr != "" {
		b.WriteString("stderr:\n")
		b.WriteString(res.Stderr)
	}
	if res.Stdout == "" && res.Stderr == "" {
		b.WriteString("(no output)")
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateOutput cuts s to at most maxBytes without splitting a rune.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[... output truncated ...]"
}
