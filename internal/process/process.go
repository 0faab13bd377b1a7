// Package process runs git and git-lfs as child processes and returns their
// captured output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

const traceLevel = slog.Level(-8)

// Result is the captured outcome of a single command.
type Result struct {
	Dir      string
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner runs the configured executable with given args in dir.
// An empty dir runs the command in the current working directory.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (Result, error)
}

// Error is returned when a command could not be started or exited with
// non-zero status. Credentials embedded in URL arguments are redacted.
type Error struct {
	Cmd      string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("Run(%s): err:%s { stdout: %q, stderr: %q }", e.Cmd, e.Err, e.Stdout, e.Stderr)
}

func (e *Error) Unwrap() error { return e.Err }

// Exec is the Runner backed by os/exec.
type Exec struct {
	path string
	envs []string
	log  *slog.Logger
}

// New returns Exec for the given executable. envs are appended to the
// environment of the current process for every command.
func New(path string, envs []string, log *slog.Logger) *Exec {
	if log == nil {
		log = slog.Default()
	}
	return &Exec{path: path, envs: envs, log: log}
}

// Run runs the executable with given arguments on given CWD
func (e *Exec) Run(ctx context.Context, dir string, args ...string) (Result, error) {
	res := Result{Dir: dir, Args: args}

	cmdStr := e.path + " " + strings.Join(RedactArgs(args), " ")
	e.log.Log(ctx, traceLevel, "running command", "cwd", dir, "cmd", cmdStr)

	cmd := exec.CommandContext(ctx, e.path, args...)
	// force kill git & child process 5 seconds after sending it sigterm (when ctx is cancelled)
	cmd.WaitDelay = 5 * time.Second
	if dir != "" {
		cmd.Dir = dir
	}
	outbuf := bytes.NewBuffer(nil)
	errbuf := bytes.NewBuffer(nil)
	cmd.Stdout = outbuf
	cmd.Stderr = errbuf

	// git-lfs needs HOME and PATH from the parent environment
	cmd.Env = append(os.Environ(), e.envs...)

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)

	res.Stdout = strings.TrimSpace(outbuf.String())
	res.Stderr = strings.TrimSpace(errbuf.String())
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, &Error{
			Cmd:      cmdStr,
			ExitCode: res.ExitCode,
			Stdout:   redactText(res.Stdout),
			Stderr:   redactText(res.Stderr),
			Err:      err,
		}
	}
	e.log.Log(ctx, traceLevel, "command result", "stdout", res.Stdout, "stderr", res.Stderr, "time", res.Duration)

	return res, nil
}

// RedactArgs returns copy of args where password of any URL argument
// is replaced with "xxxxx".
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = redactText(a)
	}
	return out
}

func redactURL(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	return u.Redacted()
}

// redactText redacts every URL with credentials found in s. git echoes the
// remote URL in some errors so output is redacted word by word.
func redactText(s string) string {
	if !strings.Contains(s, "@") {
		return s
	}
	fields := strings.Fields(s)
	for _, f := range fields {
		trimmed := strings.Trim(f, `'":`)
		if r := redactURL(trimmed); r != trimmed {
			s = strings.ReplaceAll(s, trimmed, r)
		}
	}
	return s
}
