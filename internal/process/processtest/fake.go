// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"strings"
	"sync"

	"github.com/utilitywarehouse/git-replicate/internal/process"
)

// Response is returned for every command whose arguments start with the
// key it is registered under.
type Response struct {
	Stdout string
	Err    error
}

// Call is a recorded invocation.
type Call struct {
	Dir  string
	Args []string
}

// String renders call as "<args joined by space>" which is what tests compare.
func (c Call) String() string {
	return strings.Join(c.Args, " ")
}

// Fake records every command and replies from Responses. Commands without
// a matching response succeed with empty output. Hook, if set, runs before
// the response is looked up and may be used to create files on disk.
type Fake struct {
	mu        sync.Mutex
	Calls     []Call
	Responses map[string]Response
	Hook      func(dir string, args []string)
}

func (f *Fake) Run(ctx context.Context, dir string, args ...string) (process.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Dir: dir, Args: append([]string(nil), args...)})
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		hook(dir, args)
	}

	res := process.Result{Dir: dir, Args: args}
	if err := ctx.Err(); err != nil {
		return res, &process.Error{Cmd: strings.Join(args, " "), ExitCode: -1, Err: err}
	}

	resp, ok := f.lookup(strings.Join(args, " "))
	if !ok {
		return res, nil
	}
	res.Stdout = resp.Stdout
	if resp.Err != nil {
		res.ExitCode = 1
		return res, &process.Error{Cmd: strings.Join(process.RedactArgs(args), " "), ExitCode: 1, Err: resp.Err}
	}
	return res, nil
}

// Commands returns recorded calls rendered as strings.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, c := range f.Calls {
		out = append(out, c.String())
	}
	return out
}

// longest registered prefix wins
func (f *Fake) lookup(cmd string) (Response, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		best  string
		found bool
	)
	for k := range f.Responses {
		if strings.HasPrefix(cmd, k) && (!found || len(k) > len(best)) {
			best, found = k, true
		}
	}
	if !found {
		return Response{}, false
	}
	return f.Responses[best], true
}
