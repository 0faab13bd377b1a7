// Package replication pushes local mirrors to the destination, creating the
// destination account and repository when they are missing.
package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utilitywarehouse/git-replicate/destination"
	"github.com/utilitywarehouse/git-replicate/giturl"
	"github.com/utilitywarehouse/git-replicate/internal/process"
)

var (
	// ErrCheckFailed means an existence check was inconclusive, nothing is
	// created in that case.
	ErrCheckFailed = errors.New("existence check failed")
	// ErrAccountConflict means the account doesn't exist according to the
	// destination but its name can't be used to create one.
	ErrAccountConflict = errors.New("account name conflict")
	ErrCreateFailed    = errors.New("creation failed")
	ErrPushFailed      = errors.New("push failed")
)

// Step is the replication step which failed.
type Step string

const (
	StepAccount    Step = "ensure account"
	StepRepository Step = "ensure repository"
	StepPush       Step = "push"
)

// Error is returned when replication of a repository fails.
type Error struct {
	Org  string
	Repo string
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("unable to %s for %s/%s err:%s", e.Step, e.Org, e.Repo, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Destination is the API of the replication target.
type Destination interface {
	AccountExists(ctx context.Context, name string) (destination.Existence, error)
	CreateAccount(ctx context.Context, name string) error
	RepoExists(ctx context.Context, owner, name string) (destination.Existence, error)
	CreateRepo(ctx context.Context, owner, name string) error
	PushURL(owner, name string) (string, error)
}

// Orchestrator replicates local mirrors to the destination.
type Orchestrator struct {
	dest    Destination
	runner  process.Runner
	pushLFS bool
	log     *slog.Logger
}

// New returns Orchestrator. runner must run git.
func New(dest Destination, runner process.Runner, pushLFS bool, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{dest: dest, runner: runner, pushLFS: pushLFS, log: log}
}

// Replicate ensures the account and the repository exist on the destination
// and mirror pushes the local mirror at mirrorPath to it. Steps run in
// order and the first failure stops the replication, nothing created by
// earlier steps is removed.
func (o *Orchestrator) Replicate(ctx context.Context, org, repo, mirrorPath string) (err error) {
	start := time.Now()
	defer func() {
		recordReplication(org+"/"+repo, err == nil, start)
	}()

	if _, err := o.EnsureAccount(ctx, org, repo); err != nil {
		return err
	}
	if _, err := o.EnsureRepository(ctx, org, repo); err != nil {
		return err
	}
	return o.Push(ctx, org, repo, mirrorPath)
}

// EnsureAccount creates the account if it doesn't exist and returns whether
// it was created. repo is only used for error reporting.
func (o *Orchestrator) EnsureAccount(ctx context.Context, org, repo string) (bool, error) {
	ex, err := o.dest.AccountExists(ctx, org)
	switch ex {
	case destination.Exists:
		return false, nil
	case destination.Absent:
	default:
		return false, &Error{Org: org, Repo: repo, Step: StepAccount, Err: checkFailed(ex, err)}
	}

	o.log.Info("destination account does not exist, creating it", "org", org)
	if err := o.dest.CreateAccount(ctx, org); err != nil {
		if errors.Is(err, destination.ErrConflict) {
			return false, &Error{Org: org, Repo: repo, Step: StepAccount, Err: fmt.Errorf("%w: %w", ErrAccountConflict, err)}
		}
		return false, &Error{Org: org, Repo: repo, Step: StepAccount, Err: fmt.Errorf("%w: %w", ErrCreateFailed, err)}
	}
	return true, nil
}

// EnsureRepository creates the repository if it doesn't exist and returns
// whether it was created.
func (o *Orchestrator) EnsureRepository(ctx context.Context, org, repo string) (bool, error) {
	ex, err := o.dest.RepoExists(ctx, org, repo)
	switch ex {
	case destination.Exists:
		return false, nil
	case destination.Absent:
	default:
		return false, &Error{Org: org, Repo: repo, Step: StepRepository, Err: checkFailed(ex, err)}
	}

	o.log.Info("destination repository does not exist, creating it", "repo", org+"/"+repo)
	if err := o.dest.CreateRepo(ctx, org, repo); err != nil {
		return false, &Error{Org: org, Repo: repo, Step: StepRepository, Err: fmt.Errorf("%w: %w", ErrCreateFailed, err)}
	}
	return true, nil
}

// Push mirror pushes all refs of the local mirror, destination refs which
// don't exist locally are deleted. LFS objects are pushed after if enabled.
func (o *Orchestrator) Push(ctx context.Context, org, repo, mirrorPath string) error {
	pushURL, err := o.dest.PushURL(org, repo)
	if err != nil {
		return &Error{Org: org, Repo: repo, Step: StepPush, Err: fmt.Errorf("%w: %w", ErrPushFailed, err)}
	}

	o.log.Debug("pushing mirror", "repo", org+"/"+repo, "url", giturl.Redact(pushURL))

	// git push --mirror <url>
	if _, err := o.runner.Run(ctx, mirrorPath, "push", "--mirror", pushURL); err != nil {
		return &Error{Org: org, Repo: repo, Step: StepPush, Err: fmt.Errorf("%w: %w", ErrPushFailed, err)}
	}

	if o.pushLFS {
		// git lfs push --all <url>
		if _, err := o.runner.Run(ctx, mirrorPath, "lfs", "push", "--all", pushURL); err != nil {
			return &Error{Org: org, Repo: repo, Step: StepPush, Err: fmt.Errorf("%w: lfs: %w", ErrPushFailed, err)}
		}
	}

	o.log.Info("mirror pushed", "repo", org+"/"+repo)
	return nil
}

func checkFailed(ex destination.Existence, err error) error {
	if err == nil {
		return fmt.Errorf("%w: result %s", ErrCheckFailed, ex)
	}
	return fmt.Errorf("%w: %w", ErrCheckFailed, err)
}
