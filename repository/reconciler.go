package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/utilitywarehouse/git-replicate/giturl"
	"github.com/utilitywarehouse/git-replicate/internal/process"
)

// ErrNoMirror is wrapped by reconcile errors after which there is no usable
// local mirror for the target.
var ErrNoMirror = errors.New("no usable local mirror")

// Action is the reconcile path taken for a target.
type Action string

const (
	ActionClone  Action = "clone"
	ActionUpdate Action = "update"
)

// MirrorError is returned when a reconcile step fails.
type MirrorError struct {
	Target Target
	Op     string
	Err    error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("unable to %s %s err:%s", e.Op, e.Target, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }

// Reconciler makes sure a local bare mirror of the target exists and is
// up to date with the source.
type Reconciler struct {
	root      string
	sourceURL string
	runner    process.Runner
	log       *slog.Logger
}

// NewReconciler returns Reconciler which runs git through given runner.
func NewReconciler(conf Config, runner process.Runner, log *slog.Logger) (*Reconciler, error) {
	if err := conf.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	return &Reconciler{
		root:      conf.Root,
		sourceURL: conf.SourceURL,
		runner:    runner,
		log:       log,
	}, nil
}

// MirrorPath returns the path of the local bare mirror of the target.
func (r *Reconciler) MirrorPath(t Target) string {
	return MirrorPath(r.root, t)
}

// Reconcile will clone the target as bare mirror if its dir doesn't exist or
// fetch all refs and LFS objects into the existing mirror.
// Existence of the mirror dir is the only signal used to pick the path and
// nothing is ever deleted. If the returned error wraps ErrNoMirror the mirror
// can't be used, other errors mean the mirror exists but is not fully updated.
//
// On the update path an existing dir which is not a bare mirror of the
// target's remote fails the sanity check and neither fetch nor LFS fetch is
// attempted. Fetch and LFS fetch both run whenever the check passes, a failed
// fetch doesn't skip the LFS fetch.
func (r *Reconciler) Reconcile(ctx context.Context, t Target) (action Action, err error) {
	start := time.Now()
	defer func() {
		recordMirror(t.String(), action, err == nil, start)
	}()

	path := r.MirrorPath(t)

	remote, err := giturl.RepoURL(r.sourceURL, t.Owner, t.Name)
	if err != nil {
		return "", &MirrorError{Target: t, Op: "build remote url for", Err: fmt.Errorf("%w: %w", ErrNoMirror, err)}
	}

	_, err = os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return ActionClone, r.clone(ctx, t, path, remote)
	case err != nil:
		return "", &MirrorError{Target: t, Op: "stat mirror dir of", Err: fmt.Errorf("%w: %w", ErrNoMirror, err)}
	default:
		return ActionUpdate, r.update(ctx, t, path, remote)
	}
}

func (r *Reconciler) clone(ctx context.Context, t Target, path, remote string) error {
	log := r.log.With("repo", t.String(), "path", path)
	log.Info("mirror directory does not exist, cloning")

	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return &MirrorError{Target: t, Op: "create owner dir for", Err: fmt.Errorf("%w: %w", ErrNoMirror, err)}
	}

	// git clone --mirror <remote> <path>
	if _, err := r.runner.Run(ctx, "", "clone", "--mirror", remote, path); err != nil {
		return &MirrorError{Target: t, Op: "clone", Err: fmt.Errorf("%w: %w", ErrNoMirror, err)}
	}

	// LFS steps run only on a successful clone, their failures leave a
	// usable mirror behind
	var errs []error

	// git lfs install --local
	if _, err := r.runner.Run(ctx, path, "lfs", "install", "--local"); err != nil {
		errs = append(errs, &MirrorError{Target: t, Op: "install lfs hooks for", Err: err})
	}
	if err := r.lfsFetch(ctx, t, path); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		log.Info("mirror cloned")
	}
	return errors.Join(errs...)
}

func (r *Reconciler) update(ctx context.Context, t Target, path, remote string) error {
	log := r.log.With("repo", t.String(), "path", path)

	if err := r.sanityCheck(ctx, path, remote); err != nil {
		log.Error("existing mirror directory failed checks, remove it to re-clone", "err", err)
		return &MirrorError{Target: t, Op: "verify mirror of", Err: fmt.Errorf("%w: %w", ErrNoMirror, err)}
	}

	// fetch and LFS fetch are independent, both are always attempted
	var errs []error

	// git fetch --all --prune
	if _, err := r.runner.Run(ctx, path, "fetch", "--all", "--prune"); err != nil {
		errs = append(errs, &MirrorError{Target: t, Op: "fetch", Err: err})
	}
	if err := r.lfsFetch(ctx, t, path); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		log.Info("mirror updated")
	}
	return errors.Join(errs...)
}

func (r *Reconciler) lfsFetch(ctx context.Context, t Target, path string) error {
	// git lfs fetch --all origin
	if _, err := r.runner.Run(ctx, path, "lfs", "fetch", "--all", "origin"); err != nil {
		return &MirrorError{Target: t, Op: "fetch lfs objects of", Err: err}
	}
	return nil
}

// sanityCheck makes sure the existing dir is a bare repository mirroring
// the expected remote.
func (r *Reconciler) sanityCheck(ctx context.Context, path, remote string) error {
	if empty, err := dirIsEmpty(path); err != nil {
		return fmt.Errorf("can't list mirror directory err:%w", err)
	} else if empty {
		return fmt.Errorf("mirror directory is empty")
	}

	// git rev-parse --is-bare-repository
	res, err := r.runner.Run(ctx, path, "rev-parse", "--is-bare-repository")
	if err != nil {
		return fmt.Errorf("unable to verify bare repo err:%w", err)
	}
	if res.Stdout != "true" {
		return fmt.Errorf("mirror directory is not a bare repository")
	}

	// git config --get remote.origin.url
	res, err = r.runner.Run(ctx, path, "config", "--get", "remote.origin.url")
	if err != nil {
		return fmt.Errorf("can't get repo config remote.origin.url err:%w", err)
	}
	origin := withoutUserinfo(res.Stdout)
	if same, err := giturl.SameRawURL(origin, remote); err != nil || !same {
		return fmt.Errorf("mirror configured with different remote url %q, expected %q", origin, remote)
	}

	return nil
}
