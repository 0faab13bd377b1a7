package repopool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/utilitywarehouse/git-replicate/replication"
	"github.com/utilitywarehouse/git-replicate/repository"
)

// ErrOwnerBlocked is recorded for targets whose owner hit an account
// conflict earlier in the same run.
var ErrOwnerBlocked = errors.New("owner blocked by account conflict")

// Reconciler maintains local mirrors
type Reconciler interface {
	Reconcile(ctx context.Context, t repository.Target) (repository.Action, error)
	MirrorPath(t repository.Target) string
}

// Replicator pushes a local mirror to the destination
type Replicator interface {
	Replicate(ctx context.Context, org, repo, mirrorPath string) error
}

// Pool runs batches of targets one after the other. A failure of a target
// is recorded in the result and never stops the batch.
// A Pool is not safe for concurrent use.
type Pool struct {
	reconciler Reconciler
	replicator Replicator
	log        *slog.Logger
}

// New returns Pool. replicator is optional, without it targets are only
// mirrored locally.
func New(reconciler Reconciler, replicator Replicator, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{reconciler: reconciler, replicator: replicator, log: log}
}

// Run reconciles every target and replicates it if a replicator is set.
// Invalid inputs are recorded as failures before any target is processed.
// Run stops before the next target once ctx is cancelled.
func (p *Pool) Run(ctx context.Context, targets []repository.Target, invalid ...InvalidTarget) *Result {
	start := time.Now()
	res := newResult(invalid, p.log)
	blocked := make(map[string]error)

	for i, t := range targets {
		if ctx.Err() != nil {
			p.cancelled(res, len(targets)-i)
			break
		}

		out := Outcome{Input: t.String(), Target: t}
		log := p.log.With("repo", t.String())

		out.Action, out.MirrorErr = p.reconciler.Reconcile(ctx, t)
		if out.MirrorErr != nil {
			log.Error("unable to mirror repository", "action", out.Action, "err", out.MirrorErr)
		}

		if p.replicator != nil {
			switch {
			case errors.Is(out.MirrorErr, repository.ErrNoMirror):
				out.Skipped = "no local mirror"
			case blocked[t.Owner] != nil:
				out.Skipped = "owner blocked"
				out.ReplicationErr = fmt.Errorf("%w: %w", ErrOwnerBlocked, blocked[t.Owner])
			default:
				out.ReplicationErr = p.replicate(ctx, t, blocked)
				out.Replicated = out.ReplicationErr == nil
			}
			if out.ReplicationErr != nil {
				log.Error("unable to replicate repository", "err", out.ReplicationErr)
			}
		}

		res.add(out)
	}

	res.Duration = time.Since(start)
	recordRun(res)
	return res
}

// Upload replicates existing local mirrors without updating them first.
// Targets without a local mirror dir are never replicated so nothing is
// created on the destination for them.
func (p *Pool) Upload(ctx context.Context, targets []repository.Target, invalid ...InvalidTarget) *Result {
	start := time.Now()
	res := newResult(invalid, p.log)
	blocked := make(map[string]error)

	for i, t := range targets {
		if ctx.Err() != nil {
			p.cancelled(res, len(targets)-i)
			break
		}

		out := Outcome{Input: t.String(), Target: t}
		if err := localMirror(p.reconciler.MirrorPath(t)); err != nil {
			out.MirrorErr = &repository.MirrorError{Target: t, Op: "find local mirror of", Err: err}
			p.log.Error("unable to upload repository", "repo", t.String(), "err", out.MirrorErr)
		}

		switch {
		case p.replicator == nil:
			out.Skipped = "no destination"
			out.ReplicationErr = fmt.Errorf("destination is not configured")
		case out.MirrorErr != nil:
			out.Skipped = "no local mirror"
		case blocked[t.Owner] != nil:
			out.Skipped = "owner blocked"
			out.ReplicationErr = fmt.Errorf("%w: %w", ErrOwnerBlocked, blocked[t.Owner])
		default:
			out.ReplicationErr = p.replicate(ctx, t, blocked)
			out.Replicated = out.ReplicationErr == nil
		}
		if out.ReplicationErr != nil {
			p.log.Error("unable to replicate repository", "repo", t.String(), "err", out.ReplicationErr)
		}

		res.add(out)
	}

	res.Duration = time.Since(start)
	recordRun(res)
	return res
}

// localMirror returns error wrapping repository.ErrNoMirror if path is not
// a directory
func localMirror(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", repository.ErrNoMirror, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", repository.ErrNoMirror, path)
	}
	return nil
}

// replicate pushes the target and blocks its owner on account conflicts
func (p *Pool) replicate(ctx context.Context, t repository.Target, blocked map[string]error) error {
	err := p.replicator.Replicate(ctx, t.Owner, t.Name, p.reconciler.MirrorPath(t))
	if errors.Is(err, replication.ErrAccountConflict) {
		p.log.Warn("account conflict, skipping remaining repositories of the owner", "owner", t.Owner)
		blocked[t.Owner] = err
	}
	return err
}

func (p *Pool) cancelled(res *Result, remaining int) {
	res.Cancelled = true
	p.log.Warn("run cancelled, remaining targets not processed", "remaining", remaining)
}
