package repopool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utilitywarehouse/git-replicate/internal/process"
	"github.com/utilitywarehouse/git-replicate/repository"
)

// Lister enumerates repositories on the source host
type Lister interface {
	ListRepositories(ctx context.Context, owner string) ([]string, error)
	ListStarred(ctx context.Context) ([]string, error)
}

// ListingError is returned when targets can't be enumerated. There is
// nothing to iterate over so it is fatal for the run.
type ListingError struct {
	// Owner is empty for the starred list
	Owner string
	Err   error
}

func (e *ListingError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("unable to list starred repositories err:%s", e.Err)
	}
	return fmt.Sprintf("unable to list repositories of %s err:%s", e.Owner, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// InvalidTarget is an input which can't be parsed as "owner/name"
type InvalidTarget struct {
	Input string
	Err   error
}

// ExplicitTargets parses given "owner/name" inputs. malformed inputs are
// returned separately and never stop the run.
func ExplicitTargets(raw []string) ([]repository.Target, []InvalidTarget) {
	var (
		targets []repository.Target
		invalid []InvalidTarget
	)
	for _, r := range raw {
		t, err := repository.ParseTarget(r)
		if err != nil {
			invalid = append(invalid, InvalidTarget{Input: r, Err: err})
			continue
		}
		targets = append(targets, t)
	}
	return targets, invalid
}

// AccountTargets pairs every owner with each of its listed repositories.
func AccountTargets(ctx context.Context, l Lister, owners []string) ([]repository.Target, []InvalidTarget, error) {
	var raw []string
	for _, owner := range owners {
		names, err := l.ListRepositories(ctx, owner)
		if err != nil {
			return nil, nil, &ListingError{Owner: owner, Err: err}
		}
		for _, name := range names {
			raw = append(raw, owner+"/"+name)
		}
	}

	targets, invalid := ExplicitTargets(raw)
	return targets, invalid, nil
}

// StarredTargets returns repositories starred by the authenticated user
func StarredTargets(ctx context.Context, l Lister) ([]repository.Target, []InvalidTarget, error) {
	fullNames, err := l.ListStarred(ctx)
	if err != nil {
		return nil, nil, &ListingError{Err: err}
	}

	targets, invalid := ExplicitTargets(fullNames)
	return targets, invalid, nil
}

// LocalTargets returns targets of all existing local mirrors under root
func LocalTargets(ctx context.Context, runner process.Runner, root string, log *slog.Logger) ([]repository.Target, error) {
	targets, err := repository.ListMirrors(ctx, runner, root, log)
	if err != nil {
		return nil, &ListingError{Owner: "local mirrors at " + root, Err: err}
	}
	return targets, nil
}

// Dedup concatenates target lists dropping repeated targets, the first
// occurrence is kept.
func Dedup(lists ...[]repository.Target) []repository.Target {
	seen := make(map[repository.Target]bool)

	var out []repository.Target
	for _, list := range lists {
		for _, t := range list {
			if seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
