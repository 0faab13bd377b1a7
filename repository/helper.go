package repository

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/utilitywarehouse/git-replicate/internal/process"
)

const defaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

func dirIsEmpty(path string) (bool, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return false, err
	}
	return len(dirents) == 0, nil
}

// withoutUserinfo drops credentials from remote URLs of mirrors
// created by older tools which embedded the token in the URL.
func withoutUserinfo(remote string) string {
	if !strings.Contains(remote, "://") {
		return remote
	}
	u, err := url.Parse(remote)
	if err != nil {
		return remote
	}
	u.User = nil
	return u.String()
}

func isBareRepo(ctx context.Context, runner process.Runner, dir string) (bool, error) {
	// bare repository doesn't have worktrees
	// err is expected here for dirs which are not repositories
	res, err := runner.Run(ctx, dir, "rev-parse", "--is-inside-git-dir")
	if err != nil || res.Stdout != "true" {
		return false, nil
	}

	res, err = runner.Run(ctx, dir, "rev-parse", "--is-bare-repository")
	if err != nil {
		return false, err
	}

	return strconv.ParseBool(res.Stdout)
}

// ListMirrors returns targets of all bare mirrors found under
// <root>/<owner>/<name>.git sorted by owner and name.
// directories which are not bare repositories are skipped.
func ListMirrors(ctx context.Context, runner process.Runner, root string, log *slog.Logger) ([]Target, error) {
	if log == nil {
		log = slog.Default()
	}

	owners, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("unable to read mirror root dir err:%w", err)
	}

	var targets []Target
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(root, owner.Name()))
		if err != nil {
			log.Error("unable to read owner dir, skipping", "path", filepath.Join(root, owner.Name()), "err", err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".git") {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), ".git")
			if name == "" {
				continue
			}

			fullPath := filepath.Join(root, owner.Name(), entry.Name())
			ok, err := isBareRepo(ctx, runner, fullPath)
			if err != nil {
				log.Error("unable to check if bare repo", "path", fullPath, "err", err)
				continue
			}
			if !ok {
				log.Debug("skipping non bare repository dir", "path", fullPath)
				continue
			}

			targets = append(targets, Target{Owner: owner.Name(), Name: name})
		}
	}

	return targets, nil
}
