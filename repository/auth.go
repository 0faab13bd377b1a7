package repository

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const loadCredsScript = `#!/bin/sh

case "$1" in
  Username*) echo "$REPO_USERNAME" ;;
  Password*) echo "$REPO_PASSWORD" ;;
esac
`

const credsLoaderName = "git-replicate-creds-loader.sh"

const credsDirMode fs.FileMode = 0700

// AuthEnv returns environment variables which make git and git-lfs answer
// https credential prompts with given username and password. The askpass
// script is (re)written to dir which must only be accessible by the current
// user.
// nil is returned if password is empty.
func AuthEnv(dir, username, password string) ([]string, error) {
	if password == "" {
		return nil, nil
	}
	// username is required
	if username == "" {
		username = "-"
	}

	loader, err := ensureCredsLoader(dir)
	if err != nil {
		return nil, fmt.Errorf("unable to write load creds script file err:%w", err)
	}

	return []string{
		fmt.Sprintf(`GIT_ASKPASS=%s`, loader),
		fmt.Sprintf(`REPO_USERNAME=%s`, username),
		fmt.Sprintf(`REPO_PASSWORD=%s`, password),
	}, nil
}

// ensureCredsLoader always writes a fresh script, a file already present in
// dir is never trusted. The script is renamed into place so a symlink at the
// target path is replaced rather than followed.
func ensureCredsLoader(dir string) (string, error) {
	credsLoader := filepath.Join(dir, credsLoaderName)

	if err := os.MkdirAll(dir, credsDirMode); err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if info.Mode().Perm()&0077 != 0 {
		return "", fmt.Errorf("creds dir %s must not be accessible by other users, mode %v", dir, info.Mode().Perm())
	}

	tmp, err := os.CreateTemp(dir, ".creds-loader-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(loadCredsScript); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0700); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), credsLoader); err != nil {
		return "", err
	}

	return credsLoader, nil
}
