package repository

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/utilitywarehouse/git-replicate/giturl"
)

// DefaultSourceURL is the base URL mirrors are cloned from if not configured.
const DefaultSourceURL = "https://github.com"

var ErrMalformedTarget = errors.New("invalid repository name format")

// Config is the configuration of the Reconciler.
type Config struct {
	// Root is the absolute path to the base dir where mirrors are kept as
	// <root>/<owner>/<name>.git
	Root string

	// SourceURL is the base URL of the source host, repository remote is
	// <source_url>/<owner>/<name>.git. default is https://github.com
	SourceURL string
}

// Target identifies a single repository on the source host.
type Target struct {
	Owner string
	Name  string
}

func (t Target) String() string {
	return t.Owner + "/" + t.Name
}

// ParseTarget parses "owner/name". input must have exactly two non-empty
// segments.
func ParseTarget(raw string) (Target, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrMalformedTarget, raw)
	}
	return Target{Owner: parts[0], Name: parts[1]}, nil
}

// MirrorPath returns the path of the local bare mirror of the target.
func MirrorPath(root string, t Target) string {
	return filepath.Join(root, t.Owner, t.Name+".git")
}

// ValidateAndApplyDefaults will verify config and set default values
func (c *Config) ValidateAndApplyDefaults() error {
	var errs []error

	if c.Root == "" {
		errs = append(errs, fmt.Errorf("mirror root dir is required"))
	} else if !filepath.IsAbs(c.Root) {
		errs = append(errs, fmt.Errorf("mirror root '%s' must be absolute", c.Root))
	}

	if c.SourceURL == "" {
		c.SourceURL = DefaultSourceURL
	}
	// building a dummy URL validates scheme and host of the base
	if _, err := giturl.RepoURL(c.SourceURL, "owner", "name"); err != nil {
		errs = append(errs, fmt.Errorf("invalid source url err:%w", err))
	}

	return errors.Join(errs...)
}
