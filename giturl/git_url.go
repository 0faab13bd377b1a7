// Package giturl parses, compares and builds git remote URLs.
package giturl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// remote URL forms in the order they are tried. Owner and repository name
// can contain ASCII letters, digits, '.', '-' and '_'.
var forms = []struct {
	scheme string // empty if the scheme is captured by the pattern
	rgx    *regexp.Regexp
}{
	// user@host.xz:path/to/repo.git
	{"scp", regexp.MustCompile(`^(?P<user>[\w\-\.]+)@(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)?):(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)},
	// ssh://user@host.xz[:port]/path/to/repo.git
	{"ssh", regexp.MustCompile(`^ssh://(?P<user>[\w\-\.]+)@(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)??)/(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)},
	// http[s]://host.xz[:port]/path/to/repo.git
	{"", regexp.MustCompile(`^(?P<scheme>https?)://(?P<host>([\w\-]+\.?[\w\-]+)+(\:\d+)?)/(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)},
	// file:///path/to/repo.git
	{"local", regexp.MustCompile(`^file:///(?P<path>([\w\-\.]+\/)*)(?P<repo>[\w\-\.]+(\.git)?)$`)},
}

// URL is a parsed remote URL
type URL struct {
	Scheme string // scp, ssh, https, http or local
	User   string // empty for http(s) and local
	Host   string // host or host:port
	Path   string // owner path without leading or trailing '/'
	Repo   string // repository name, .git suffix kept if present
}

// Parse parses remote URL in any of the scp, ssh, http(s) or file forms.
// Input is lower cased and trimmed before matching.
func Parse(rawURL string) (*URL, error) {
	rawURL = strings.TrimRight(strings.ToLower(strings.TrimSpace(rawURL)), "/")

	for _, f := range forms {
		m := f.rgx.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		group := func(name string) string {
			if i := f.rgx.SubexpIndex(name); i >= 0 {
				return m[i]
			}
			return ""
		}

		u := &URL{
			Scheme: f.scheme,
			User:   group("user"),
			Host:   group("host"),
			Path:   strings.Trim(group("path"), "/"),
			Repo:   group("repo"),
		}
		if u.Scheme == "" {
			u.Scheme = group("scheme")
		}

		if u.Path == "" {
			return nil, fmt.Errorf("repo path (owner) cannot be empty in %q", Redact(rawURL))
		}
		if u.Repo == "" || u.Repo == ".git" {
			return nil, fmt.Errorf("repo name is invalid in %q", Redact(rawURL))
		}
		return u, nil
	}

	return nil, fmt.Errorf("unsupported remote url %q, expected scp, ssh, http(s) or file form", Redact(rawURL))
}

// Equals returns whether or not the two parsed git URLs are equivalent.
// git URLs can be represented in multiple schemes so if host, path and repo name
// of URLs are same then those URLs are for the same remote repository
func (lURL *URL) Equals(rURL *URL) bool {
	return lURL.Host == rURL.Host &&
		lURL.Path == rURL.Path &&
		(lURL.Repo == rURL.Repo ||
			strings.TrimSuffix(lURL.Repo, ".git") == strings.TrimSuffix(rURL.Repo, ".git"))
}

// SameRawURL returns whether or not the two remote URL strings are equivalent
func SameRawURL(lRepo, rRepo string) (bool, error) {
	lURL, err := Parse(lRepo)
	if err != nil {
		return false, err
	}
	rURL, err := Parse(rRepo)
	if err != nil {
		return false, err
	}

	return lURL.Equals(rURL), nil
}

// RepoURL returns the URL of the repository <owner>/<name>.git under the given
// base URL. base is a http(s) or file URL such as 'https://github.com'.
func RepoURL(base, owner, name string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("unable to parse base url err:%w", err)
	}
	switch u.Scheme {
	case "https", "http", "file":
	default:
		return "", fmt.Errorf("unsupported base url scheme %q, must be https, http or file", u.Scheme)
	}
	if u.Scheme != "file" && u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", Redact(base))
	}
	if owner == "" || name == "" {
		return "", fmt.Errorf("owner and repository name are required")
	}
	return u.JoinPath(owner, name+".git").String(), nil
}

// WithCredentials returns rawURL with given username and password set as
// its userinfo. The result must never be logged, use Redact.
func WithCredentials(rawURL, username, password string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("unable to parse url err:%w", err)
	}
	if username == "" && password == "" {
		return u.String(), nil
	}
	u.User = url.UserPassword(username, password)
	return u.String(), nil
}

// Redact returns rawURL with the password replaced with "xxxxx".
// unparsable input is returned as a fixed placeholder.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	return u.Redacted()
}
