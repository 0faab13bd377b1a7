// Package destination talks to the Gitea instance repositories are
// replicated to.
package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"code.gitea.io/sdk/gitea"

	"github.com/utilitywarehouse/git-replicate/giturl"
)

// Existence is the result of an existence check. Unknown means the check
// itself failed and nothing can be assumed.
type Existence int

const (
	Unknown Existence = iota
	Exists
	Absent
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// ErrConflict is wrapped by creation errors when the destination rejects the
// name because something with that name already exists.
var ErrConflict = errors.New("name already taken")

// Config is the destination configuration. All fields except PushLFS are
// required, there are no defaults.
type Config struct {
	// URL of the Gitea instance e.g. https://gitea.example.com
	URL string `yaml:"url" toml:"url" json:"url"`
	// Token is the API token used to check and create accounts and repositories
	Token string `yaml:"token" toml:"token" json:"token"`
	// Username and Password are embedded in the push URL
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
	// PushLFS pushes all LFS objects after the mirror push
	PushLFS bool `yaml:"push_lfs" toml:"push_lfs" json:"push_lfs"`
}

// Validate will verify all required fields are set
func (c Config) Validate() error {
	var errs []error

	if c.URL == "" {
		errs = append(errs, fmt.Errorf("destination url is required"))
	} else if !strings.HasPrefix(c.URL, "https://") && !strings.HasPrefix(c.URL, "http://") {
		errs = append(errs, fmt.Errorf("destination url '%s' must be http or https", giturl.Redact(c.URL)))
	}
	if c.Token == "" {
		errs = append(errs, fmt.Errorf("destination token is required"))
	}
	if c.Username == "" {
		errs = append(errs, fmt.Errorf("destination username is required"))
	}
	if c.Password == "" {
		errs = append(errs, fmt.Errorf("destination password is required"))
	}

	return errors.Join(errs...)
}

// Gitea is the destination API client.
type Gitea struct {
	api  *gitea.Client
	conf Config
	log  *slog.Logger
}

// NewGitea returns client for the configured Gitea instance. The server
// version is not queried so creating the client never makes a request.
func NewGitea(conf Config, log *slog.Logger) (*Gitea, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	api, err := gitea.NewClient(strings.TrimRight(conf.URL, "/"),
		gitea.SetToken(conf.Token),
		gitea.SetGiteaVersion(""),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create gitea client err:%w", err)
	}

	return &Gitea{api: api, conf: conf, log: log}, nil
}

// AccountExists checks whether an organization or a user with given name
// exists.
func (g *Gitea) AccountExists(ctx context.Context, name string) (Existence, error) {
	g.api.SetContext(ctx)

	_, resp, err := g.api.GetOrg(name)
	ex, err := existence(resp, err)
	if ex != Absent {
		return ex, err
	}

	// name might be a user account
	_, resp, err = g.api.GetUserInfo(name)
	return existence(resp, err)
}

// CreateAccount creates a private organization with placeholder metadata.
func (g *Gitea) CreateAccount(ctx context.Context, name string) error {
	g.api.SetContext(ctx)

	_, resp, err := g.api.CreateOrg(gitea.CreateOrgOption{
		Name:        name,
		FullName:    name,
		Description: fmt.Sprintf("Mirror of %s", name),
		Visibility:  gitea.VisibleTypePrivate,
	})
	if err != nil {
		return creationError(resp, err)
	}

	g.log.Info("destination organization created", "org", name)
	return nil
}

// RepoExists checks whether repository exists under given owner.
func (g *Gitea) RepoExists(ctx context.Context, owner, name string) (Existence, error) {
	g.api.SetContext(ctx)

	_, resp, err := g.api.GetRepo(owner, name)
	return existence(resp, err)
}

// CreateRepo creates an empty private repository under owner. If owner is
// the configured user the repository is created in the user's namespace.
func (g *Gitea) CreateRepo(ctx context.Context, owner, name string) error {
	g.api.SetContext(ctx)

	opt := gitea.CreateRepoOption{
		Name:    name,
		Private: true,
	}

	var (
		resp *gitea.Response
		err  error
	)
	if strings.EqualFold(owner, g.conf.Username) {
		_, resp, err = g.api.CreateRepo(opt)
	} else {
		_, resp, err = g.api.CreateOrgRepo(owner, opt)
	}
	if err != nil {
		return creationError(resp, err)
	}

	g.log.Info("destination repository created", "repo", owner+"/"+name)
	return nil
}

// PushURL returns the credential bearing URL to push the repository to.
// It must only be logged through giturl.Redact.
func (g *Gitea) PushURL(owner, name string) (string, error) {
	u, err := giturl.RepoURL(g.conf.URL, owner, name)
	if err != nil {
		return "", err
	}
	return giturl.WithCredentials(u, g.conf.Username, g.conf.Password)
}

// PushLFS returns true if LFS objects should be pushed after the mirror push.
func (g *Gitea) PushLFS() bool {
	return g.conf.PushLFS
}

func existence(resp *gitea.Response, err error) (Existence, error) {
	if err == nil {
		return Exists, nil
	}
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return Absent, nil
	}
	return Unknown, err
}

// creationError maps 409 and a 422 about a taken name to ErrConflict. Gitea
// answers 422 for other validation failures as well (reserved or invalid
// names) which must not be treated as conflicts.
func creationError(resp *gitea.Response, err error) error {
	if resp == nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case http.StatusUnprocessableEntity:
		if strings.Contains(strings.ToLower(err.Error()), "already exist") {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
