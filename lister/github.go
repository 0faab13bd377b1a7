// Package lister enumerates repositories on the source host.
package lister

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v82/github"
	"golang.org/x/oauth2"
)

const (
	defaultMaxRetries = 5
	defaultBackoff    = time.Second
	maxBackoff        = 2 * time.Minute
	perPage           = 100
)

var ErrTokenRequired = errors.New("a token is required")

// Config is the configuration of the GitHub lister.
type Config struct {
	// APIURL is the GitHub Enterprise API URL, api.github.com is used if empty
	APIURL string
	// Token used for API requests, anonymous requests are made if empty
	Token string
	// MaxRetries of a single page request on rate limits and server errors
	MaxRetries int
}

// Error is returned when listing fails.
type Error struct {
	Op    string
	Owner string
	Err   error
}

func (e *Error) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("unable to %s err:%s", e.Op, e.Err)
	}
	return fmt.Sprintf("unable to %s of %s err:%s", e.Op, e.Owner, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// GitHub lists repositories through the GitHub REST API.
type GitHub struct {
	client     *github.Client
	authed     bool
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger

	viewerOnce sync.Once
	viewer     string
}

// NewGitHub returns lister for github.com or the configured enterprise API.
func NewGitHub(conf Config, log *slog.Logger) (*GitHub, error) {
	if log == nil {
		log = slog.Default()
	}

	httpClient := http.DefaultClient
	if conf.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conf.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if conf.APIURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(conf.APIURL, conf.APIURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api url err:%w", err)
		}
	}

	maxRetries := conf.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &GitHub{
		client:     client,
		authed:     conf.Token != "",
		maxRetries: maxRetries,
		backoff:    defaultBackoff,
		log:        log,
	}, nil
}

// ListRepositories returns names of all repositories owned by the given
// user or organization. Private repositories are included when the token
// has access to them.
func (g *GitHub) ListRepositories(ctx context.Context, owner string) ([]string, error) {
	var account *github.User
	_, err := g.withRetry(ctx, "get account", func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		account, resp, err = g.client.Users.Get(ctx, owner)
		return resp, err
	})
	if err != nil {
		return nil, &Error{Op: "get account", Owner: owner, Err: err}
	}

	var repos []*github.Repository
	switch {
	case account.GetType() == "Organization":
		repos, err = g.listByOrg(ctx, owner)
	case strings.EqualFold(owner, g.viewerLogin(ctx)):
		// only the authenticated endpoint returns private repositories of the user
		repos, err = g.listByViewer(ctx)
	default:
		repos, err = g.listByUser(ctx, owner)
	}
	if err != nil {
		return nil, &Error{Op: "list repositories", Owner: owner, Err: err}
	}

	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.GetName())
	}

	g.log.Debug("listed repositories", "owner", owner, "type", account.GetType(), "count", len(names))
	return names, nil
}

// ListStarred returns full names (owner/name) of repositories starred by the
// authenticated user.
func (g *GitHub) ListStarred(ctx context.Context) ([]string, error) {
	if !g.authed {
		return nil, &Error{Op: "list starred repositories", Err: ErrTokenRequired}
	}

	opt := &github.ActivityListStarredOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var names []string
	for {
		var starred []*github.StarredRepository
		resp, err := g.withRetry(ctx, "list starred", func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			starred, resp, err = g.client.Activity.ListStarred(ctx, "", opt)
			return resp, err
		})
		if err != nil {
			return nil, &Error{Op: "list starred repositories", Err: err}
		}

		for _, s := range starred {
			names = append(names, s.GetRepository().GetFullName())
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}

	g.log.Debug("listed starred repositories", "count", len(names))
	return names, nil
}

func (g *GitHub) listByOrg(ctx context.Context, org string) ([]*github.Repository, error) {
	opt := &github.RepositoryListByOrgOptions{
		Type:        "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	return g.paginate(ctx, "list org repositories", &opt.ListOptions, func() ([]*github.Repository, *github.Response, error) {
		return g.client.Repositories.ListByOrg(ctx, org, opt)
	})
}

func (g *GitHub) listByUser(ctx context.Context, user string) ([]*github.Repository, error) {
	opt := &github.RepositoryListByUserOptions{
		// only repos owned by the user, not collaborations
		Type:        "owner",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	return g.paginate(ctx, "list user repositories", &opt.ListOptions, func() ([]*github.Repository, *github.Response, error) {
		return g.client.Repositories.ListByUser(ctx, user, opt)
	})
}

func (g *GitHub) listByViewer(ctx context.Context) ([]*github.Repository, error) {
	opt := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	return g.paginate(ctx, "list own repositories", &opt.ListOptions, func() ([]*github.Repository, *github.Response, error) {
		return g.client.Repositories.ListByAuthenticatedUser(ctx, opt)
	})
}

// paginate calls list until there is no next page, list must read the page
// from given opt.
func (g *GitHub) paginate(ctx context.Context, op string, opt *github.ListOptions,
	list func() ([]*github.Repository, *github.Response, error),
) ([]*github.Repository, error) {
	var all []*github.Repository
	for {
		var repos []*github.Repository
		resp, err := g.withRetry(ctx, op, func() (*github.Response, error) {
			var (
				resp *github.Response
				err  error
			)
			repos, resp, err = list()
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, repos...)

		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opt.Page = resp.NextPage
	}
}

// viewerLogin returns login of the authenticated user or empty string
func (g *GitHub) viewerLogin(ctx context.Context) string {
	if !g.authed {
		return ""
	}
	g.viewerOnce.Do(func() {
		user, _, err := g.client.Users.Get(ctx, "")
		if err != nil {
			g.log.Debug("unable to get authenticated user", "err", err)
			return
		}
		g.viewer = user.GetLogin()
	})
	return g.viewer
}

// withRetry retries call on rate limits and server errors
func (g *GitHub) withRetry(ctx context.Context, op string, call func() (*github.Response, error)) (*github.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}

		wait, retry := g.retryWait(err, attempt)
		if !retry {
			return resp, err
		}
		lastErr = err

		g.log.Warn("github api request failed, retrying", "op", op, "attempt", attempt+1, "wait", wait, "err", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("max retries exceeded err:%w", lastErr)
}

func (g *GitHub) retryWait(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		// add 1s buffer
		return time.Until(rateLimitErr.Rate.Reset.Time) + time.Second, true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return abuseErr.GetRetryAfter(), true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode >= http.StatusInternalServerError {
		return g.backoffFor(attempt), true
	}

	return 0, false
}

// backoffFor returns exponential backoff with 10% jitter
func (g *GitHub) backoffFor(attempt int) time.Duration {
	backoff := float64(g.backoff) * math.Pow(2, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	backoff += backoff * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(backoff)
}
