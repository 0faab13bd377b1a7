package lister

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// newTestServer serves the subset of the GitHub API used by the lister.
// 'acme' is an organization with two pages of repositories, 'alice' is a user
// and 'me' is the authenticated user.
func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	flaky := &atomic.Int32{}
	mux := http.NewServeMux()
	var server *httptest.Server

	json := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}

	mux.HandleFunc("GET /api/v3/users/acme", func(w http.ResponseWriter, r *http.Request) {
		json(w, `{"login":"acme","type":"Organization"}`)
	})
	mux.HandleFunc("GET /api/v3/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			json(w, `[{"name":"gadgets","full_name":"acme/gadgets"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/orgs/acme/repos?page=2&per_page=100>; rel="next"`, server.URL))
		json(w, `[{"name":"widgets","full_name":"acme/widgets"},{"name":"sprockets","full_name":"acme/sprockets"}]`)
	})
	mux.HandleFunc("GET /api/v3/users/alice", func(w http.ResponseWriter, r *http.Request) {
		json(w, `{"login":"alice","type":"User"}`)
	})
	mux.HandleFunc("GET /api/v3/users/alice/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "owner" {
			http.Error(w, `{"message":"bad type"}`, http.StatusBadRequest)
			return
		}
		json(w, `[{"name":"foo","full_name":"alice/foo"}]`)
	})
	mux.HandleFunc("GET /api/v3/users/me", func(w http.ResponseWriter, r *http.Request) {
		json(w, `{"login":"me","type":"User"}`)
	})
	mux.HandleFunc("GET /api/v3/user", func(w http.ResponseWriter, r *http.Request) {
		json(w, `{"login":"me","type":"User"}`)
	})
	mux.HandleFunc("GET /api/v3/user/repos", func(w http.ResponseWriter, r *http.Request) {
		json(w, `[{"name":"public","full_name":"me/public"},{"name":"secret","full_name":"me/secret","private":true}]`)
	})
	mux.HandleFunc("GET /api/v3/user/starred", func(w http.ResponseWriter, r *http.Request) {
		json(w, `[{"starred_at":"2024-01-01T00:00:00Z","repo":{"name":"foo","full_name":"alice/foo"}},{"starred_at":"2024-01-02T00:00:00Z","repo":{"name":"bar","full_name":"bob/bar"}}]`)
	})
	mux.HandleFunc("GET /api/v3/users/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flaky.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json(w, `{"login":"flaky","type":"User"}`)
	})
	mux.HandleFunc("GET /api/v3/users/flaky/repos", func(w http.ResponseWriter, r *http.Request) {
		json(w, `[]`)
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, flaky
}

func newTestLister(t *testing.T, url, token string) *GitHub {
	t.Helper()

	g, err := NewGitHub(Config{APIURL: url, Token: token, MaxRetries: 3}, nil)
	if err != nil {
		t.Fatalf("unable to create lister err:%v", err)
	}
	g.backoff = time.Millisecond
	return g
}

func TestGitHub_ListRepositories(t *testing.T) {
	server, _ := newTestServer(t)

	tests := []struct {
		name  string
		token string
		owner string
		want  []string
	}{
		{"organization-paginated", "t", "acme", []string{"widgets", "sprockets", "gadgets"}},
		{"user", "t", "alice", []string{"foo"}},
		{"user-without-token", "", "alice", []string{"foo"}},
		{"authenticated-user", "t", "me", []string{"public", "secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestLister(t, server.URL, tt.token)

			got, err := g.ListRepositories(context.Background(), tt.owner)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListRepositories() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGitHub_ListRepositories_unknownOwner(t *testing.T) {
	server, _ := newTestServer(t)
	g := newTestLister(t, server.URL, "t")

	_, err := g.ListRepositories(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	var lErr *Error
	if !errors.As(err, &lErr) || lErr.Owner != "ghost" {
		t.Errorf("expected *Error for ghost, got %v", err)
	}
}

func TestGitHub_ListRepositories_retry(t *testing.T) {
	server, flaky := newTestServer(t)
	g := newTestLister(t, server.URL, "t")

	got, err := g.ListRepositories(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no repositories, got %v", got)
	}
	if n := flaky.Load(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestGitHub_ListStarred(t *testing.T) {
	server, _ := newTestServer(t)

	g := newTestLister(t, server.URL, "t")
	got, err := g.ListStarred(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"alice/foo", "bob/bar"}, got); diff != "" {
		t.Errorf("ListStarred() mismatch (-want +got):\n%s", diff)
	}

	g = newTestLister(t, server.URL, "")
	if _, err := g.ListStarred(context.Background()); !errors.Is(err, ErrTokenRequired) {
		t.Errorf("expected ErrTokenRequired, got %v", err)
	}
}
