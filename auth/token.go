// Package auth resolves credentials used to talk to the source host.
package auth

import (
	"context"
	"fmt"
	"os"

	ghauth "github.com/cli/go-gh/v2/pkg/auth"
)

// TokenSource indicates where the token was found
type TokenSource string

const (
	TokenSourceConfig    TokenSource = "config"
	TokenSourceGithubApp TokenSource = "github-app"
	TokenSourceEnvGitHub TokenSource = "GITHUB_TOKEN"
	TokenSourceEnvGH     TokenSource = "GH_TOKEN"
	TokenSourceGHCLI     TokenSource = "gh-cli"
	TokenSourceNone      TokenSource = "none"
)

// ResolveToken finds a token for the source host.
// Priority order:
//  1. explicit token from flag or config file
//  2. GitHub App installation token if app is configured
//  3. GITHUB_TOKEN environment variable
//  4. GH_TOKEN environment variable
//  5. gh CLI auth for the host
//
// An empty token with TokenSourceNone is returned if nothing is found,
// public repositories can still be mirrored without it.
func ResolveToken(ctx context.Context, explicit string, app GithubApp, host string) (string, TokenSource, error) {
	if explicit != "" {
		return explicit, TokenSourceConfig, nil
	}

	if app.Configured() {
		token, err := app.InstallationToken(ctx, GithubAppTokenReqPermissions{
			Permissions: map[string]string{"contents": "read", "metadata": "read"},
		})
		if err != nil {
			return "", TokenSourceNone, fmt.Errorf("unable to get github app token err:%w", err)
		}
		return token.Token, TokenSourceGithubApp, nil
	}

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, TokenSourceEnvGitHub, nil
	}

	if token := os.Getenv("GH_TOKEN"); token != "" {
		return token, TokenSourceEnvGH, nil
	}

	if host == "" {
		host = "github.com"
	}
	if token, _ := ghauth.TokenForHost(host); token != "" {
		return token, TokenSourceGHCLI, nil
	}

	return "", TokenSourceNone, nil
}
