package repopool

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/utilitywarehouse/git-replicate/auth"
	"github.com/utilitywarehouse/git-replicate/destination"
	"github.com/utilitywarehouse/git-replicate/repository"
)

// Config is the configuration of a replication run
type Config struct {
	// Users and Organizations whose repositories are mirrored
	Users         []string `yaml:"users" toml:"users" json:"users"`
	Organizations []string `yaml:"organizations" toml:"organizations" json:"organizations"`

	// Repositories is a list of explicit "owner/name" targets
	Repositories []string `yaml:"repositories" toml:"repositories" json:"repositories"`

	// OutputDir is the absolute path of the base dir where mirrors are kept
	// as <output_dir>/<owner>/<name>.git
	OutputDir string `yaml:"output_dir" toml:"output_dir" json:"output_dir"`

	Source SourceConfig `yaml:"source" toml:"source" json:"source"`

	// Destination is optional, it's only required by commands which replicate
	Destination *destination.Config `yaml:"destination" toml:"destination" json:"destination"`
}

// SourceConfig is the config of the host mirrors are cloned from
type SourceConfig struct {
	// URL is the base URL of the git remotes. default is https://github.com
	URL string `yaml:"url" toml:"url" json:"url"`
	// APIURL is the GitHub Enterprise API URL
	APIURL string `yaml:"api_url" toml:"api_url" json:"api_url"`
	Token  string `yaml:"token" toml:"token" json:"token"`

	GithubAppID             string `yaml:"github_app_id" toml:"github_app_id" json:"github_app_id"`
	GithubAppInstallationID string `yaml:"github_app_installation_id" toml:"github_app_installation_id" json:"github_app_installation_id"`
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path" toml:"github_app_private_key_path" json:"github_app_private_key_path"`
}

// GithubApp returns github app config of the source
func (sc SourceConfig) GithubApp() auth.GithubApp {
	return auth.GithubApp{
		AppID:          sc.GithubAppID,
		InstallationID: sc.GithubAppInstallationID,
		PrivateKeyPath: sc.GithubAppPrivateKeyPath,
		APIURL:         sc.APIURL,
	}
}

// Accounts returns configured users followed by organizations
func (conf *Config) Accounts() []string {
	accounts := make([]string, 0, len(conf.Users)+len(conf.Organizations))
	accounts = append(accounts, conf.Users...)
	return append(accounts, conf.Organizations...)
}

// ReconcilerConfig returns config for the mirror reconciler
func (conf *Config) ReconcilerConfig() repository.Config {
	return repository.Config{Root: conf.OutputDir, SourceURL: conf.Source.URL}
}

// ValidateAndApplyDefaults will verify config and set default values.
// destination is not validated here since not every command needs it,
// see ValidateDestination.
func (conf *Config) ValidateAndApplyDefaults() error {
	var errs []error

	if conf.OutputDir == "" {
		errs = append(errs, fmt.Errorf("output_dir is required"))
	} else if !filepath.IsAbs(conf.OutputDir) {
		errs = append(errs, fmt.Errorf("output_dir '%s' must be absolute", conf.OutputDir))
	}

	if conf.Source.URL == "" {
		conf.Source.URL = repository.DefaultSourceURL
	}

	// if any of the github app config is set all should be set
	sc := conf.Source
	if sc.GithubAppID != "" ||
		sc.GithubAppInstallationID != "" ||
		sc.GithubAppPrivateKeyPath != "" {
		if sc.GithubAppID == "" ||
			sc.GithubAppInstallationID == "" ||
			sc.GithubAppPrivateKeyPath == "" {
			errs = append(errs, fmt.Errorf("all of the Github app attribute is required"))
		}
	}

	for _, owner := range conf.Accounts() {
		if owner == "" {
			errs = append(errs, fmt.Errorf("user and organization names must not be empty"))
			break
		}
	}

	return errors.Join(errs...)
}

// ValidateDestination returns error if destination is missing or invalid
func (conf *Config) ValidateDestination() error {
	if conf.Destination == nil {
		return fmt.Errorf("destination config is required")
	}
	return conf.Destination.Validate()
}
