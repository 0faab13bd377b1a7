package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/utilitywarehouse/git-replicate/auth"
	"github.com/utilitywarehouse/git-replicate/destination"
	"github.com/utilitywarehouse/git-replicate/internal/process"
	"github.com/utilitywarehouse/git-replicate/lister"
	"github.com/utilitywarehouse/git-replicate/replication"
	"github.com/utilitywarehouse/git-replicate/repopool"
	"github.com/utilitywarehouse/git-replicate/repository"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": slog.Level(-8),
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Sources: cli.EnvVars("GIT_REPLICATE_CONFIG"),
			Value:   "config.toml",
			Usage:   "Path to the config file (toml, yaml or json).",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Value:   "info",
			Usage:   "Log level",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write prometheus metrics of the run to this file.",
		},
	}
}

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "account",
			Usage: "User or organization to mirror all repositories of, can be repeated.",
		},
		&cli.StringSliceFlag{
			Name:  "repository",
			Usage: "Repository to mirror as 'owner/name', can be repeated.",
		},
		&cli.StringFlag{
			Name:    "base-dir",
			Sources: cli.EnvVars("GIT_REPLICATE_OUTPUT_DIR"),
			Usage:   "Base dir of the local mirrors.",
		},
		&cli.StringFlag{
			Name:  "source-url",
			Usage: "Base URL of the source git host.",
		},
		&cli.StringFlag{
			Name:  "source-api-url",
			Usage: "GitHub Enterprise API URL.",
		},
		&cli.StringFlag{
			Name:  "source-token",
			Usage: "Token for the source host, GITHUB_TOKEN, GH_TOKEN and gh cli are used if not set.",
		},
	}
}

func destinationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dest-url",
			Sources: cli.EnvVars("GITEA_URL"),
			Usage:   "URL of the Gitea instance.",
		},
		&cli.StringFlag{
			Name:    "dest-token",
			Sources: cli.EnvVars("GITEA_TOKEN"),
			Usage:   "Gitea API token.",
		},
		&cli.StringFlag{
			Name:    "dest-username",
			Sources: cli.EnvVars("GITEA_USERNAME"),
			Usage:   "Gitea username used to push.",
		},
		&cli.StringFlag{
			Name:    "dest-password",
			Sources: cli.EnvVars("GITEA_PASSWORD"),
			Usage:   "Gitea password used to push.",
		},
		&cli.BoolFlag{
			Name:  "push-lfs",
			Usage: "Push LFS objects after the mirror push.",
		},
	}
}

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// app holds everything a command needs for a run
type app struct {
	conf       *repopool.Config
	runner     process.Runner
	reconciler *repository.Reconciler
	lister     *lister.GitHub
	pool       *repopool.Pool
	registry   *prometheus.Registry
	// private dir holding the askpass script, removed after the run
	credsDir string
}

func (a *app) cleanup() {
	if a.credsDir == "" {
		return
	}
	if err := os.RemoveAll(a.credsDir); err != nil {
		logger.Warn("unable to remove creds dir", "path", a.credsDir, "err", err)
	}
}

func main() {
	// values in .env are only defaults, real env wins
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("unable to load .env file", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "git-replicate",
		Usage: "git-replicate mirrors GitHub repositories locally and replicates them to Gitea.",
		Flags: globalFlags(),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// set log level according to argument
			if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
				loggerLevel.Set(v)
			}
			logger = logger.With("run", uuid.NewString())
			slog.SetDefault(logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			newCommand("download", "Mirror all repositories of configured accounts and repositories locally.", false, runDownload),
			newCommand("download-repo", "Mirror a single repository locally.", false, runDownloadRepo,
				&cli.StringFlag{Name: "owner", Usage: "Owner of the repository.", Required: true},
				&cli.StringFlag{Name: "repo", Usage: "Name of the repository.", Required: true},
			),
			newCommand("download-starred", "Mirror repositories starred by the authenticated user locally.", false, runStarred),
			newCommand("mirror", "Mirror configured repositories locally and replicate them to the destination.", true, runDownload),
			newCommand("mirror-starred", "Mirror starred repositories locally and replicate them to the destination.", true, runStarred),
			newCommand("upload", "Replicate existing local mirrors to the destination.", true, runUpload),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error("failed to run app", "err", err)
		os.Exit(1)
	}
}

func newCommand(name, usage string, replicate bool, run func(context.Context, *cli.Command, *app) (*repopool.Result, error), extra ...cli.Flag) *cli.Command {
	flags := append(targetFlags(), destinationFlags()...)
	flags = append(flags, extra...)

	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := setup(ctx, c, replicate)
			if a != nil {
				defer a.cleanup()
			}
			if err != nil {
				return err
			}

			res, err := run(ctx, c, a)
			if err != nil {
				return err
			}
			res.PrintSummary(os.Stdout)

			if a.registry != nil {
				if err := prometheus.WriteToTextfile(c.String("metrics-file"), a.registry); err != nil {
					logger.Error("unable to write metrics file", "err", err)
				}
			}

			// per target failures don't change the exit code
			if res.Cancelled {
				return fmt.Errorf("run interrupted err:%w", context.Cause(ctx))
			}
			return nil
		},
	}
}

func setup(ctx context.Context, c *cli.Command, replicate bool) (*app, error) {
	conf, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if replicate {
		if err := conf.ValidateDestination(); err != nil {
			return nil, &ConfigError{Field: "destination", Message: "is required for this command", Err: err}
		}
	}

	a := &app{conf: conf}

	if c.String("metrics-file") != "" {
		a.registry = prometheus.NewRegistry()
		repository.EnableMetrics("", a.registry)
		replication.EnableMetrics("", a.registry)
		repopool.EnableMetrics("", a.registry)
	}

	token, source, err := auth.ResolveToken(ctx, conf.Source.Token, conf.Source.GithubApp(), sourceHost(conf.Source.URL))
	if err != nil {
		return nil, err
	}
	logger.Debug("source token resolved", "source", source)

	// never prompt for credentials
	envs := []string{"GIT_TERMINAL_PROMPT=0"}
	// MkdirTemp creates the dir with 0700 under a random name
	a.credsDir, err = os.MkdirTemp("", "git-replicate-")
	if err != nil {
		return nil, fmt.Errorf("unable to create creds dir err:%w", err)
	}
	authEnvs, err := repository.AuthEnv(a.credsDir, "x-access-token", token)
	if err != nil {
		return a, err
	}
	envs = append(envs, authEnvs...)

	a.runner = process.New("git", envs, logger.With("logger", "git"))

	a.reconciler, err = repository.NewReconciler(conf.ReconcilerConfig(), a.runner, logger.With("logger", "mirror"))
	if err != nil {
		return a, &ConfigError{Message: "mirror", Err: err}
	}

	a.lister, err = lister.NewGitHub(lister.Config{APIURL: conf.Source.APIURL, Token: token}, logger.With("logger", "lister"))
	if err != nil {
		return a, &ConfigError{Field: "source.api_url", Message: "invalid", Err: err}
	}

	var replicator repopool.Replicator
	if replicate {
		dest, err := destination.NewGitea(*conf.Destination, logger.With("logger", "destination"))
		if err != nil {
			return a, &ConfigError{Field: "destination", Message: "invalid", Err: err}
		}
		replicator = replication.New(dest, a.runner, dest.PushLFS(), logger.With("logger", "replication"))
	}

	a.pool = repopool.New(a.reconciler, replicator, logger)
	return a, nil
}

// runDownload mirrors all repositories of configured accounts followed by
// explicit repositories
func runDownload(ctx context.Context, _ *cli.Command, a *app) (*repopool.Result, error) {
	accounts := a.conf.Accounts()
	if len(accounts) == 0 && len(a.conf.Repositories) == 0 {
		return nil, &ConfigError{Field: "users, organizations, repositories", Message: "at least one is required"}
	}

	accountTargets, invalid, err := repopool.AccountTargets(ctx, a.lister, accounts)
	if err != nil {
		return nil, err
	}
	explicit, invalidExplicit := repopool.ExplicitTargets(a.conf.Repositories)
	invalid = append(invalid, invalidExplicit...)

	targets := repopool.Dedup(accountTargets, explicit)
	logger.Info("starting run", "targets", len(targets), "invalid", len(invalid))

	return a.pool.Run(ctx, targets, invalid...), nil
}

func runDownloadRepo(ctx context.Context, c *cli.Command, a *app) (*repopool.Result, error) {
	target, err := repository.ParseTarget(c.String("owner") + "/" + c.String("repo"))
	if err != nil {
		return nil, err
	}
	return a.pool.Run(ctx, []repository.Target{target}), nil
}

func runStarred(ctx context.Context, _ *cli.Command, a *app) (*repopool.Result, error) {
	targets, invalid, err := repopool.StarredTargets(ctx, a.lister)
	if err != nil {
		return nil, err
	}
	targets = repopool.Dedup(targets)
	logger.Info("starting run", "targets", len(targets), "invalid", len(invalid))

	return a.pool.Run(ctx, targets, invalid...), nil
}

// runUpload replicates explicit repositories if any are configured and all
// local mirrors otherwise
func runUpload(ctx context.Context, _ *cli.Command, a *app) (*repopool.Result, error) {
	if len(a.conf.Repositories) > 0 {
		targets, invalid := repopool.ExplicitTargets(a.conf.Repositories)
		return a.pool.Upload(ctx, repopool.Dedup(targets), invalid...), nil
	}

	targets, err := repopool.LocalTargets(ctx, a.runner, a.conf.OutputDir, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("starting upload", "targets", len(targets))

	return a.pool.Upload(ctx, targets), nil
}

func sourceHost(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return "github.com"
	}
	return u.Hostname()
}
