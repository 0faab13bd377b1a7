// Package repopool runs batches of repositories through the mirror and
// replication pipeline.
//
// Targets are derived from explicit "owner/name" inputs, from every
// repository of an account, from the starred list of the authenticated user
// or from the mirrors which already exist locally. Targets are processed one
// at a time, a failing target is recorded in the Result and the batch moves
// on. Only listing errors stop a run since there is nothing to iterate.
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	runner := process.New("git", nil, logger)
//	reconciler, err := repository.NewReconciler(conf.ReconcilerConfig(), runner, logger)
//	if err != nil {
//		panic(err)
//	}
//
//	targets, invalid := repopool.ExplicitTargets(conf.Repositories)
//	res := repopool.New(reconciler, nil, logger).Run(ctx, targets, invalid...)
//	res.PrintSummary(os.Stdout)
package repopool
