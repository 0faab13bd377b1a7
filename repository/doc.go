// Package repository keeps local bare mirror clones of source repositories.
//
// Every target is mirrored to <root>/<owner>/<name>.git. If that dir doesn't
// exist the repository is cloned with `git clone --mirror` followed by
// `git lfs install --local` and `git lfs fetch --all`, otherwise all refs are
// fetched with `git fetch --all --prune` followed by `git lfs fetch --all`.
// Since the mirror is created with `--mirror`, everything in `refs/*` on the
// remote is mirrored into `refs/*` in the local repository.
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
//	rec, err := repository.NewReconciler(repository.Config{Root: "/srv/mirrors"}, runner, logger)
//	if err != nil {
//		panic(err)
//	}
//	action, err := rec.Reconcile(ctx, repository.Target{Owner: "acme", Name: "widgets"})
package repository
