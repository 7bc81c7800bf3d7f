package main

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/config/sentry"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
	"gitlab.com/gitlab-org/gitmirror/internal/invocation"
	glog "gitlab.com/gitlab-org/gitmirror/internal/log"
	"gitlab.com/gitlab-org/gitmirror/internal/mirror"
)

// runPush performs one synchronous push attempt for one (repo, slave) pair
// and records its outcome. Exit code 0 means the transfer succeeded and no
// fatal condition was seen.
func runPush(ctx context.Context, cfg config.Cfg, inv invocation.Context, slave, repoArg string) int {
	logger := glog.Default().WithField("command", "push")

	repo, err := git.NewRepository(cfg, git.TrimGitSuffix(repoArg))
	if err != nil {
		logger.WithError(err).Error("resolve repository")
		return 1
	}

	if inv.IsRemote() {
		if err := mirror.NewRegistry(cfg).Authorize(ctx, repo, slave); err != nil {
			logger.WithError(err).Error("authorization failed")
			return 1
		}
	}

	trace, err := glog.NewMirrorLogger(cfg.Logging.Dir)
	if err != nil {
		logger.WithError(err).Error("open trace log")
		return 1
	}

	// A human is watching when the gateway-forwarded identity is present
	// or when we run on a terminal; give them the raw transfer output as
	// it happens.
	var tee io.Writer
	if inv.IsRemote() || isatty.IsTerminal(os.Stderr.Fd()) {
		tee = os.Stderr
	}

	result, err := mirror.NewExecutor(cfg, trace, tee).Push(ctx, repo, slave)
	if err != nil {
		logger.WithError(err).Error("mirror push")
		return 1
	}

	if err := mirror.Record(repo, slave, result.Lines, invocation.SessionID()); err != nil {
		logger.WithError(err).Error("record push status")
		return 1
	}

	if result.Fatal() {
		sentry.CaptureProblem("mirror push ended in fatal condition", map[string]string{
			"repository": repo.Name(),
			"slave":      slave,
		})
	}

	if result.Failed() {
		return 1
	}

	return 0
}
