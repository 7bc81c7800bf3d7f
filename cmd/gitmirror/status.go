package main

import (
	"context"
	"os"

	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
	"gitlab.com/gitlab-org/gitmirror/internal/invocation"
	glog "gitlab.com/gitlab-org/gitmirror/internal/log"
	"gitlab.com/gitlab-org/gitmirror/internal/mirror"
)

// runStatus reports persisted status records: one slave, all slaves of one
// repository, or in the server-side-only bulk mode all repositories at once.
func runStatus(ctx context.Context, cfg config.Cfg, inv invocation.Context, slave, repoArg string) int {
	logger := glog.Default().WithField("command", "status")

	if slave == mirror.HostPatternAll && repoArg == mirror.HostPatternAll {
		if inv.IsRemote() {
			return usage("status all all is a server-side command")
		}

		if err := mirror.ReportGlobal(os.Stdout, cfg.StorageRoot); err != nil {
			logger.WithError(err).Error("global status sweep")
			return 1
		}

		return 0
	}

	repo, err := git.NewRepository(cfg, git.TrimGitSuffix(repoArg))
	if err != nil {
		logger.WithError(err).Error("resolve repository")
		return 1
	}

	if inv.IsRemote() {
		if err := authorizeStatus(ctx, cfg, repo, slave); err != nil {
			logger.WithError(err).Error("authorization failed")
			return 1
		}
	}

	if err := mirror.Report(os.Stdout, repo, slave); err != nil {
		logger.WithError(err).Error("render status report")
		return 1
	}

	return 0
}

// authorizeStatus gates a remote caller's status read. Reading all slaves at
// once only requires a well-formed repository name; naming a specific slave
// additionally requires membership in the repository's slave set.
func authorizeStatus(ctx context.Context, cfg config.Cfg, repo *git.Repository, slave string) error {
	if slave == mirror.HostPatternAll {
		if !mirror.ValidRepoName(repo.Name()) {
			return &mirror.AuthError{Repo: repo.Name(), Host: slave, Reason: "invalid repository name"}
		}
		return nil
	}

	return mirror.NewRegistry(cfg).Authorize(ctx, repo, slave)
}
