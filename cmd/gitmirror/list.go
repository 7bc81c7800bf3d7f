package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
	"gitlab.com/gitlab-org/gitmirror/internal/invocation"
	glog "gitlab.com/gitlab-org/gitmirror/internal/log"
	"gitlab.com/gitlab-org/gitmirror/internal/mirror"
)

// runList exposes the derived mirror topology of one repository for
// server-local scripting.
func runList(ctx context.Context, cfg config.Cfg, inv invocation.Context, what, repoArg string) int {
	logger := glog.Default().WithField("command", "list")

	if what != "master" && what != "slaves" {
		return usage(fmt.Sprintf("list %q: must be \"master\" or \"slaves\"", what))
	}

	repo, err := git.NewRepository(cfg, git.TrimGitSuffix(repoArg))
	if err != nil {
		logger.WithError(err).Error("resolve repository")
		return 1
	}

	registry := mirror.NewRegistry(cfg)

	switch what {
	case "master":
		master, err := registry.Master(ctx, repo)
		if err != nil {
			logger.WithError(err).Error("derive master")
			return 1
		}
		fmt.Fprintln(os.Stdout, master)
	case "slaves":
		slaves, err := registry.Slaves(ctx, repo)
		if err != nil {
			logger.WithError(err).Error("derive slaves")
			return 1
		}
		fmt.Fprintln(os.Stdout, strings.Join(slaves, " "))
	}

	return 0
}
