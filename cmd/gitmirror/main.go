package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitmirror/internal/command"
	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/config/sentry"
	"gitlab.com/gitlab-org/gitmirror/internal/invocation"
	glog "gitlab.com/gitlab-org/gitmirror/internal/log"
	"gitlab.com/gitlab-org/gitmirror/internal/version"
	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/tracing"
)

const usageText = `usage: gitmirror push <slave> <repo>
       gitmirror status <slave|all> <repo|all>
       gitmirror list <master|slaves> <repo>`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	glog.Configure(cfg.Logging.Format, cfg.Logging.Level)
	sentry.ConfigureSentry(version.GetVersion(), cfg.Logging.Config)
	defer sentry.Flush(2 * time.Second)

	tracing.Initialize(tracing.WithServiceName("gitmirror"))

	ctx, cancel := context.WithCancel(context.Background())
	// Deferred calls run LIFO: cancel must fire before WaitAllDone so the
	// per-command reaper goroutines can observe ctx.Done and finish.
	defer command.WaitAllDone()
	defer cancel()

	ctx = correlation.ContextWithCorrelation(ctx, uuid.New().String())

	inv := invocation.FromEnv()

	if len(args) != 3 {
		return usage("missing arguments")
	}

	verb, arg1, arg2 := args[0], args[1], args[2]

	switch verb {
	case "push":
		return runPush(ctx, cfg, inv, arg1, arg2)
	case "status":
		return runStatus(ctx, cfg, inv, arg1, arg2)
	case "list":
		if inv.IsRemote() {
			return usage("list is a server-side command")
		}
		return runList(ctx, cfg, inv, arg1, arg2)
	default:
		return usage(fmt.Sprintf("unknown command %q", verb))
	}
}

func usage(reason string) int {
	fmt.Fprintf(os.Stderr, "gitmirror: %s\n%s\n", reason, usageText)
	return 2
}
