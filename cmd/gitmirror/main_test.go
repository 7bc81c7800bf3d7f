package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/invocation"
	"gitlab.com/gitlab-org/gitmirror/internal/testhelper"
)

func TestMain(m *testing.M) {
	testhelper.Run(m)
}

// newCLICfg returns a configuration backed by a fresh storage root holding
// one bare repository called "foo".
func newCLICfg(t *testing.T) (config.Cfg, string) {
	t.Helper()

	cfg := config.Cfg{
		HostName:    "master.example.com",
		StorageRoot: t.TempDir(),
		Git:         config.Git{BinPath: "git"},
		SSH:         config.SSH{BinPath: "ssh"},
	}

	repoPath := testhelper.CreateBareRepo(t, cfg.StorageRoot, "foo")

	return cfg, repoPath
}

// fakeTransferGit returns a git stand-in that records push invocations in
// markerFile and delegates everything else to the real git binary, so
// registry reads keep working while tests observe whether a transfer ran.
func fakeTransferGit(t *testing.T, markerFile string) string {
	t.Helper()

	realGit, err := exec.LookPath("git")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "git")
	script := fmt.Sprintf(`#!/bin/sh
if [ "$1" = push ]; then
	touch %q
	echo "To $3"
	exit 0
fi
exec %q "$@"
`, markerFile, realGit)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func TestRunReturnsAfterSpawningSubprocess(t *testing.T) {
	cfg, repoPath := newCLICfg(t)
	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves", "backup1")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf("host_name = %q\nstorage_root = %q\n", cfg.HostName, cfg.StorageRoot)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	t.Setenv(config.EnvConfigFile, configPath)
	t.Setenv(invocation.EnvRemoteUser, "")

	done := make(chan int, 1)
	go func() {
		done <- run([]string{"list", "slaves", "foo"})
	}()

	// A spawned subprocess leaves a reaper goroutine waiting on context
	// cancellation; run must cancel before waiting for it.
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after spawning a subprocess")
	}
}

func TestRunPushRemoteUnauthorizedSlave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, repoPath := newCLICfg(t)
	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves", "backup1")

	marker := filepath.Join(t.TempDir(), "transfer-ran")
	cfg.Git.BinPath = fakeTransferGit(t, marker)

	code := runPush(ctx, cfg, invocation.RemoteUser("user-1"), "backup2", "foo")

	require.Equal(t, 1, code)
	require.NoFileExists(t, marker, "an unauthorized slave must never reach the transfer tool")
}

func TestRunPushLocalBypassesSlaveRegistration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No mirror.slaves configured at all: a local invocation still pushes.
	cfg, _ := newCLICfg(t)

	marker := filepath.Join(t.TempDir(), "transfer-ran")
	cfg.Git.BinPath = fakeTransferGit(t, marker)

	code := runPush(ctx, cfg, invocation.Local(), "backup1", "foo")

	require.Equal(t, 0, code)
	require.FileExists(t, marker, "local invocations push without consulting the slave set")
}

func TestRunStatusRemoteAuthorization(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, repoPath := newCLICfg(t)
	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves", "backup1")

	remote := invocation.RemoteUser("user-1")

	require.Equal(t, 1, runStatus(ctx, cfg, remote, "backup2", "foo"), "unregistered slave is rejected")
	require.Equal(t, 0, runStatus(ctx, cfg, remote, "backup1", "foo"), "registered slave is allowed")
	require.Equal(t, 0, runStatus(ctx, cfg, remote, "all", "foo"), "reading all slaves of one repository needs no membership")
	require.Equal(t, 2, runStatus(ctx, cfg, remote, "all", "all"), "the global sweep stays server-side only")
	require.Equal(t, 0, runStatus(ctx, cfg, invocation.Local(), "all", "all"))
}
