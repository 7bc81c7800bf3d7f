package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
	"gitlab.com/gitlab-org/gitmirror/internal/testhelper"
)

func TestConfigGetAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := newStorageCfg(t)
	repoPath := testhelper.CreateBareRepo(t, cfg.StorageRoot, "foo")

	testhelper.SetRepoConfig(t, repoPath, "mirror.master", "origin.example.com")
	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves", "backup1 backup2")
	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves", "backup3")

	repo, err := git.NewRepository(cfg, "foo")
	require.NoError(t, err)

	values, err := repo.ConfigGetAll(ctx, "mirror.slaves")
	require.NoError(t, err)
	require.Equal(t, []string{"backup1 backup2", "backup3"}, values)

	values, err = repo.ConfigGetAll(ctx, "mirror.absent")
	require.NoError(t, err)
	require.Empty(t, values, "a missing key is not an error")
}

func TestConfigGetRegexp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := newStorageCfg(t)
	repoPath := testhelper.CreateBareRepo(t, cfg.StorageRoot, "foo")

	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves", "backup1")
	testhelper.SetRepoConfig(t, repoPath, "mirror.slaves-eu", "backup2")
	testhelper.SetRepoConfig(t, repoPath, "unrelated.key", "value")

	repo, err := git.NewRepository(cfg, "foo")
	require.NoError(t, err)

	pairs, err := repo.ConfigGetRegexp(ctx, `^mirror\.slaves`)
	require.NoError(t, err)
	require.Equal(t, []git.ConfigPair{
		{Key: "mirror.slaves", Value: "backup1"},
		{Key: "mirror.slaves-eu", Value: "backup2"},
	}, pairs)

	pairs, err = repo.ConfigGetRegexp(ctx, `^nothing\.matches`)
	require.NoError(t, err)
	require.Empty(t, pairs)
}
