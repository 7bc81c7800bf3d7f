package mirror_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
	"gitlab.com/gitlab-org/gitmirror/internal/mirror"
	"gitlab.com/gitlab-org/gitmirror/internal/testhelper"
)

func TestReportSingleSlave(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	require.NoError(t, mirror.Record(repo, "backup1", []string{"fatal: no route to host"}, "42"))

	var out bytes.Buffer
	require.NoError(t, mirror.Report(&out, repo, "backup1"))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Equal(t, "----------", lines[0])
	require.Contains(t, lines[1], `"foo"`)
	require.Contains(t, lines[1], `"backup1"`)
	require.Contains(t, lines[1], "previous mirror push failed")
	require.Contains(t, lines[2], "fatal: no route to host")
	require.Equal(t, "----------", lines[3])
}

func TestReportAllSlavesInLexicographicOrder(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	// Record in reverse order to prove the report sorts by filename.
	require.NoError(t, mirror.Record(repo, "backup2", []string{"fatal: b2"}, "0"))
	require.NoError(t, mirror.Record(repo, "backup1", []string{"fatal: b1"}, "0"))

	var out bytes.Buffer
	require.NoError(t, mirror.Report(&out, repo, mirror.HostPatternAll))

	report := out.String()
	require.Equal(t, 4, strings.Count(report, "----------"), "two blocks, each bounded by separators")
	require.Less(t, strings.Index(report, `"backup1"`), strings.Index(report, `"backup2"`))
}

func TestReportSkipsMissingRecords(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	var out bytes.Buffer
	require.NoError(t, mirror.Report(&out, repo, "backup1"))
	require.Empty(t, out.String())

	require.NoError(t, mirror.Report(&out, repo, mirror.HostPatternAll))
	require.Empty(t, out.String())
}

func TestReportGlobal(t *testing.T) {
	cfg := config.Cfg{
		HostName:    "master.example.com",
		StorageRoot: t.TempDir(),
		Git:         config.Git{BinPath: "git"},
	}

	for _, name := range []string{"bar", "baz", "nested/qux"} {
		testhelper.CreateBareRepo(t, cfg.StorageRoot, name)
	}

	bar, err := git.NewRepository(cfg, "bar")
	require.NoError(t, err)
	require.NoError(t, mirror.Record(bar, "backup1", []string{"fatal: disk full"}, "0"))

	var out bytes.Buffer
	require.NoError(t, mirror.ReportGlobal(&out, cfg.StorageRoot))
	require.Equal(t, "bar\n", out.String())
}

func TestReportGlobalFindsNestedRepositories(t *testing.T) {
	cfg := config.Cfg{
		HostName:    "master.example.com",
		StorageRoot: t.TempDir(),
		Git:         config.Git{BinPath: "git"},
	}

	for _, name := range []string{"bar", "nested/qux"} {
		testhelper.CreateBareRepo(t, cfg.StorageRoot, name)
	}

	qux, err := git.NewRepository(cfg, "nested/qux")
	require.NoError(t, err)
	require.NoError(t, mirror.Record(qux, "backup9", []string{"FATAL: broken"}, "0"))

	var out bytes.Buffer
	require.NoError(t, mirror.ReportGlobal(&out, cfg.StorageRoot))
	require.Equal(t, "nested/qux\n", out.String())
}
