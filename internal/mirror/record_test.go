package mirror_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitmirror/internal/mirror"
)

func TestContainsFatal(t *testing.T) {
	testCases := []struct {
		desc  string
		lines []string
		fatal bool
	}{
		{desc: "empty output", lines: nil, fatal: false},
		{desc: "clean push", lines: []string{"Enumerating objects...", "To backup1:foo", " * [new branch] main -> main"}, fatal: false},
		{desc: "lower case marker", lines: []string{"fatal: unable to access 'backup1:foo/'"}, fatal: true},
		{desc: "upper case marker", lines: []string{"FATAL: dead remote"}, fatal: true},
		{desc: "mixed case marker mid-line", lines: []string{"remote: FaTaL: oops"}, fatal: true},
		{desc: "marker in later line", lines: []string{"Enumerating objects...", "fatal: the remote end hung up"}, fatal: true},
		{desc: "marker embedded in a word", lines: []string{"warning: something non-fatally suspicious"}, fatal: true},
		{desc: "warnings only", lines: []string{"warning: something suspicious"}, fatal: false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			require.Equal(t, tc.fatal, mirror.ContainsFatal(tc.lines))
		})
	}
}

func TestRecordPersistsFatalOutput(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	lines := []string{"Enumerating objects...", "fatal: unable to access 'backup1:foo/'"}
	require.NoError(t, mirror.Record(repo, "backup1", lines, "1234.5"))

	statusPath := mirror.StatusFilePath(repo, "backup1")
	require.FileExists(t, statusPath)

	content, err := os.ReadFile(statusPath)
	require.NoError(t, err)

	persisted := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	require.Len(t, persisted, len(lines))

	for i, line := range persisted {
		// "<timestamp> <session> <original line>"
		parts := strings.SplitN(line, " ", 3)
		require.Len(t, parts, 3)
		require.Equal(t, "1234.5", parts[1])
		require.Equal(t, lines[i], parts[2])
	}
}

func TestRecordClearsOnSuccess(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	require.NoError(t, mirror.Record(repo, "backup1", []string{"fatal: nope"}, "0"))
	require.FileExists(t, mirror.StatusFilePath(repo, "backup1"))

	cleanOutput := []string{"To backup1:foo", " * [new branch] main -> main"}
	require.NoError(t, mirror.Record(repo, "backup1", cleanOutput, "0"))
	require.NoFileExists(t, mirror.StatusFilePath(repo, "backup1"))
}

func TestRecordClearIsIdempotent(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	// No record exists; clearing must not fail.
	require.NoError(t, mirror.Record(repo, "backup1", []string{"all good"}, "0"))
	require.NoError(t, mirror.Record(repo, "backup1", []string{"all good"}, "0"))
	require.NoFileExists(t, mirror.StatusFilePath(repo, "backup1"))
}

func TestRecordOverwritesPriorRecord(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	require.NoError(t, mirror.Record(repo, "backup1", []string{"fatal: first attempt"}, "1"))
	require.NoError(t, mirror.Record(repo, "backup1", []string{"fatal: second attempt"}, "2"))

	content, err := os.ReadFile(mirror.StatusFilePath(repo, "backup1"))
	require.NoError(t, err)

	require.Contains(t, string(content), "fatal: second attempt")
	require.NotContains(t, string(content), "first attempt", "records must not accumulate history")
}

func TestRecordKeepsPairsIndependent(t *testing.T) {
	_, repo := setupRepo(t, "foo")

	require.NoError(t, mirror.Record(repo, "backup1", []string{"fatal: backup1 down"}, "0"))
	require.NoError(t, mirror.Record(repo, "backup2", []string{"pushed fine"}, "0"))

	require.FileExists(t, mirror.StatusFilePath(repo, "backup1"))
	require.NoFileExists(t, mirror.StatusFilePath(repo, "backup2"))
}
