package testhelper

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/gitmirror/internal/command"
	"go.uber.org/goleak"
)

// Run sets up the test environment and verifies at the end that no goroutine
// was leaked. Use it from TestMain.
func Run(m *testing.M) {
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	logrus.SetOutput(ioutil.Discard)

	code := m.Run()

	// Command reaper goroutines finish asynchronously after their context
	// is canceled; wait for them so the leak check below stays reliable.
	command.WaitAllDone()

	if code == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintf(os.Stderr, "goroutine leak: %v\n", err)
			code = 1
		}
	}

	return code
}

// MustReadFile returns the content of a file or fails at once.
func MustReadFile(t testing.TB, filename string) []byte {
	t.Helper()

	content, err := ioutil.ReadFile(filename)
	require.NoError(t, err)

	return content
}

// MustRunCommand runs a command with an optional standard input and returns
// the standard output, or fails.
func MustRunCommand(t testing.TB, stdin io.Reader, name string, args ...string) []byte {
	t.Helper()

	cmd := exec.Command(name, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	require.NoError(t, err, "%s %v: %s", name, args, stderr.String())

	return output
}

// CreateBareRepo initializes a bare repository called name underneath
// storageRoot and returns its git directory.
func CreateBareRepo(t testing.TB, storageRoot, name string) string {
	t.Helper()

	repoPath := filepath.Join(storageRoot, name+".git")
	MustRunCommand(t, nil, "git", "init", "--bare", "--quiet", repoPath)

	return repoPath
}

// SetRepoConfig adds a configuration value in the given git directory.
func SetRepoConfig(t testing.TB, repoPath, key, value string) {
	t.Helper()

	MustRunCommand(t, nil, "git", "-C", repoPath, "config", "--add", key, value)
}

// NewTraceLogger returns a discarding logger plus a hook capturing every
// entry written to it.
func NewTraceLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}
