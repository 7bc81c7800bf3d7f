package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitmirror/internal/command"
	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
)

// Executor performs one synchronous full-mirror transfer of a repository to
// one slave. There is no retry anywhere in here: a retry is a fresh
// invocation, scheduled by whoever drives this process.
type Executor struct {
	cfg   config.Cfg
	trace *logrus.Logger
	tee   io.Writer
}

// NewExecutor returns an Executor. Every captured line of transfer output is
// written to trace; when tee is non-nil each line is additionally copied
// there live, so a human watching the invocation gets real-time feedback.
func NewExecutor(cfg config.Cfg, trace *logrus.Logger, tee io.Writer) *Executor {
	return &Executor{cfg: cfg, trace: trace, tee: tee}
}

// PushResult carries everything the status recorder needs to classify one
// completed push attempt.
type PushResult struct {
	// Lines is the combined output of the transfer tool, in order.
	Lines []string
	// ExitStatus is the transfer tool's own exit status. A nonzero value
	// fails the invocation but does not by itself persist a status
	// record; only fatal output does that.
	ExitStatus int
}

// Fatal reports whether the captured output classifies this attempt as
// fatal.
func (res *PushResult) Fatal() bool {
	return ContainsFatal(res.Lines)
}

// Failed reports whether this run must exit nonzero: the transfer tool
// failed, or its output contained a fatal condition.
func (res *PushResult) Failed() bool {
	return res.ExitStatus != 0 || res.Fatal()
}

// Push mirrors all refs and objects of the repository to host. The transfer
// tool's combined output stream is captured line by line and fully consumed
// before Push returns, so the caller never has to classify a half-read
// attempt.
func (e *Executor) Push(ctx context.Context, repo *git.Repository, host string) (*PushResult, error) {
	sink := &lineSink{trace: e.trace, tee: e.tee, source: e.cfg.HostName}

	cmd, err := repo.Command(ctx, git.CmdStream{Out: sink, Err: sink}, git.SubCmd{
		Name:  "push",
		Flags: []git.Option{git.Flag{Name: "--mirror"}},
		Args:  []string{host + ":" + repo.Name()},
	})
	if err != nil {
		return nil, fmt.Errorf("spawn mirror push: %w", err)
	}

	status := 0
	if err := cmd.Wait(); err != nil {
		exitStatus, ok := command.ExitStatus(err)
		if !ok {
			return nil, fmt.Errorf("mirror push: %w", err)
		}
		status = exitStatus
	}
	sink.flush()

	// Forwarding the creator identity is fire-and-forget. It must never
	// affect the outcome of the push itself.
	e.forwardCreator(ctx, repo, host)

	return &PushResult{Lines: sink.lines, ExitStatus: status}, nil
}

// forwardCreator tells the slave who created an ad-hoc repository, together
// with any stored permission rules, so it can reconstruct equivalent local
// permissions. Failures are logged and swallowed.
func (e *Executor) forwardCreator(ctx context.Context, repo *git.Repository, host string) {
	data, err := ioutil.ReadFile(filepath.Join(repo.Path(), creatorMarkerFile))
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		e.trace.WithError(err).Warn("reading creator marker")
		return
	}

	creator := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if creator == "" {
		return
	}

	var stdin io.Reader
	if perms, err := os.Open(filepath.Join(repo.Path(), permsRulesFile)); err == nil {
		defer perms.Close()
		stdin = perms
	}

	cmd, err := command.New(ctx,
		exec.Command(e.cfg.SSH.BinPath, host, "mirror-receive-perms", repo.Name(), creator),
		stdin, ioutil.Discard, ioutil.Discard)
	if err != nil {
		e.trace.WithError(err).Warn("spawning creator forward")
		return
	}

	if err := cmd.Wait(); err != nil {
		e.trace.WithError(err).WithFields(logrus.Fields{
			"host": host,
			"repo": repo.Name(),
		}).Warn("forwarding creator to slave")
	}
}

// lineSink splits the combined output stream of the transfer tool into
// lines. Each complete line is retained in order, written to the trace
// logger and, when a tee is present, copied out live. Trace entries carry
// the pushing host so logs aggregated across masters stay attributable.
type lineSink struct {
	trace   *logrus.Logger
	tee     io.Writer
	source  string
	partial bytes.Buffer
	lines   []string
}

func (s *lineSink) Write(p []byte) (int, error) {
	rest := p
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			s.partial.Write(rest)
			break
		}

		s.partial.Write(rest[:idx])
		s.emit(s.partial.String())
		s.partial.Reset()
		rest = rest[idx+1:]
	}

	return len(p), nil
}

// flush emits a trailing line the transfer tool did not terminate.
func (s *lineSink) flush() {
	if s.partial.Len() > 0 {
		s.emit(s.partial.String())
		s.partial.Reset()
	}
}

func (s *lineSink) emit(line string) {
	s.lines = append(s.lines, line)

	entry := s.trace.WithFields(logrus.Fields{"transfer": "push", "source": s.source})
	if strings.Contains(strings.ToLower(line), "fatal") {
		entry.Error(line)
	} else {
		entry.Info(line)
	}

	if s.tee != nil {
		fmt.Fprintln(s.tee, line)
	}
}
