package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/gitlab-org/gitmirror/internal/git"
	"gitlab.com/gitlab-org/gitmirror/internal/log"
	"gitlab.com/gitlab-org/gitmirror/internal/safe"
)

const (
	statusFilePrefix = "gl-slave-"
	statusFileSuffix = ".status"

	// creatorMarkerFile holds the name of the user that created the
	// repository ad hoc, when it was not pre-declared by an
	// administrator. Owned by the enclosing gateway, read-only here.
	creatorMarkerFile = "gl-creator"
	// permsRulesFile holds the gateway's stored per-repository
	// permission rules, forwarded alongside the creator identity.
	permsRulesFile = "gl-perms"
)

// StatusFilePath returns the location of the status record for the given
// repository/slave pair.
func StatusFilePath(repo *git.Repository, host string) string {
	return filepath.Join(repo.Path(), statusFilePrefix+host+statusFileSuffix)
}

// ContainsFatal reports whether the captured transfer output classifies the
// attempt as fatal. The transfer tool's own exit status deliberately plays
// no part in this.
func ContainsFatal(lines []string) bool {
	return strings.Contains(strings.ToLower(strings.Join(lines, "\n")), "fatal")
}

// Record persists or clears the status record of one (repository, slave)
// pair after a completed push attempt. A fatal attempt overwrites the record
// with the full captured output, each line prefixed with a timestamp and the
// transfer-session token. A non-fatal attempt removes the record; its absence
// is not an error.
//
// There is deliberately no locking here. Two concurrent pushes to the same
// pair race on the record with last-writer-wins semantics; callers are
// expected to schedule around that. The rename-on-write below only makes
// sure nobody ever observes a half-written record.
func Record(repo *git.Repository, host string, lines []string, sessionID string) error {
	path := StatusFilePath(repo, host)

	if !ContainsFatal(lines) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear status record: %w", err)
		}
		return nil
	}

	writer, err := safe.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("create status record: %w", err)
	}
	defer writer.Close()

	timestamp := time.Now().UTC().Format(log.TimestampFormat)
	for _, line := range lines {
		if _, err := fmt.Fprintf(writer, "%s %s %s\n", timestamp, sessionID, line); err != nil {
			return fmt.Errorf("write status record: %w", err)
		}
	}

	if err := writer.Commit(); err != nil {
		return fmt.Errorf("commit status record: %w", err)
	}

	return nil
}
