package mirror

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gitlab.com/gitlab-org/gitmirror/internal/git"
)

// HostPatternAll expands to every slave of a repository when reporting.
const HostPatternAll = "all"

const reportSeparator = "----------"

// Report renders every status record of the repository whose slave matches
// hostPattern, in lexicographic order. A record that vanishes between
// listing and reading is silently skipped.
func Report(w io.Writer, repo *git.Repository, hostPattern string) error {
	pattern := hostPattern
	if pattern == HostPatternAll {
		pattern = "*"
	}

	matches, err := filepath.Glob(filepath.Join(repo.Path(), statusFilePrefix+pattern+statusFileSuffix))
	if err != nil {
		return fmt.Errorf("list status records: %w", err)
	}
	sort.Strings(matches)

	for _, path := range matches {
		content, err := ioutil.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read status record: %w", err)
		}

		host := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), statusFilePrefix), statusFileSuffix)

		fmt.Fprintln(w, reportSeparator)
		fmt.Fprintf(w, "repository %q, slave %q: previous mirror push failed\n", repo.Name(), host)
		w.Write(content)
		fmt.Fprintln(w, reportSeparator)
	}

	return nil
}

// ReportGlobal walks every physical repository underneath the storage root
// and emits the name of each one owning at least one status record, one name
// per line. It is a coarse health sweep for external tooling, so no record
// content is included.
func ReportGlobal(w io.Writer, storageRoot string) error {
	return filepath.Walk(storageRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if !strings.HasSuffix(path, ".git") || !git.IsGitDirectory(path) {
			return nil
		}

		matches, err := filepath.Glob(filepath.Join(path, statusFilePrefix+"*"+statusFileSuffix))
		if err != nil {
			return err
		}

		if len(matches) > 0 {
			rel, err := filepath.Rel(storageRoot, path)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, strings.TrimSuffix(rel, ".git"))
		}

		// Repositories do not nest, no need to descend further.
		return filepath.SkipDir
	})
}
