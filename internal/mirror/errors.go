package mirror

import (
	"fmt"
	"regexp"
)

// repoNamePattern is the safe-identifier pattern repository names handed in
// by remote callers must satisfy.
var repoNamePattern = regexp.MustCompile(`^[0-9a-zA-Z][0-9a-zA-Z._@/+-]*$`)

// ValidRepoName reports whether name is a well-formed repository name.
func ValidRepoName(name string) bool {
	return repoNamePattern.MatchString(name)
}

// AuthError aborts an invocation triggered by a remote caller that names a
// slave outside the repository's authorized slave set, or a repository that
// fails validity checks.
type AuthError struct {
	Repo   string
	Host   string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mirror authorization failed for host %q, repository %q: %s", e.Host, e.Repo, e.Reason)
}
