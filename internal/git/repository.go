package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gitlab.com/gitlab-org/gitmirror/internal/config"
)

// Repository is a bare repository underneath the configured storage root.
type Repository struct {
	cfg  config.Cfg
	name string
	path string
}

// NewRepository resolves name against the storage root of cfg. The name must
// not escape the storage root and must point at an existing git directory.
func NewRepository(cfg config.Cfg, name string) (*Repository, error) {
	if err := ValidateRelativePath(name); err != nil {
		return nil, err
	}

	path := filepath.Join(cfg.StorageRoot, name+".git")
	if !IsGitDirectory(path) {
		return nil, fmt.Errorf("%w: not a git repository: %q", ErrNotFound, name)
	}

	return &Repository{cfg: cfg, name: name, path: path}, nil
}

// Name returns the repository's name, without the storage root and without
// the ".git" suffix.
func (repo *Repository) Name() string { return repo.name }

// Path returns the absolute path of the repository's git directory.
func (repo *Repository) Path() string { return repo.path }

// TrimGitSuffix strips one trailing ".git" from a repository name handed in
// on the command line.
func TrimGitSuffix(name string) string {
	return strings.TrimSuffix(name, ".git")
}

// ValidateRelativePath rejects names that include constructs trying to
// perform directory traversal out of the storage root.
func ValidateRelativePath(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty repository name", ErrInvalidArg)
	}

	if filepath.IsAbs(name) {
		return fmt.Errorf("%w: repository name is absolute: %q", ErrInvalidArg, name)
	}

	for _, element := range strings.Split(filepath.Clean(name), string(os.PathSeparator)) {
		if element == ".." {
			return fmt.Errorf("%w: relative path escapes root directory", ErrInvalidArg)
		}
	}

	return nil
}

// IsGitDirectory checks if the directory passed as first argument looks like
// a valid git directory.
func IsGitDirectory(dir string) bool {
	if dir == "" {
		return false
	}

	for _, element := range []string{"objects", "refs", "HEAD"} {
		if _, err := os.Stat(filepath.Join(dir, element)); err != nil {
			return false
		}
	}

	return true
}
