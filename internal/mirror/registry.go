package mirror

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gitlab.com/gitlab-org/gitmirror/internal/config"
	"gitlab.com/gitlab-org/gitmirror/internal/git"
)

const (
	// configKeyMaster is the single-valued repository configuration key
	// naming the host authoritative for the repository's content.
	configKeyMaster = "mirror.master"
	// configKeySlavesRegexp matches every repository configuration key
	// contributing to the authorized slave set. Every matching key may
	// hold several whitespace-separated hostnames.
	configKeySlavesRegexp = `^mirror\.slaves`
)

// Registry derives the mirror topology of a repository from its externally
// owned configuration. It never mutates anything.
type Registry struct {
	cfg config.Cfg
}

// NewRegistry returns a Registry reading through the given configuration.
func NewRegistry(cfg config.Cfg) Registry {
	return Registry{cfg: cfg}
}

// Slaves returns the authorized set of slave hostnames for the repository,
// sorted and de-duplicated. A repository with no mirror configuration has an
// empty slave set.
func (r Registry) Slaves(ctx context.Context, repo *git.Repository) ([]string, error) {
	pairs, err := repo.ConfigGetRegexp(ctx, configKeySlavesRegexp)
	if err != nil {
		return nil, fmt.Errorf("read slave configuration: %w", err)
	}

	seen := map[string]bool{}
	var slaves []string
	for _, pair := range pairs {
		for _, host := range strings.Fields(pair.Value) {
			if seen[host] {
				continue
			}
			seen[host] = true
			slaves = append(slaves, host)
		}
	}

	sort.Strings(slaves)

	return slaves, nil
}

// Master returns the hostname this repository mirrors from, or the empty
// string when the repository has no configured master. More than one
// configured master is a configuration error.
func (r Registry) Master(ctx context.Context, repo *git.Repository) (string, error) {
	values, err := repo.ConfigGetAll(ctx, configKeyMaster)
	if err != nil {
		return "", fmt.Errorf("read master configuration: %w", err)
	}

	switch len(values) {
	case 0:
		return "", nil
	case 1:
		return values[0], nil
	default:
		return "", fmt.Errorf("repository %q has more than one configured master", repo.Name())
	}
}

// Authorize fails with an AuthError unless the repository name is
// well-formed and host is a member of the repository's slave set. It is only
// consulted for remotely triggered invocations; local invocations bypass it
// entirely.
func (r Registry) Authorize(ctx context.Context, repo *git.Repository, host string) error {
	if !ValidRepoName(repo.Name()) {
		return &AuthError{Repo: repo.Name(), Host: host, Reason: "invalid repository name"}
	}

	slaves, err := r.Slaves(ctx, repo)
	if err != nil {
		return err
	}

	for _, slave := range slaves {
		if slave == host {
			return nil
		}
	}

	return &AuthError{Repo: repo.Name(), Host: host, Reason: "host is not an authorized slave"}
}
