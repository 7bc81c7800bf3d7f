package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"gitlab.com/gitlab-org/gitmirror/internal/command"
)

// ConfigPair is a key/value pair read out of a repository's configuration.
type ConfigPair struct {
	Key   string
	Value string
}

// ConfigGetAll returns all values associated with the given configuration
// key. A key with no values is not an error; it yields an empty slice.
func (repo *Repository) ConfigGetAll(ctx context.Context, key string) ([]string, error) {
	data, err := repo.configRead(ctx, SubCmd{
		Name:  "config",
		Flags: []Option{Flag{Name: "--get-all"}},
		Args:  []string{key},
	})
	if err != nil {
		return nil, err
	}

	var values []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		values = append(values, scanner.Text())
	}

	return values, scanner.Err()
}

// ConfigGetRegexp returns all configuration pairs whose key matches the
// given regular expression. No match is not an error.
func (repo *Repository) ConfigGetRegexp(ctx context.Context, nameRegexp string) ([]ConfigPair, error) {
	data, err := repo.configRead(ctx, SubCmd{
		Name:  "config",
		Flags: []Option{Flag{Name: "--get-regexp"}},
		Args:  []string{nameRegexp},
	})
	if err != nil {
		return nil, err
	}

	var pairs []ConfigPair
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		// "git config --get-regexp" outputs "<key> <value>" per line.
		// A key without a value has no separator at all.
		split := strings.SplitN(scanner.Text(), " ", 2)
		pair := ConfigPair{Key: split[0]}
		if len(split) == 2 {
			pair.Value = split[1]
		}
		pairs = append(pairs, pair)
	}

	return pairs, scanner.Err()
}

func (repo *Repository) configRead(ctx context.Context, sc SubCmd) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	cmd, err := repo.Command(ctx, CmdStream{Out: &stdout, Err: &stderr}, sc)
	if err != nil {
		return nil, err
	}

	if err := cmd.Wait(); err != nil {
		status, ok := command.ExitStatus(err)
		if ok && status == 1 {
			// "git config" exits with 1 when the key does not exist.
			return nil, nil
		}

		return nil, fmt.Errorf("git config: %v, stderr: %q", err, stderr.String())
	}

	return stdout.Bytes(), nil
}
