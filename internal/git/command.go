package git

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"

	"gitlab.com/gitlab-org/gitmirror/internal/command"
)

var flagRegex = regexp.MustCompile(`^(-|--)[[:alnum:]]`)

// Option is a git command line flag with validation logic
type Option interface {
	OptionArgs() ([]string, error)
}

// Flag is a single token optional command line argument that enables or
// disables functionality (e.g. "--mirror")
type Flag struct {
	Name string
}

// OptionArgs returns an error if the flag is not sanitary
func (f Flag) OptionArgs() ([]string, error) {
	if !flagRegex.MatchString(f.Name) {
		return nil, fmt.Errorf("flag %q failed regex validation: %w", f.Name, ErrInvalidArg)
	}
	return []string{f.Name}, nil
}

// ValueFlag is an optional command line argument that is comprised of pair of
// tokens (e.g. "-n 50")
type ValueFlag struct {
	Name  string
	Value string
}

// OptionArgs returns an error if the flag is not sanitary
func (vf ValueFlag) OptionArgs() ([]string, error) {
	if !flagRegex.MatchString(vf.Name) {
		return nil, fmt.Errorf("value flag %q failed regex validation: %w", vf.Name, ErrInvalidArg)
	}
	return []string{vf.Name, vf.Value}, nil
}

// SubCmd represents a specific git command
type SubCmd struct {
	Name  string   // e.g. "push"
	Flags []Option // optional flags before the positional args
	Args  []string // positional args after all flags
}

// CommandArgs checks all arguments in the sub command and validates them
func (sc SubCmd) CommandArgs() ([]string, error) {
	var safeArgs []string

	if sc.Name == "" {
		return nil, fmt.Errorf("empty sub command name: %w", ErrInvalidArg)
	}
	safeArgs = append(safeArgs, sc.Name)

	for _, o := range sc.Flags {
		args, err := o.OptionArgs()
		if err != nil {
			return nil, err
		}
		safeArgs = append(safeArgs, args...)
	}

	for _, a := range sc.Args {
		if len(a) > 0 && a[0] == '-' {
			return nil, fmt.Errorf("positional arg %q cannot start with dash '-': %w", a, ErrInvalidArg)
		}
		safeArgs = append(safeArgs, a)
	}

	return safeArgs, nil
}

// CmdStream represents standard input/output streams for a command
type CmdStream struct {
	// In is the standard input of the command
	In io.Reader
	// Out is the standard output of the command
	Out io.Writer
	// Err is the standard error of the command
	Err io.Writer
}

// Command spawns the given git sub command with the repository's git
// directory as its working directory.
func (repo *Repository) Command(ctx context.Context, stream CmdStream, sc SubCmd) (*command.Command, error) {
	args, err := sc.CommandArgs()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(repo.cfg.Git.BinPath, args...)
	cmd.Dir = repo.path

	return command.New(ctx, cmd, stream.In, stream.Out, stream.Err, command.GitEnv...)
}
