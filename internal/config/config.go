package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitmirror/internal/config/sentry"
	"golang.org/x/sys/unix"
)

// EnvConfigFile is the environment variable the enclosing gateway uses to
// point invocations of gitmirror at their config.toml.
const EnvConfigFile = "GITMIRROR_CONFIG_FILE"

// Cfg is a container for all config derived from config.toml.
type Cfg struct {
	// HostName is the canonical name of this host as it appears in the
	// mirror configuration of repositories. Mandatory.
	HostName string `toml:"host_name" split_words:"true"`
	// StorageRoot is the directory all bare repositories live under.
	StorageRoot string  `toml:"storage_root" split_words:"true"`
	Git         Git     `toml:"git" envconfig:"git"`
	SSH         SSH     `toml:"ssh" envconfig:"ssh"`
	Logging     Logging `toml:"logging" envconfig:"logging"`
}

// Git contains the settings for the Git executable
type Git struct {
	BinPath string `toml:"bin_path" split_words:"true"`
}

// SSH contains the settings for the executable used for the best-effort
// creator/permission forwarding side channel.
type SSH struct {
	BinPath string `toml:"bin_path" split_words:"true"`
}

// Logging contains the logging configuration for gitmirror
type Logging struct {
	sentry.Config

	// Dir is where the per-invocation transfer trace log is written.
	// Leaving it empty disables the trace sink.
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// FromEnv loads the configuration from the file named by EnvConfigFile.
func FromEnv() (Cfg, error) {
	path := os.Getenv(EnvConfigFile)
	if path == "" {
		return Cfg{}, fmt.Errorf("%s is not set", EnvConfigFile)
	}

	file, err := os.Open(path)
	if err != nil {
		return Cfg{}, err
	}
	defer file.Close()

	return Load(file)
}

// Load initializes the Cfg from file and the environment.
// Environment variables take precedence over the file.
func Load(file io.Reader) (Cfg, error) {
	var cfg Cfg

	if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
		return Cfg{}, fmt.Errorf("load toml: %v", err)
	}

	if err := envconfig.Process("gitmirror", &cfg); err != nil {
		return Cfg{}, fmt.Errorf("envconfig: %v", err)
	}

	cfg.setDefaults()
	cfg.StorageRoot = filepath.Clean(cfg.StorageRoot)

	return cfg, nil
}

// Validate checks the current Cfg for sanity.
func (cfg *Cfg) Validate() error {
	for _, run := range []func() error{
		cfg.validateHostName,
		cfg.validateStorageRoot,
		cfg.validateGit,
	} {
		if err := run(); err != nil {
			return err
		}
	}

	return nil
}

func (cfg *Cfg) setDefaults() {
	if cfg.Git.BinPath == "" {
		cfg.Git.BinPath = "git"
	}

	if cfg.SSH.BinPath == "" {
		cfg.SSH.BinPath = "ssh"
	}
}

func (cfg *Cfg) validateHostName() error {
	if cfg.HostName == "" {
		return fmt.Errorf("host_name is not set")
	}

	return nil
}

func (cfg *Cfg) validateStorageRoot() error {
	if cfg.StorageRoot == "" {
		return fmt.Errorf("storage_root is not set")
	}

	if err := validateIsDirectory(cfg.StorageRoot, "storage_root"); err != nil {
		return err
	}

	if err := unix.Access(cfg.StorageRoot, unix.R_OK|unix.X_OK); err != nil {
		return fmt.Errorf("storage_root not accessible: %q: %v", cfg.StorageRoot, err)
	}

	return nil
}

func (cfg *Cfg) validateGit() error {
	if filepath.IsAbs(cfg.Git.BinPath) {
		return checkExecutable(cfg.Git.BinPath)
	}

	if _, err := exec.LookPath(cfg.Git.BinPath); err != nil {
		return fmt.Errorf("git binary: %w", err)
	}

	return nil
}

func checkExecutable(path string) error {
	if err := unix.Access(path, unix.X_OK); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("not executable: %v", path)
		}
		return err
	}

	return nil
}

func validateIsDirectory(path, name string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !s.IsDir() {
		return fmt.Errorf("not a directory: %q", path)
	}

	log.WithField("dir", path).
		Debugf("%s set", name)

	return nil
}
