package command

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var spawnTokens chan struct{}

// spawnConfig holds configuration for command spawning timeouts and parallelism.
type spawnConfig struct {
	// This default value (10 seconds) is very high. Spawning should take
	// milliseconds or less. If we hit 10 seconds, something is wrong, and
	// failing the request will create breathing room.
	Timeout time.Duration `split_words:"true" default:"10s"`

	// MaxParallel limits the number of processes that can be spawned
	// concurrently by one invocation. A mirror push spawns at most a
	// handful of processes, so this is generous.
	MaxParallel int `split_words:"true" default:"10"`
}

func init() {
	var cfg spawnConfig
	envconfig.MustProcess("gitmirror_command_spawn", &cfg)
	spawnTokens = make(chan struct{}, cfg.MaxParallel)
	spawnTimeout = cfg.Timeout
}

var spawnTimeout time.Duration

func getSpawnToken(ctx context.Context) (putToken func(), err error) {
	// Go has a global lock (syscall.ForkLock) for spawning new processes.
	// This select statement is a safety valve to prevent lots of
	// goroutines piling up behind that lock.
	select {
	case spawnTokens <- struct{}{}:
		return func() {
			<-spawnTokens
		}, nil
	case <-time.After(spawnTimeout):
		return nil, fmt.Errorf("process spawn timed out after %v", spawnTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
