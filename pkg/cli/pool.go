package cli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jdziat/delayed/pkg/core"
)

// pool starts size worker processes and waits for all of them. The parent's
// database handles are reset around the spawn through the fork hooks.
type pool struct {
	size    int
	hooks   core.ForkHooks
	command func(ctx context.Context, index int) *exec.Cmd
	logger  zerolog.Logger
}

func (p *pool) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.hooks.BeforeFork()
	children := make([]*exec.Cmd, 0, p.size)
	var startErr error
	for i := range p.size {
		c := p.command(ctx, i)
		if err := c.Start(); err != nil {
			startErr = fmt.Errorf("delayed: start worker process %d: %w", i, err)
			break
		}
		p.logger.Info().Int("index", i).Int("child_pid", c.Process.Pid).Msg("started worker process")
		children = append(children, c)
	}
	p.hooks.AfterFork()

	if startErr != nil {
		cancel()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = []error{startErr}
	)
	for i, c := range children {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Wait()
			switch {
			case err == nil:
				p.logger.Info().Int("index", i).Msg("worker process exited")
			case ctx.Err() != nil:
				p.logger.Info().Int("index", i).Err(err).Msg("worker process stopped")
			default:
				p.logger.Error().Int("index", i).Err(err).Msg("worker process failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("delayed: worker process %d: %w", i, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
