package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vigil/internal/logger"

	"golang.org/x/sync/errgroup"
)

const (
	restartBackoffMin = time.Second
	restartBackoffMax = time.Minute
)

// Supervisor runs every account's pipeline and restarts any that panics,
// with exponential backoff. One crashing account never takes down the rest.
type Supervisor struct {
	pipelines []*Pipeline
}

func NewSupervisor(pipelines []*Pipeline) *Supervisor {
	return &Supervisor{pipelines: pipelines}
}

// ByAccount returns the pipeline for an account id, nil when unknown.
func (s *Supervisor) ByAccount(accountID string) *Pipeline {
	for _, p := range s.pipelines {
		if p.AccountID() == accountID {
			return p
		}
	}
	return nil
}

// TriggerAll queues an out-of-schedule cycle on every pipeline.
func (s *Supervisor) TriggerAll() {
	for _, p := range s.pipelines {
		p.Trigger()
	}
}

// Run blocks until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.pipelines {
		p := p
		g.Go(func() error {
			return s.runSupervised(gctx, p)
		})
	}
	return g.Wait()
}

func (s *Supervisor) runSupervised(ctx context.Context, p *Pipeline) error {
	backoff := restartBackoffMin
	for {
		err := s.runOnce(ctx, p)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		logger.Errorf("pipeline account=%s exited: %v, restarting in %s", p.AccountID(), err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > restartBackoffMax {
			backoff = restartBackoffMax
		}
	}
}

// runOnce converts a pipeline panic into an error the restart loop handles.
func (s *Supervisor) runOnce(ctx context.Context, p *Pipeline) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
			logger.Errorf("pipeline account=%s panic: %v", p.AccountID(), r)
		}
	}()
	return p.Run(ctx)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("pipeline panic: %v", e.value) }
