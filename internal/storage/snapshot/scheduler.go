package snapshot

import (
	"context"
	"sync"
	"time"
)

// Scheduler creates a snapshot of src every interval and prunes old ones
// after each successful run.
type Scheduler struct {
	manager  *Manager
	src      Source
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(m *Manager, src Source, interval time.Duration) *Scheduler {
	return &Scheduler{manager: m, src: src, interval: interval}
}

// Start starts the background loop. It is a no-op when interval is not
// positive or the loop is already running.
func (s *Scheduler) Start() {
	if s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
}

// Stop stops the loop and waits for an in-flight snapshot to finish or
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce creates one snapshot and prunes. Failures are logged.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if _, err := s.manager.Create(ctx, s.src); err != nil {
		if ctx.Err() == nil {
			s.manager.logger.Error("scheduled snapshot failed", "error", err)
		}
		return
	}
	if _, err := s.manager.Prune(); err != nil {
		s.manager.logger.Warn("snapshot prune failed", "error", err)
	}
}
