// pkg/network/scheduler.go
package network

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-starsector/pkg/logging"
)

// Command is a unit of work run on the tick goroutine
type Command func(ctx context.Context, u *Universe)

// Scheduler owns the tick goroutine. Connections never touch the universe
// directly; they queue commands that run at the next tick boundary.
type Scheduler struct {
	Universe *Universe
	Interval time.Duration
	Logger   *logging.Logger

	commands chan Command
	lastTick atomic.Int64
	running  atomic.Bool
}

// NewScheduler creates a scheduler ticking tickRate times per second with
// room for queue pending commands
func NewScheduler(u *Universe, tickRate, queue int, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	if tickRate <= 0 {
		tickRate = 60
	}
	if queue <= 0 {
		queue = 1024
	}
	return &Scheduler{
		Universe: u,
		Interval: time.Second / time.Duration(tickRate),
		Logger:   logger,
		commands: make(chan Command, queue),
	}
}

// Submit queues a command without blocking. It reports false when the
// queue is full and the command was dropped.
func (s *Scheduler) Submit(cmd Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		return false
	}
}

// Enqueue queues a command that must not be lost, waiting for room
func (s *Scheduler) Enqueue(ctx context.Context, cmd Command) error {
	select {
	case s.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Step drains the queued commands and advances the universe by one tick
func (s *Scheduler) Step(ctx context.Context) {
	// Commands queued while draining wait for the next tick
	for n := len(s.commands); n > 0; n-- {
		s.run(ctx, <-s.commands)
	}
	s.Universe.Tick(ctx)
	s.lastTick.Store(time.Now().UnixNano())
}

func (s *Scheduler) run(ctx context.Context, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error(ctx, "command panicked", fmt.Errorf("panic: %v", r))
		}
	}()
	cmd(ctx, s.Universe)
}

// Run ticks until ctx is cancelled and then shuts the universe down
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}
	defer s.running.Store(false)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.Logger.Info(ctx, "tick loop started", "interval", s.Interval)

	for {
		select {
		case <-ctx.Done():
			s.drain(ctx)
			s.Universe.Shutdown(context.WithoutCancel(ctx))
			s.Logger.Info(ctx, "tick loop stopped")
			return nil
		case <-ticker.C:
			s.Step(ctx)
		}
	}
}

// drain runs whatever is still queued so disconnects are not lost
func (s *Scheduler) drain(ctx context.Context) {
	for {
		select {
		case cmd := <-s.commands:
			s.run(ctx, cmd)
		default:
			return
		}
	}
}

// Alive reports an error when the loop has not ticked within maxAge
func (s *Scheduler) Alive(maxAge time.Duration) error {
	last := s.lastTick.Load()
	if last == 0 {
		return fmt.Errorf("tick loop has not started")
	}
	if age := time.Since(time.Unix(0, last)); age > maxAge {
		return fmt.Errorf("last tick was %v ago", age.Round(time.Millisecond))
	}
	return nil
}

// Pending returns how many commands wait for the next tick
func (s *Scheduler) Pending() int {
	return len(s.commands)
}
