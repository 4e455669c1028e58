// Package scheduler wires the two flush trigger sources: the pending-queue
// threshold and an hourly cron, both funneling into one coalesced runner.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// Runner executes one flush run. cache.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context) *model.FlushResult
}

// Scheduler owns the flush loop. TriggerFlush may be fired redundantly from
// any goroutine: pending kicks collapse into at most one queued run.
type Scheduler struct {
	runner  Runner
	cron    *cron.Cron
	kick    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	log     *logger.Logger
}

// New creates a scheduler. cronExpr is a standard 5-field cron spec for the
// periodic flush; pass "" to disable the periodic trigger.
func New(runner Runner, cronExpr string, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		runner:  runner,
		cron:    cron.New(),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     log,
	}

	if cronExpr != "" {
		if _, err := s.cron.AddFunc(cronExpr, s.TriggerFlush); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Start launches the flush loop and the cron timer.
func (s *Scheduler) Start() {
	s.cron.Start()
	go s.loop()
}

// Stop halts the cron timer and the flush loop, waiting for both. A run
// already in progress completes; flush runs have no cancellation.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	close(s.done)
	<-s.stopped
}

// TriggerFlush requests an immediate flush. Non-blocking and coalescing: if a
// run is already queued the request is dropped.
func (s *Scheduler) TriggerFlush() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	// A run always completes its drain loop: cancelling between a drain and
	// its insert would lose the drained batch for good.
	result := s.runner.Run(context.Background())
	if len(result.Errors) > 0 {
		s.log.Error("flush run completed with errors",
			zap.Int("flushed_count", result.FlushedCount),
			zap.Strings("errors", result.Errors),
		)
		return
	}
	s.log.Info("flush run completed",
		zap.Int("flushed_count", result.FlushedCount),
		zap.Float64("duration", result.Duration),
	)
}
