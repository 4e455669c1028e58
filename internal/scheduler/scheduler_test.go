package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fingle-ai/chat-platform/internal/model"
	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// blockingRunner holds each run open until released, so tests can pile up
// trigger requests behind an in-flight run.
type blockingRunner struct {
	mu      sync.Mutex
	runs    int
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(context.Context) *model.FlushResult {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	r.started <- struct{}{}
	<-r.release
	return &model.FlushResult{}
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestNewRejectsInvalidCron(t *testing.T) {
	runner := newBlockingRunner()
	if _, err := New(runner, "not a cron spec", logger.NewNop()); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestTriggerFlushRunsOnce(t *testing.T) {
	runner := newBlockingRunner()
	s, err := New(runner, "", logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	s.TriggerFlush()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("run did not start")
	}
	close(runner.release)

	if got := runner.count(); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
}

func TestTriggerFlushCoalescesRedundantKicks(t *testing.T) {
	runner := newBlockingRunner()
	s, err := New(runner, "", logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	s.TriggerFlush()
	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("first run did not start")
	}

	// While the first run is blocked, redundant kicks collapse into a
	// single queued run.
	for i := 0; i < 10; i++ {
		s.TriggerFlush()
	}
	close(runner.release)

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("queued run did not start")
	}

	// No third run may appear.
	select {
	case <-runner.started:
		t.Fatalf("expected 2 runs total, got %d", runner.count())
	case <-time.After(100 * time.Millisecond):
	}

	if got := runner.count(); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
}

// inspectingRunner records the context its run was handed.
type inspectingRunner struct {
	hadDeadline bool
	ctxErr      error
	done        chan struct{}
}

func (r *inspectingRunner) Run(ctx context.Context) *model.FlushResult {
	_, r.hadDeadline = ctx.Deadline()
	r.ctxErr = ctx.Err()
	close(r.done)
	return &model.FlushResult{}
}

func TestRunContextIsNotCancellable(t *testing.T) {
	runner := &inspectingRunner{done: make(chan struct{})}
	s, err := New(runner, "", logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	defer s.Stop()

	s.TriggerFlush()
	select {
	case <-runner.done:
	case <-time.After(time.Second):
		t.Fatal("run did not start")
	}

	if runner.hadDeadline {
		t.Fatal("flush runs must not carry a deadline")
	}
	if runner.ctxErr != nil {
		t.Fatalf("flush run context already cancelled: %v", runner.ctxErr)
	}
}

func TestStopHaltsTheLoop(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)

	s, err := New(runner, "", logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	s.Stop()

	s.TriggerFlush()
	select {
	case <-runner.started:
		t.Fatal("run started after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}
