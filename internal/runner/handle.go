package runner

import (
	"context"
	"time"

	"github.com/dcallahan11/resybot-open/internal/store"
)

// Run is the handle for an in-flight sniping run launched by Start.
type Run struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Cancel signals the run to stop. The run unwinds at its next suspension
// point and finishes with an aborted result. Safe to call more than once.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once the run reaches a terminal result.
func (r *Run) Done() <-chan struct{} { return r.done }

// Result is valid after Done is closed.
func (r *Run) Result() Result { return r.result }

// Start launches a run with a hard deadline. The deadline is enforced by the
// context, not by the loop measuring its own elapsed time: when it fires, the
// run unwinds as aborted.
func (r *Runner) Start(ctx context.Context, task store.Task, accts Accounts, proxies []string, timeout time.Duration) *Run {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	run := &Run{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer cancel()
		run.result = r.Run(runCtx, task, accts, proxies)
		close(run.done)
	}()
	return run
}
