package runner

import (
	"context"
	"sync"

	"github.com/dcallahan11/resybot-open/internal/store"
)

// RunAll executes many tasks from a shared queue with at most concurrency
// workers. Each worker runs one task's loop to completion before dequeuing
// the next. A task whose account is unknown is recorded as failed up front
// without consuming worker time. Cancelling ctx stops new dequeues; in-flight
// runs unwind as aborted.
func (r *Runner) RunAll(ctx context.Context, tasks []store.Task, accounts map[int64]store.Account, proxies []string, concurrency int) map[int64]Result {
	results := make(map[int64]Result, len(tasks))

	var runnable []store.Task
	for _, t := range tasks {
		if _, ok := accounts[t.AccountID]; !ok {
			results[t.ID] = failed("unknown account", nil)
			continue
		}
		runnable = append(runnable, t)
	}
	if len(runnable) == 0 {
		return results
	}

	queue := make(chan store.Task, len(runnable))
	for _, t := range runnable {
		queue <- t
	}
	close(queue)

	workers := concurrency
	if workers > len(runnable) {
		workers = len(runnable)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				// Fast-exit check so cancellation wins over queued work.
				select {
				case <-ctx.Done():
					return
				default:
				}

				select {
				case <-ctx.Done():
					return
				case t, ok := <-queue:
					if !ok {
						return
					}
					accts := Accounts{Primary: accounts[t.AccountID]}
					if t.BackupAccountID != nil {
						if b, ok := accounts[*t.BackupAccountID]; ok {
							accts.Backup = &b
						}
					}
					res := r.Run(ctx, t, accts, proxies)
					mu.Lock()
					results[t.ID] = res
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return results
}
