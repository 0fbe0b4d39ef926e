// Package workerpool provides the CPU-stage per-sample goroutine fan-out the
// executor uses to run an operator's host-side work across a batch. The
// fan-out/join shape follows the branch-parallel pattern used elsewhere in
// this codebase's ancestry, generalized from a fixed set of branches to an
// arbitrary task count submitted per call.
package workerpool

import "sync"

// Pool runs submitted task batches across a bounded number of goroutines.
// Unlike a long-lived worker-queue pool, Pool has no background goroutines
// of its own: Run blocks the caller until every task in the batch completes,
// which matches the per-operator-invocation CPU work the executor dispatches.
type Pool struct {
	numWorkers int
}

// New returns a Pool that runs at most numWorkers tasks concurrently per
// Run call. numWorkers <= 0 means unbounded (one goroutine per task).
func New(numWorkers int) *Pool {
	return &Pool{numWorkers: numWorkers}
}

// Run executes fn(i) for i in [0, n) and returns the first non-nil error, if
// any. All n calls are started (none are skipped after an error), but Run
// returns only after every call has returned.
func (p *Pool) Run(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, n)

	if p.numWorkers <= 0 || p.numWorkers >= n {
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(i int) {
				defer wg.Done()
				errs[i] = fn(i)
			}(i)
		}
		wg.Wait()
	} else {
		tasks := make(chan int)
		wg.Add(p.numWorkers)
		for w := 0; w < p.numWorkers; w++ {
			go func() {
				defer wg.Done()
				for i := range tasks {
					errs[i] = fn(i)
				}
			}()
		}
		for i := 0; i < n; i++ {
			tasks <- i
		}
		close(tasks)
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
