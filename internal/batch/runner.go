// Package batch runs a list of independent jobs through a bounded pool of
// workers, collecting successful results and a failure count. One failing
// job never aborts the batch; cancellation stops workers from picking up new
// jobs while letting in-flight jobs settle.
package batch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options configures one Run invocation.
type Options struct {
	// Concurrency is the maximum number of producer calls in flight at once.
	// Values below 1 are treated as 1; the effective worker count is
	// min(Concurrency, len(jobs)).
	Concurrency int

	// OnProgress, if set, is called after every job completion (success or
	// failure) with the running completed count and the fixed total.
	OnProgress func(done, total int)
}

// Outcome is the terminal state of a batch. Results are in completion
// order, which is not deterministic; callers needing a stable order must
// re-sort downstream. After a full drain with no cancellation,
// len(Results)+Failed == len(jobs).
type Outcome[R any] struct {
	Results []R
	Failed  int
}

type job[J any] struct {
	value J
	index int
}

// Run drives all jobs through the producer with bounded concurrency.
// The producer receives the job, its original index, and a context that is
// cancelled when the caller's context is; producers may honor or ignore it.
// Run never returns an error: per-job failures are counted, and
// cancellation simply leaves the remaining jobs unprocessed.
func Run[J, R any](ctx context.Context, jobs []J, producer func(ctx context.Context, j J, index int) (R, error), opts Options) Outcome[R] {
	total := len(jobs)
	if total == 0 {
		return Outcome[R]{}
	}

	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	queue := make(chan job[J], total)
	for i, j := range jobs {
		queue <- job[J]{value: j, index: i}
	}
	close(queue)

	var (
		mu      sync.Mutex
		results []R
		failed  int
		done    int
	)

	complete := func(r R, err error) {
		mu.Lock()
		if err != nil {
			failed++
		} else {
			results = append(results, r)
		}
		done++
		d := done
		mu.Unlock()
		if opts.OnProgress != nil {
			opts.OnProgress(d, total)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				// Observed cancellation stops this worker from dequeuing;
				// anything already handed to the producer settles normally.
				if gctx.Err() != nil {
					return nil
				}
				select {
				case <-gctx.Done():
					return nil
				case item, ok := <-queue:
					if !ok {
						return nil
					}
					r, err := producer(gctx, item.value, item.index)
					if err != nil {
						log.Debug().Err(err).Int("index", item.index).Msg("Batch job failed")
					}
					complete(r, err)
				}
			}
		})
	}
	_ = g.Wait() // workers only ever return nil

	return Outcome[R]{Results: results, Failed: failed}
}
