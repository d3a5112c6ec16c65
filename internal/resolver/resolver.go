// Package resolver follows every unresolved URL in the corpus to the end of
// its redirect chain and records the canonical form. The corpus itself is
// the work queue: any URL with a recorded outcome is never touched again, so
// interrupted runs resume where they left off.
package resolver

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"coordnet/internal/store"
)

// Resolution status markers. StatusOK records a canonical URL; everything
// else is a failure marker that blocks retry until explicitly cleared.
const (
	StatusOK               = "ok"
	StatusTimeout          = "timeout"
	StatusConnectionError  = "connection_error"
	StatusServerError      = "server_error"
	StatusTooManyRedirects = "too_many_redirects"
	StatusInvalidURL       = "invalid_url"
)

// ResolveFunc follows one URL to its final form. On failure it returns a
// status marker; the final URL may still be set if part of the chain was
// walked before the failure.
type ResolveFunc func(ctx context.Context, url string) store.Resolution

const (
	// URLs resolved per wall-clock second, averaged over any one-second
	// window, shared across all workers.
	ratePerSecond = 25
	rateBurst     = 25
)

// Resolver drives a bounded worker pool over the unresolved URLs.
type Resolver struct {
	store   *store.Store
	resolve ResolveFunc
	workers int
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New returns a resolver using fn to follow redirects. workers bounds
// concurrency inside the shared 25/second budget.
func New(st *store.Store, fn ResolveFunc, workers int, log zerolog.Logger) *Resolver {
	if workers < 1 {
		workers = 1
	}
	return &Resolver{
		store:   st,
		resolve: fn,
		workers: workers,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), rateBurst),
		log:     log,
	}
}

// Run resolves every URL without a recorded outcome, then rebuilds the
// canonical-URL join table. Individual resolution failures are persisted as
// markers, never returned; only storage failures or cancellation abort.
func (r *Resolver) Run(ctx context.Context) error {
	urls, err := r.store.UnresolvedURLs()
	if err != nil {
		return err
	}

	r.log.Info().Int("urls", len(urls)).Msg("resolving urls")

	jobs := make(chan string)
	results := make(chan store.Resolution, r.workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				if err := r.limiter.Wait(ctx); err != nil {
					return
				}
				select {
				case results <- r.resolve(ctx, u):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, u := range urls {
			select {
			case jobs <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	// All writes are serialized through this loop; workers only compute.
	writeErr := make(chan error, 1)
	go func() {
		defer close(writeErr)
		done := 0
		for res := range results {
			if err := r.store.RecordResolution(res); err != nil {
				writeErr <- err
				cancel()
				return
			}
			done++
			if done%100 == 0 {
				r.log.Info().Int("resolved", done).Int("total", len(urls)).Msg("resolution progress")
			}
		}
	}()

	wg.Wait()
	close(results)
	if err := <-writeErr; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.store.RebuildResolvedMessageURLs()
}
