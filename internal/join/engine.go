package join

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"coordnet/internal/store"
	"coordnet/internal/text"
)

// Engine computes one coordination network over a corpus.
type Engine struct {
	store *store.Store
	log   zerolog.Logger
}

// New returns an engine bound to a corpus.
func New(st *store.Store, log zerolog.Logger) *Engine {
	return &Engine{store: st, log: log}
}

// Compute materializes the network described by cfg, replacing any previous
// materialization of the same type. On any failure, including cancellation,
// the previous network table is left untouched.
func (e *Engine) Compute(ctx context.Context, cfg Config) error {
	if cfg.Window < 0 {
		return fmt.Errorf("time window must be non-negative, got %v", cfg.Window)
	}

	if err := e.prepare(cfg); err != nil {
		return err
	}

	// A failing worker cancels the producer and its siblings; the previous
	// network table survives because the replace below never runs.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	groups, scanErr := e.scanGroups(ctx, cfg)

	counts, err := e.joinGroups(ctx, cancel, cfg, groups)
	if err != nil {
		return err
	}
	if err := <-scanErr; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	edges := make([]store.Edge, 0, len(counts))
	for p, w := range counts {
		edges = append(edges, store.Edge{UserA: p.a, UserB: p.b, Weight: w})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].UserA != edges[j].UserA {
			return edges[i].UserA < edges[j].UserA
		}
		return edges[i].UserB < edges[j].UserB
	})

	e.log.Info().
		Str("network", string(cfg.Type)).
		Int("edges", len(edges)).
		Msg("writing network table")

	return e.store.ReplaceNetwork(string(cfg.Type), edges, cfg.MinEdgeWeight)
}

// prepare backfills the derived columns a network type joins on.
func (e *Engine) prepare(cfg Config) error {
	switch cfg.Type {
	case CoTweet:
		e.log.Info().Msg("fingerprinting message content")
		return e.store.EnsureFingerprints()
	case CoSimilarTweet:
		e.log.Info().Msg("tokenizing message content")
		return e.store.EnsureTokenSets()
	default:
		return nil
	}
}

// events returns the keyed event cursor for the configured network type.
func (e *Engine) events(cfg Config) (*store.EventRows, error) {
	switch cfg.Type {
	case CoRetweet:
		return e.store.RepostEvents()
	case CoTweet:
		return e.store.ContentEvents()
	case CoReply:
		return e.store.ReplyEvents()
	case CoLink:
		return e.store.LinkEvents(cfg.Resolved)
	case CoPost:
		return e.store.PostEvents()
	case CoSimilarTweet:
		return e.store.SimilarityEvents()
	default:
		return nil, fmt.Errorf("unknown network type %q", cfg.Type)
	}
}

// scanGroups streams key groups from the store on a producer goroutine. The
// returned error channel carries the producer's outcome after the group
// channel closes.
func (e *Engine) scanGroups(ctx context.Context, cfg Config) (<-chan []event, <-chan error) {
	groups := make(chan []event, cfg.workers())
	errc := make(chan error, 1)

	go func() {
		defer close(groups)
		if cfg.Type == CoSimilarTweet {
			errc <- e.scanBuckets(ctx, cfg, groups)
			return
		}
		errc <- e.scanKeyed(ctx, cfg, groups)
	}()

	return groups, errc
}

// scanKeyed slices the key-ordered event stream into groups on key change.
func (e *Engine) scanKeyed(ctx context.Context, cfg Config, groups chan<- []event) error {
	rows, err := e.events(cfg)
	if err != nil {
		return err
	}
	defer rows.Close()

	var current []event
	var currentKey string
	flush := func() bool {
		if len(current) < 2 {
			// A group of one can never produce a pair.
			current = nil
			return true
		}
		select {
		case groups <- current:
			current = nil
			return true
		case <-ctx.Done():
			return false
		}
	}

	for rows.Next() {
		ev, err := rows.Event()
		if err != nil {
			return err
		}
		if len(current) > 0 && ev.Key != currentKey {
			if !flush() {
				return ctx.Err()
			}
		}
		currentKey = ev.Key
		current = append(current, event{Event: ev})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scanning key groups: %w", err)
	}
	if !flush() {
		return ctx.Err()
	}
	return nil
}

// scanBuckets reads the time-ordered similarity stream and assigns each
// event to exactly one candidate bucket. Events arrive in timestamp order,
// so each bucket's slice is already sorted for the sliding window.
func (e *Engine) scanBuckets(ctx context.Context, cfg Config, groups chan<- []event) error {
	rows, err := e.events(cfg)
	if err != nil {
		return err
	}
	defer rows.Close()

	bucketer := cfg.bucketer()
	buckets := make(map[string][]event)
	n := 0
	for rows.Next() {
		ev, err := rows.Event()
		if err != nil {
			return err
		}
		tokens := text.SplitTokens(ev.TokenSet)
		key := bucketer.Bucket(tokens)
		buckets[key] = append(buckets[key], event{Event: ev, tokens: tokens})

		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scanning similarity events: %w", err)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if len(buckets[k]) < 2 {
			continue
		}
		select {
		case groups <- buckets[k]:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// joinGroups drains the group channel through a worker pool, each worker
// running the sliding window per group into a local count table, then merges
// the partial tables. Counts are independent of worker count and dispatch
// order because the merge is a commutative sum.
func (e *Engine) joinGroups(ctx context.Context, cancel context.CancelFunc, cfg Config, groups <-chan []event) (pairCounts, error) {
	accept := acceptAll
	if cfg.Type == CoSimilarTweet {
		scorer := cfg.scorer()
		threshold := cfg.SimilarityThreshold
		accept = func(a, b *event) bool {
			return scorer.Score(a.tokens, b.tokens) >= threshold
		}
	}

	workers := cfg.workers()
	partials := make([]pairCounts, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			local := make(pairCounts)
			partials[w] = local
			for group := range groups {
				if err := windowPairs(ctx, group, cfg.Window, accept, local); err != nil {
					errs <- err
					cancel()
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}

	counts := make(pairCounts)
	for _, p := range partials {
		counts.merge(p)
	}
	return counts, nil
}
