// Package rank probes every endpoint of a pool and orders them by latency.
package rank

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/util"
)

// Prober measures one endpoint. Implementations must not block past their
// own timeout and must report failures as unreachable results.
type Prober interface {
	Probe(ctx context.Context, ep model.Endpoint) model.ProbeResult
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithMaxConcurrent sets the maximum number of in-flight probes.
func WithMaxConcurrent(max int) Option {
	return func(r *Ranker) {
		r.maxConcurrent = max
	}
}

type Ranker struct {
	prober        Prober
	maxConcurrent int
}

func New(prober Prober, opts ...Option) *Ranker {
	r := &Ranker{prober: prober, maxConcurrent: util.DefaultMaxConcurrentProbes}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxConcurrent <= 0 {
		r.maxConcurrent = util.DefaultMaxConcurrentProbes
	}
	return r
}

// Rank probes all endpoints and waits for every result before sorting and
// classifying them. It never fails: an endpoint whose probe could not run is
// unreachable, and an all-unreachable pool is still a valid ranking.
func (r *Ranker) Rank(ctx context.Context, endpoints []model.Endpoint) model.Ranking {
	results := r.probeAll(ctx, endpoints)
	Sort(results)
	ranking := Classify(results)

	slog.Info("ranked endpoints",
		slog.Int("total", ranking.Len()),
		slog.Int("reachable", ranking.Reachable()),
		slog.Duration("fastest", ranking.Fastest))
	return ranking
}

// probeAll runs at most maxConcurrent probes at a time. Each goroutine owns
// one slot of results, so the slice needs no locking.
func (r *Ranker) probeAll(ctx context.Context, endpoints []model.Endpoint) []model.ProbeResult {
	results := make([]model.ProbeResult, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrent)

	for i, ep := range endpoints {
		i, ep := i, ep
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = model.Unreachable(ep)
				return nil
			}
			results[i] = r.prober.Probe(gctx, ep)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Sort orders results ascending by latency with every unreachable entry
// after every reachable one. Unreachable entries keep their scan order.
func Sort(results []model.ProbeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Reachable != b.Reachable {
			return a.Reachable
		}
		if !a.Reachable {
			return false
		}
		return a.Latency < b.Latency
	})
}
