package rank

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/vpnpick/internal/model"
)

// fakeProber returns canned latencies by hostname; hostnames without an
// entry are unreachable.
type fakeProber struct {
	latency map[string]time.Duration
	delay   time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
	probed   []string
}

func (f *fakeProber) Probe(ctx context.Context, ep model.Endpoint) model.ProbeResult {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.probed = append(f.probed, ep.Hostname)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if d, ok := f.latency[ep.Hostname]; ok {
		return model.Reachable(ep, d)
	}
	return model.Unreachable(ep)
}

func endpoints(names ...string) []model.Endpoint {
	out := make([]model.Endpoint, 0, len(names))
	for i, n := range names {
		out = append(out, model.Endpoint{Hostname: n, Address: fmt.Sprintf("10.0.0.%d", i+1), Ports: []int{1194}})
	}
	return out
}

func hostnames(r model.Ranking) []string {
	out := make([]string, 0, r.Len())
	for _, e := range r.Entries {
		out = append(out, e.Endpoint.Hostname)
	}
	return out
}

func TestRanker_Rank(t *testing.T) {
	t.Run("sorts ascending with unreachable last", func(t *testing.T) {
		p := &fakeProber{latency: map[string]time.Duration{
			"b": 300 * time.Millisecond,
			"d": 100 * time.Millisecond,
			"e": 250 * time.Millisecond,
		}}
		r := New(p).Rank(context.Background(), endpoints("a", "b", "c", "d", "e"))

		require.Equal(t, 5, r.Len())
		assert.Equal(t, []string{"d", "e", "b", "a", "c"}, hostnames(r))
		assert.Equal(t, 100*time.Millisecond, r.Fastest)
		for i := 1; i < r.Len(); i++ {
			prev, cur := r.At(i-1), r.At(i)
			if prev.Reachable && cur.Reachable {
				assert.LessOrEqual(t, prev.Latency, cur.Latency)
			}
			if !prev.Reachable {
				assert.False(t, cur.Reachable, "reachable entry after unreachable one")
			}
		}
	})

	t.Run("all unreachable keeps every endpoint in scan order", func(t *testing.T) {
		p := &fakeProber{}
		r := New(p).Rank(context.Background(), endpoints("a", "b", "c"))

		assert.Equal(t, []string{"a", "b", "c"}, hostnames(r))
		for _, e := range r.Entries {
			assert.Equal(t, model.TierUnreachable, e.Tier)
		}
		_, ok := r.DefaultIndex()
		assert.False(t, ok)
	})

	t.Run("empty pool ranks to empty", func(t *testing.T) {
		r := New(&fakeProber{}).Rank(context.Background(), nil)
		assert.Zero(t, r.Len())
	})

	t.Run("bounds concurrency", func(t *testing.T) {
		names := make([]string, 25)
		lat := map[string]time.Duration{}
		for i := range names {
			names[i] = fmt.Sprintf("vpn%d", i)
			lat[names[i]] = time.Duration(i+1) * time.Millisecond
		}
		p := &fakeProber{latency: lat, delay: 20 * time.Millisecond}
		r := New(p, WithMaxConcurrent(4)).Rank(context.Background(), endpoints(names...))

		assert.Equal(t, 25, r.Len())
		assert.LessOrEqual(t, p.peak.Load(), int32(4))
		assert.Len(t, p.probed, 25)
	})

	t.Run("cancelled context marks unprobed endpoints unreachable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &fakeProber{latency: map[string]time.Duration{"a": time.Millisecond}}
		r := New(p).Rank(ctx, endpoints("a", "b"))

		assert.Equal(t, 2, r.Len())
		assert.Zero(t, r.Reachable())
	})
}

func TestClassify(t *testing.T) {
	ep := model.Endpoint{Hostname: "x"}
	results := []model.ProbeResult{
		model.Reachable(ep, 100*time.Millisecond),
		model.Reachable(ep, 199*time.Millisecond),
		model.Reachable(ep, 200*time.Millisecond),
		model.Reachable(ep, 399*time.Millisecond),
		model.Reachable(ep, 400*time.Millisecond),
		model.Unreachable(ep),
	}
	r := Classify(results)
	want := []model.Tier{
		model.TierFast, model.TierFast,
		model.TierSlow, model.TierSlow,
		model.TierVerySlow, model.TierUnreachable,
	}
	for i, e := range r.Entries {
		assert.Equal(t, want[i], e.Tier, "entry %d", i)
	}
}

func TestFastest_Fallback(t *testing.T) {
	assert.Equal(t, time.Second, Fastest([]model.ProbeResult{model.Unreachable(model.Endpoint{})}))
	assert.Equal(t, time.Second, Fastest(nil))
}

func TestSort_Stable(t *testing.T) {
	a := model.Endpoint{Hostname: "a"}
	b := model.Endpoint{Hostname: "b"}
	c := model.Endpoint{Hostname: "c"}
	results := []model.ProbeResult{
		model.Unreachable(a),
		model.Reachable(b, 5*time.Millisecond),
		model.Unreachable(c),
	}
	Sort(results)
	assert.Equal(t, "b", results[0].Endpoint.Hostname)
	assert.Equal(t, "a", results[1].Endpoint.Hostname)
	assert.Equal(t, "c", results[2].Endpoint.Hostname)
}
