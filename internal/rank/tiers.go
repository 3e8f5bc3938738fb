package rank

import (
	"time"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/util"
)

// Fastest returns the minimum reachable latency, or util.FastestFallback
// when nothing answered.
func Fastest(results []model.ProbeResult) time.Duration {
	var fastest time.Duration
	found := false
	for _, r := range results {
		if !r.Reachable {
			continue
		}
		if !found || r.Latency < fastest {
			fastest = r.Latency
			found = true
		}
	}
	if !found {
		return util.FastestFallback
	}
	return fastest
}

// Tier places a latency relative to the fastest one: below 2x is fast,
// below 4x is slow, anything else very slow.
func Tier(r model.ProbeResult, fastest time.Duration) model.Tier {
	switch {
	case !r.Reachable:
		return model.TierUnreachable
	case r.Latency < 2*fastest:
		return model.TierFast
	case r.Latency < 4*fastest:
		return model.TierSlow
	default:
		return model.TierVerySlow
	}
}

// Classify tags already-sorted results with their display tier.
func Classify(results []model.ProbeResult) model.Ranking {
	fastest := Fastest(results)
	entries := make([]model.RankedEntry, len(results))
	for i, r := range results {
		entries[i] = model.RankedEntry{ProbeResult: r, Tier: Tier(r, fastest)}
	}
	return model.Ranking{Entries: entries, Fastest: fastest}
}
