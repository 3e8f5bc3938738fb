package model

import (
	"strconv"
	"strings"
	"time"
)

// Endpoint is one tunnel server extracted from a remote directive.
type Endpoint struct {
	Hostname string `json:"hostname"`
	Address  string `json:"address"`
	Location string `json:"location"`
	Ports    []int  `json:"ports"`
}

func (e Endpoint) DisplayName() string {
	if e.Location == "" {
		return e.Hostname
	}
	return e.Hostname + " (" + e.Location + ")"
}

func (e Endpoint) PortList() string {
	parts := make([]string, 0, len(e.Ports))
	for _, p := range e.Ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

// HasPort reports whether p is already recorded for the endpoint.
func (e Endpoint) HasPort(p int) bool {
	for _, existing := range e.Ports {
		if existing == p {
			return true
		}
	}
	return false
}

// ProbeResult is the outcome of measuring one Endpoint. An unreachable
// endpoint carries Reachable=false and a zero Latency.
type ProbeResult struct {
	Endpoint  Endpoint      `json:"endpoint"`
	Latency   time.Duration `json:"latency"`
	Reachable bool          `json:"reachable"`
	ProbedAt  time.Time     `json:"probed_at"`
}

// Reachable builds a successful probe outcome.
func Reachable(ep Endpoint, latency time.Duration) ProbeResult {
	return ProbeResult{Endpoint: ep, Latency: latency, Reachable: true, ProbedAt: time.Now()}
}

// Unreachable builds the failed/timed-out probe outcome.
func Unreachable(ep Endpoint) ProbeResult {
	return ProbeResult{Endpoint: ep, ProbedAt: time.Now()}
}

type Tier string

const (
	TierFast        Tier = "fast"
	TierSlow        Tier = "slow"
	TierVerySlow    Tier = "very-slow"
	TierUnreachable Tier = "unreachable"
)

type RankedEntry struct {
	ProbeResult
	Tier Tier `json:"tier"`
}

// Ranking is the sorted, classified result of one probe pass. It is built
// once per session and never mutated afterwards.
type Ranking struct {
	Entries []RankedEntry `json:"entries"`
	Fastest time.Duration `json:"fastest"`
}

func (r Ranking) Len() int { return len(r.Entries) }

func (r Ranking) At(i int) RankedEntry { return r.Entries[i] }

// DefaultIndex returns the index of the top-ranked reachable entry.
func (r Ranking) DefaultIndex() (int, bool) {
	for i, e := range r.Entries {
		if e.Reachable {
			return i, true
		}
	}
	return 0, false
}

func (r Ranking) Reachable() int {
	n := 0
	for _, e := range r.Entries {
		if e.Reachable {
			n++
		}
	}
	return n
}

type TunnelState string

const (
	TunnelStarting    TunnelState = "starting"
	TunnelVerifying   TunnelState = "verifying"
	TunnelConnected   TunnelState = "connected"
	TunnelTerminating TunnelState = "terminating"
	TunnelTerminated  TunnelState = "terminated"
)

type VerifyStatus string

const (
	VerifyMatched  VerifyStatus = "matched"
	VerifyMismatch VerifyStatus = "mismatch"
	VerifyFailed   VerifyStatus = "failed"
)

// Verification is the advisory outcome of the post-connect location check.
type Verification struct {
	Status   VerifyStatus  `json:"status"`
	Expected string        `json:"expected"`
	IP       string        `json:"ip,omitempty"`
	City     string        `json:"city,omitempty"`
	Region   string        `json:"region,omitempty"`
	Country  string        `json:"country,omitempty"`
	Latency  time.Duration `json:"latency,omitempty"`
	Err      error         `json:"-"`
}

const (
	ReasonCancelled   = "cancelled"
	ReasonExited      = "exited"
	ReasonStartFailed = "start-failed"
)

// SessionResult summarizes one supervised connection attempt.
type SessionResult struct {
	SessionID    string        `json:"session_id"`
	State        TunnelState   `json:"state"`
	Reason       string        `json:"reason"`
	ExitErr      error         `json:"-"`
	Verification *Verification `json:"verification,omitempty"`
	Uptime       time.Duration `json:"uptime"`
}
