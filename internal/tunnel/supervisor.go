// Package tunnel supervises the lifetime of one tunnel process: launch,
// advisory location check, liveness polling, and guaranteed teardown.
package tunnel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/treykane/vpnpick/internal/events"
	"github.com/treykane/vpnpick/internal/geo"
	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/openvpn"
	"github.com/treykane/vpnpick/internal/util"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

// Starter abstracts tunnel process creation for testing.
type Starter interface {
	StartTunnel(configPath string) (*openvpn.TunnelProcess, error)
}

// Locator reports where traffic currently exits and how fast a well-known
// host answers.
type Locator interface {
	Lookup(ctx context.Context) (geo.Info, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// Reporter receives user-visible progress. All calls happen on the
// goroutine running Supervise.
type Reporter interface {
	StateChanged(ep model.Endpoint, state model.TunnelState)
	Verified(v model.Verification)
	Warn(msg string)
}

// Journal records lifecycle transitions.
type Journal interface {
	Append(evt events.Event) error
}

// Timings are the fixed delays of the state machine.
type Timings struct {
	SettleDelay    time.Duration
	PollInterval   time.Duration
	TerminateGrace time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		SettleDelay:    util.DefaultSettleDelay,
		PollInterval:   util.DefaultPollInterval,
		TerminateGrace: util.DefaultTerminateGrace,
	}
}

type Option func(*Supervisor)

func WithTimings(t Timings) Option {
	return func(s *Supervisor) {
		s.timings = t
	}
}

func WithReporter(r Reporter) Option {
	return func(s *Supervisor) {
		s.reporter = r
	}
}

func WithJournal(j Journal) Option {
	return func(s *Supervisor) {
		s.journal = j
	}
}

// Supervisor runs one connection attempt at a time.
type Supervisor struct {
	starter  Starter
	locator  Locator
	reporter Reporter
	journal  Journal
	timings  Timings
}

// NewSupervisor creates a supervisor. A nil locator uses the public
// geolocation service.
func NewSupervisor(starter Starter, locator Locator, opts ...Option) *Supervisor {
	if locator == nil {
		locator = geo.New()
	}
	s := &Supervisor{
		starter:  starter,
		locator:  locator,
		reporter: nopReporter{},
		timings:  DefaultTimings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	d := DefaultTimings()
	if s.timings.SettleDelay < 0 {
		s.timings.SettleDelay = d.SettleDelay
	}
	if s.timings.PollInterval <= 0 {
		s.timings.PollInterval = d.PollInterval
	}
	if s.timings.TerminateGrace <= 0 {
		s.timings.TerminateGrace = d.TerminateGrace
	}
	if s.reporter == nil {
		s.reporter = nopReporter{}
	}
	return s
}

// attempt is the live state of one Supervise call.
type attempt struct {
	id    string
	ep    model.Endpoint
	state model.TunnelState
	pid   int
}

// Supervise launches the tunnel for configPath and blocks until the process
// exits on its own or ctx is cancelled. Only a launch failure is returned as
// an error; cancellation and process exit are ordinary outcomes recorded in
// the result. Once the process has started, teardown runs exactly once on
// every return path.
func (s *Supervisor) Supervise(ctx context.Context, configPath string, ep model.Endpoint) (res model.SessionResult, err error) {
	a := &attempt{id: uuid.NewString(), ep: ep}
	res.SessionID = a.id

	s.transition(a, model.TunnelStarting, configPath)
	proc, err := s.starter.StartTunnel(configPath)
	if err != nil {
		s.transition(a, model.TunnelTerminated, err.Error())
		res.State = model.TunnelTerminated
		res.Reason = model.ReasonStartFailed
		res.ExitErr = err
		return res, vpnerr.Process("start tunnel", err)
	}
	a.pid = proc.Pid()
	started := time.Now()

	defer func() {
		s.release(a, proc)
		res.State = a.state
		res.Uptime = time.Since(started)
		if res.Reason == model.ReasonExited {
			res.ExitErr = proc.ExitErr()
		}
	}()

	s.transition(a, model.TunnelVerifying, "")
	if reason, stop := s.settle(ctx, proc); stop {
		res.Reason = reason
		return res, nil
	}

	v := s.verify(ctx, ep.Location)
	if ctx.Err() != nil {
		res.Reason = model.ReasonCancelled
		return res, nil
	}
	res.Verification = &v
	s.reporter.Verified(v)

	s.transition(a, model.TunnelConnected, string(v.Status))
	res.Reason = s.poll(ctx, proc)
	return res, nil
}

// settle waits out the settle delay. It reports stop=true when the attempt
// ended before verification could run.
func (s *Supervisor) settle(ctx context.Context, proc *openvpn.TunnelProcess) (reason string, stop bool) {
	timer := time.NewTimer(s.timings.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return model.ReasonCancelled, true
	case <-proc.Exited():
		return model.ReasonExited, true
	case <-timer.C:
		return "", false
	}
}

// verify compares the reported location against expected. The outcome is
// advisory and never aborts the attempt.
func (s *Supervisor) verify(ctx context.Context, expected string) model.Verification {
	v := model.Verification{Expected: expected}
	info, err := s.locator.Lookup(ctx)
	if err != nil {
		slog.Warn("connection verification failed", "error", err)
		v.Status = model.VerifyFailed
		v.Err = vpnerr.Verification("geolocation lookup", err)
		return v
	}
	v.IP, v.City, v.Region, v.Country = info.IP, info.City, info.Region, info.Country
	if !info.Matches(expected) {
		slog.Warn("exit location mismatch", "expected", expected, "city", info.City, "region", info.Region)
		v.Status = model.VerifyMismatch
		return v
	}
	v.Status = model.VerifyMatched
	if d, err := s.locator.Ping(ctx); err == nil {
		v.Latency = d
	} else {
		slog.Debug("latency check failed", "error", err)
	}
	return v
}

// poll checks liveness every PollInterval until the process is gone or ctx
// is cancelled.
func (s *Supervisor) poll(ctx context.Context, proc *openvpn.TunnelProcess) string {
	ticker := time.NewTicker(s.timings.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return model.ReasonCancelled
		case <-ticker.C:
			if !proc.Alive() {
				return model.ReasonExited
			}
		}
	}
}

// release stops the process if it is still running. It waits at most
// TerminateGrace after SIGTERM, then kills without waiting further.
func (s *Supervisor) release(a *attempt, proc *openvpn.TunnelProcess) {
	s.transition(a, model.TunnelTerminating, "")
	if proc.Alive() {
		if err := proc.Terminate(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.reporter.Warn("could not signal tunnel process: " + err.Error())
		}
		timer := time.NewTimer(s.timings.TerminateGrace)
		select {
		case <-proc.Exited():
		case <-timer.C:
			s.reporter.Warn("tunnel process did not exit within the grace period; killing it")
			if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.Warn("failed to kill tunnel process", "pid", a.pid, "error", err)
			}
		}
		timer.Stop()
	}
	s.transition(a, model.TunnelTerminated, "")
}

func (s *Supervisor) transition(a *attempt, state model.TunnelState, msg string) {
	a.state = state
	slog.Info("tunnel state", "session", a.id, "hostname", a.ep.Hostname, "state", state, "pid", a.pid)
	s.reporter.StateChanged(a.ep, state)
	if s.journal == nil {
		return
	}
	evt := events.Event{
		SessionID: a.id,
		Hostname:  a.ep.Hostname,
		EventType: events.TypeTransition,
		State:     state,
		Message:   msg,
		PID:       a.pid,
	}
	if err := s.journal.Append(evt); err != nil {
		slog.Warn("failed to append tunnel event", "error", err)
	}
}

type nopReporter struct{}

func (nopReporter) StateChanged(model.Endpoint, model.TunnelState) {}
func (nopReporter) Verified(model.Verification) {}
func (nopReporter) Warn(string) {}
