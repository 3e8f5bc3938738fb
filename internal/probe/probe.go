// Package probe measures endpoint reachability with a single bounded TCP
// handshake.
package probe

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/util"
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Prober.
type Option func(*options)

type options struct {
	port    int
	timeout time.Duration
	dial    DialFunc
}

// WithPort sets the port dialed on every endpoint address.
func WithPort(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

// WithTimeout sets the per-probe handshake bound.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithDialer replaces the TCP dialer.
func WithDialer(dial DialFunc) Option {
	return func(o *options) {
		o.dial = dial
	}
}

// Prober times one connection handshake per call.
type Prober struct {
	opts options
}

// New creates a Prober with the default port and timeout.
func New(opts ...Option) *Prober {
	o := options{
		port:    util.DefaultProbePort,
		timeout: util.DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = util.DefaultProbeTimeout
	}
	if util.ValidatePort(o.port) != nil {
		o.port = util.DefaultProbePort
	}
	if o.dial == nil {
		var d net.Dialer
		o.dial = d.DialContext
	}
	return &Prober{opts: o}
}

// Timeout returns the effective per-probe bound.
func (p *Prober) Timeout() time.Duration { return p.opts.timeout }

// Probe dials the endpoint once. Any failure, including the timeout or a
// cancelled ctx, yields the unreachable outcome.
func (p *Prober) Probe(ctx context.Context, ep model.Endpoint) model.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, p.opts.timeout)
	defer cancel()

	addr := util.HostPort(ep.Address, p.opts.port)
	start := time.Now()
	conn, err := p.opts.dial(probeCtx, "tcp", addr)
	if err != nil {
		slog.Debug("endpoint probe failed",
			slog.String("hostname", ep.Hostname),
			slog.String("addr", addr),
			slog.Any("error", err))
		return model.Unreachable(ep)
	}
	latency := time.Since(start)
	_ = conn.Close()

	slog.Debug("endpoint probe succeeded",
		slog.String("hostname", ep.Hostname),
		slog.Duration("latency", latency))
	return model.Reachable(ep, latency)
}
