// Package openvpn launches the external tunnel binary against a synthesized
// configuration file.
//
// This package does NOT implement any tunnel protocol. It shells out to the
// system's openvpn binary and hands back a process handle. The caller
// (internal/tunnel) owns that handle exclusively: it polls liveness, sends
// SIGTERM, and decides when to give up waiting.
//
// Arguments are passed via exec.Command's argv, never through a shell, so a
// config path containing shell metacharacters is harmless.
package openvpn

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// DefaultBinary is resolved through PATH.
const DefaultBinary = "openvpn"

// TunnelProcess is a started tunnel process plus the single goroutine that
// reaps it.
//
// Exited is closed once the process has been waited for; ExitErr is only
// meaningful after that. Terminate and Kill are safe to call on a process
// that already exited.
type TunnelProcess struct {
	Cmd *exec.Cmd

	exited  chan struct{}
	mu      sync.Mutex
	exitErr error
}

// Track wraps an already started command and begins reaping it. Every
// TunnelProcess must be created through Track so that Wait is called
// exactly once.
func Track(cmd *exec.Cmd) *TunnelProcess {
	p := &TunnelProcess{Cmd: cmd, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	return p
}

func (p *TunnelProcess) Pid() int {
	if p.Cmd == nil || p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Exited is closed when the process has exited and been reaped.
func (p *TunnelProcess) Exited() <-chan struct{} { return p.exited }

// Alive reports whether the process has not exited yet.
func (p *TunnelProcess) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// ExitErr returns the error from Wait, nil for a clean exit or while the
// process is still running.
func (p *TunnelProcess) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Terminate asks the process to shut down.
func (p *TunnelProcess) Terminate() error {
	if !p.Alive() {
		return nil
	}
	return p.Cmd.Process.Signal(syscall.SIGTERM)
}

// Kill stops the process without giving it a chance to clean up.
func (p *TunnelProcess) Kill() error {
	if !p.Alive() {
		return nil
	}
	return p.Cmd.Process.Kill()
}

// Client launches tunnel processes. It is stateless and safe for concurrent
// use; the zero value uses DefaultBinary.
type Client struct {
	Binary string
}

// New creates a client for the given binary name or path.
func New(binary string) *Client {
	return &Client{Binary: binary}
}

func (c *Client) binary() string {
	if c == nil || c.Binary == "" {
		return DefaultBinary
	}
	return c.Binary
}

// EnsureBinary checks that the tunnel binary can be resolved. Call it before
// ranking so a missing install fails fast instead of after a menu choice.
func (c *Client) EnsureBinary() error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("%s binary not found in PATH", c.binary())
	}
	return nil
}

// BuildArgs returns the argv passed to the tunnel binary.
//
// Example output: ["--config", "/var/cache/vpnpick/vpnpick-vpn1-par.riseup.net.conf"]
func (c *Client) BuildArgs(configPath string) []string {
	return []string{"--config", configPath}
}

// StartTunnel starts the tunnel binary in the background. Its output goes to
// the null device: connection state is verified independently through the
// public IP, not through the tunnel's logs. No pipe is attached, so the exit
// is observed even while forked --up/--down scripts still run.
func (c *Client) StartTunnel(configPath string) (*TunnelProcess, error) {
	cmd := exec.Command(c.binary(), c.BuildArgs(configPath)...)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return Track(cmd), nil
}
