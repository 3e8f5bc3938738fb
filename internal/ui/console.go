package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/security"
	"github.com/treykane/vpnpick/internal/util"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Console writes user-facing progress. It satisfies tunnel.Reporter.
type Console struct {
	out io.Writer
	tty bool
}

// NewConsole writes to out. Screen clearing is enabled only when out is a
// terminal.
func NewConsole(out io.Writer) *Console {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &Console{out: out, tty: tty}
}

func (c *Console) Clear() {
	if c.tty {
		fmt.Fprint(c.out, "\033[H\033[2J")
	}
}

// Menu clears the screen and shows the banner and the ranking.
func (c *Console) Menu(r model.Ranking, lastUsed string) {
	c.Clear()
	fmt.Fprintln(c.out, renderBanner())
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderRanking(r, lastUsed))
}

func (c *Console) Status(msg string) {
	fmt.Fprintln(c.out, dimStyle.Render(msg))
}

// Invalid reports rejected menu input.
func (c *Console) Invalid(err error) {
	fmt.Fprintln(c.out, warnStyle.Render(err.Error()))
}

func (c *Console) StateChanged(ep model.Endpoint, state model.TunnelState) {
	switch state {
	case model.TunnelStarting:
		fmt.Fprintf(c.out, "Connecting to %s...\n", ep.DisplayName())
	case model.TunnelVerifying:
		fmt.Fprintln(c.out, dimStyle.Render("Waiting for the tunnel to settle..."))
	case model.TunnelConnected:
		fmt.Fprintln(c.out, "VPN connection established. Press Ctrl+C to disconnect and select another server.")
	}
}

func (c *Console) Verified(v model.Verification) {
	switch v.Status {
	case model.VerifyMatched:
		fmt.Fprintln(c.out, okStyle.Render(fmt.Sprintf("✅ Successfully connected to %s!", v.Expected)))
		fmt.Fprintf(c.out, "IP: %s | Location: %s, %s\n", util.UnknownIfEmpty(v.IP), util.UnknownIfEmpty(v.City), util.UnknownIfEmpty(v.Country))
		if v.Latency > 0 {
			fmt.Fprintf(c.out, "Latency: %s\n", util.FormatMillis(v.Latency))
		}
	case model.VerifyMismatch:
		fmt.Fprintln(c.out, warnStyle.Render(fmt.Sprintf("⚠️ Connected, but location appears to be %s instead of %s.", util.UnknownIfEmpty(v.City), v.Expected)))
	case model.VerifyFailed:
		msg := "Could not verify connection"
		if v.Err != nil {
			msg += ": " + security.UserMessage(v.Err, true)
		}
		fmt.Fprintln(c.out, warnStyle.Render(msg))
	}
}

func (c *Console) Warn(msg string) {
	fmt.Fprintln(c.out, warnStyle.Render("Warning: "+msg))
}

// Finished reports the end of one connection attempt.
func (c *Console) Finished(res model.SessionResult) {
	if res.Reason == model.ReasonExited && res.ExitErr != nil {
		fmt.Fprintln(c.out, errStyle.Render("Tunnel process exited: "+security.UserMessage(res.ExitErr, true)))
	}
	fmt.Fprintln(c.out, "VPN connection terminated.")
}

// Error reports a failed attempt; the session goes back to the menu.
func (c *Console) Error(err error) {
	fmt.Fprintln(c.out, errStyle.Render("Error connecting to VPN: "+security.UserMessage(err, true)))
}

func (c *Console) Goodbye() {
	fmt.Fprintln(c.out, "Goodbye!")
}
