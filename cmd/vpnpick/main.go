// Package main is the entry point for the vpnpick binary.
//
// Without arguments vpnpick refreshes the endpoint list, ranks every endpoint
// by TCP connect latency and offers an interactive menu; the chosen endpoint
// is connected through OpenVPN until Ctrl+C returns to the menu.
//
// Usage:
//
//	vpnpick                     # interactive menu (re-runs itself with sudo)
//	vpnpick rank                # print one ranking pass
//	vpnpick synth <hostname>    # write a single-endpoint configuration
//	vpnpick events              # show tunnel lifecycle events
//	vpnpick doctor              # check the local setup
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/treykane/vpnpick/internal/cli"
	"github.com/treykane/vpnpick/internal/security"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		slog.Error("command failed", "error", security.DebugMessage(err))
		fmt.Fprintln(os.Stderr, "Error:", security.UserMessage(err, true))
		os.Exit(1)
	}
}
