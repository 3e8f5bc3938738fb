// Package cli provides the command-line interface for vpnpick.
package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/vpnpick/internal/appconfig"
	"github.com/treykane/vpnpick/internal/config"
	"github.com/treykane/vpnpick/internal/events"
	"github.com/treykane/vpnpick/internal/geo"
	"github.com/treykane/vpnpick/internal/openvpn"
	"github.com/treykane/vpnpick/internal/probe"
	"github.com/treykane/vpnpick/internal/rank"
	"github.com/treykane/vpnpick/internal/security"
	"github.com/treykane/vpnpick/internal/session"
	"github.com/treykane/vpnpick/internal/tunnel"
	"github.com/treykane/vpnpick/internal/ui"
	"github.com/treykane/vpnpick/internal/upstream"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vpnpick",
		Short:         "Pick the fastest VPN endpoint and keep a tunnel to it",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runInteractive,
	}

	root.AddCommand(newRankCmd())
	root.AddCommand(newSynthCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd())
	return root
}

func runInteractive(cmd *cobra.Command, args []string) error {
	if !security.IsPrivileged() {
		return security.Elevate(os.Args[1:])
	}

	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	closeLog := setupLogging(cfg)
	defer closeLog()

	out := cmd.OutOrStdout()
	console := ui.NewConsole(out)
	client := openvpn.New(cfg.Tunnel.Binary)
	if err := client.EnsureBinary(); err != nil {
		return err
	}

	ctx := cmd.Context()
	console.Clear()
	console.Status("Updating servers...")
	templatePath, err := upstream.NewFetcher(cfg.Upstream.DownloadAttempts).Prepare(ctx, cfg)
	if err != nil {
		return err
	}

	parser, err := newParser(cfg)
	if err != nil {
		return err
	}
	ctrl := session.NewController(
		parser,
		newRanker(cfg),
		newSupervisor(cfg, client, console),
		ui.NewPrompter(os.Stdin, out),
		console,
	)
	sess, err := ctrl.Bootstrap(ctx, templatePath, cfg.WorkDir)
	if err != nil {
		return err
	}
	return ctrl.Run(ctx, sess)
}

func newParser(cfg appconfig.Config) (*config.Parser, error) {
	return config.NewParser(config.WithHostnamePattern(cfg.Endpoints.HostnamePattern))
}

func newRanker(cfg appconfig.Config) *rank.Ranker {
	p := probe.New(
		probe.WithPort(cfg.Probe.Port),
		probe.WithTimeout(cfg.Probe.Timeout()),
	)
	return rank.New(p, rank.WithMaxConcurrent(cfg.Probe.MaxConcurrent))
}

func newSupervisor(cfg appconfig.Config, starter tunnel.Starter, reporter tunnel.Reporter) *tunnel.Supervisor {
	loc := geo.New()
	loc.LookupURL = cfg.Verify.GeoURL
	loc.PingURL = cfg.Verify.LatencyURL
	loc.LookupTimeout = time.Duration(cfg.Verify.TimeoutSeconds) * time.Second
	loc.PingTimeout = time.Duration(cfg.Verify.LatencyTimeoutSeconds) * time.Second

	return tunnel.NewSupervisor(starter, loc,
		tunnel.WithTimings(tunnel.Timings{
			SettleDelay:    cfg.Tunnel.SettleDelay(),
			PollInterval:   cfg.Tunnel.PollInterval(),
			TerminateGrace: cfg.Tunnel.TerminateGrace(),
		}),
		tunnel.WithReporter(reporter),
		tunnel.WithJournal(events.NewStore()),
	)
}

// templateFor returns the template flag value, or the generated
// configuration in the work dir.
func templateFor(cfg appconfig.Config, flag string) string {
	if flag != "" {
		return flag
	}
	return filepath.Join(cfg.WorkDir, cfg.Upstream.OutputName)
}
