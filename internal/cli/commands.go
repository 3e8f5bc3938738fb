package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/treykane/vpnpick/internal/appconfig"
	"github.com/treykane/vpnpick/internal/config"
	"github.com/treykane/vpnpick/internal/doctor"
	"github.com/treykane/vpnpick/internal/events"
	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/ui"
	"github.com/treykane/vpnpick/internal/util"
)

// loadConfig reads the application config and installs file logging. The
// returned func closes the log file.
func loadConfig() (appconfig.Config, func(), error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return cfg, func() {}, err
	}
	return cfg, setupLogging(cfg), nil
}

func newRankCmd() *cobra.Command {
	var (
		templateArg string
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Probe every endpoint once and print the ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			res, err := parseTemplate(cfg, templateFor(cfg, templateArg), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ranking := newRanker(cfg).Rank(cmd.Context(), res.Endpoints)
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), ranking)
			}
			renderRanking(cmd.OutOrStdout(), ranking)
			return nil
		},
	}
	cmd.Flags().StringVar(&templateArg, "template", "", "configuration to read endpoints from (default: generated config in work_dir)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newSynthCmd() *cobra.Command {
	var (
		templateArg string
		stdout      bool
	)
	cmd := &cobra.Command{
		Use:   "synth <hostname>",
		Short: "Write a configuration that selects only the given endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			path := templateFor(cfg, templateArg)
			res, err := parseTemplate(cfg, path, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ep, ok := findEndpoint(res.Endpoints, args[0])
			if !ok {
				return fmt.Errorf("endpoint not found: %s", args[0])
			}
			if stdout {
				base, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), config.Synthesize(string(base), ep))
				return err
			}
			out, err := config.SynthesizeFile(path, cfg.WorkDir, ep)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&templateArg, "template", "", "configuration to read endpoints from (default: generated config in work_dir)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the configuration instead of writing it")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		host     string
		state    string
		limit    int
		sessions bool
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recorded tunnel lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{Hostname: host, State: model.TunnelState(state), Limit: limit}
			if sessions {
				return renderSessions(cmd.OutOrStdout(), q, jsonOut)
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), evts)
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"TIME", "SESSION", "HOST", "STATE", "PID", "MESSAGE"})
			for _, e := range evts {
				t.AppendRow(table.Row{
					e.Timestamp.Local().Format(time.DateTime),
					shortID(e.SessionID),
					e.Hostname,
					e.State,
					e.PID,
					util.EmptyDash(e.Message),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "only events for this hostname")
	cmd.Flags().StringVar(&state, "state", "", "only events entering this state (ignored with --sessions)")
	cmd.Flags().IntVar(&limit, "limit", 50, "most recent events, or sessions with --sessions, to show (0 for all)")
	cmd.Flags().BoolVar(&sessions, "sessions", false, "summarize one row per connection attempt")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local setup for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			report, err := doctor.Run(cfg)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			if len(report.Issues) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no issues found")
				return nil
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"SEVERITY", "CHECK", "TARGET", "MESSAGE", "RECOMMENDATION"})
			for _, i := range report.Issues {
				t.AppendRow(table.Row{i.Severity, i.Check, i.Target, i.Message, i.Recommendation})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func parseTemplate(cfg appconfig.Config, path string, warnings io.Writer) (config.ParseResult, error) {
	parser, err := newParser(cfg)
	if err != nil {
		return config.ParseResult{}, err
	}
	res, err := parser.ParseFile(path)
	for _, w := range res.Warnings {
		fmt.Fprintf(warnings, "warning: %s\n", w)
	}
	return res, err
}

func findEndpoint(endpoints []model.Endpoint, hostname string) (model.Endpoint, bool) {
	for _, ep := range endpoints {
		if ep.Hostname == hostname {
			return ep, true
		}
	}
	return model.Endpoint{}, false
}

func renderRanking(w io.Writer, r model.Ranking) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "HOSTNAME", "LOCATION", "ADDRESS", "PORTS", "LATENCY", "TIER"})
	for i, e := range r.Entries {
		t.AppendRow(table.Row{
			i + 1,
			e.Endpoint.Hostname,
			util.EmptyDash(e.Endpoint.Location),
			e.Endpoint.Address,
			e.Endpoint.PortList(),
			ui.LatencyText(e),
			e.Tier,
		})
	}
	t.Render()
}

func renderSessions(w io.Writer, q events.Query, jsonOut bool) error {
	list, err := events.NewStore().Sessions(q)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(w, list)
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"STARTED", "SESSION", "HOST", "LAST STATE", "CONNECTED", "VERIFY", "DURATION"})
	for _, sess := range list {
		duration := "open"
		if !sess.Open() {
			duration = sess.Duration().Round(time.Second).String()
		}
		verify := sess.Verify
		if sess.Failure != "" {
			verify = sess.Failure
		}
		t.AppendRow(table.Row{
			sess.Started.Local().Format(time.DateTime),
			shortID(sess.ID),
			sess.Hostname,
			sess.LastState,
			sess.Connected,
			util.EmptyDash(verify),
			duration,
		})
	}
	t.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return util.EmptyDash(id)
}
