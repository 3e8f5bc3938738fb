package doctor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treykane/vpnpick/internal/appconfig"
	"github.com/treykane/vpnpick/internal/config"
	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/openvpn"
	"github.com/treykane/vpnpick/internal/security"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// privileged is swapped out in tests.
var privileged = security.IsPrivileged

// Run executes local diagnostics for connecting with cfg.
func Run(cfg appconfig.Config) (Report, error) {
	var issues []Issue

	if err := openvpn.New(cfg.Tunnel.Binary).EnsureBinary(); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "tunnel-binary",
			Target:         "PATH",
			Message:        err.Error(),
			Recommendation: "install OpenVPN or set tunnel.binary in config.yaml",
		})
	}

	if !privileged() {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "privileges",
			Target:         "euid",
			Message:        "not running as root; the tunnel cannot configure network interfaces",
			Recommendation: "run vpnpick interactively so it can re-run itself with sudo",
		})
	}

	template := filepath.Join(cfg.WorkDir, cfg.Upstream.OutputName)
	issues = append(issues, templateIssues(cfg, template)...)

	if audit, err := security.RunLocalAudit(cfg); err == nil {
		for _, f := range audit.Findings {
			sev := SeverityLow
			if f.Severity == security.SeverityMedium {
				sev = SeverityMedium
			}
			if f.Severity == security.SeverityHigh {
				sev = SeverityHigh
			}
			issues = append(issues, Issue{
				Severity:       sev,
				Check:          "security-audit",
				Target:         f.Target,
				Message:        f.Message,
				Recommendation: f.Recommendation,
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}, nil
}

func templateIssues(cfg appconfig.Config, path string) []Issue {
	if _, err := os.Stat(path); err != nil {
		return []Issue{{
			Severity:       SeverityMedium,
			Check:          "template-missing",
			Target:         path,
			Message:        "generated configuration not found",
			Recommendation: "run vpnpick once to download and generate it",
		}}
	}

	parser, err := config.NewParser(config.WithHostnamePattern(cfg.Endpoints.HostnamePattern))
	if err != nil {
		return []Issue{{
			Severity:       SeverityHigh,
			Check:          "hostname-pattern",
			Target:         "config.yaml",
			Message:        err.Error(),
			Recommendation: "fix endpoints.hostname_pattern",
		}}
	}
	res, err := parser.ParseFile(path)
	var issues []Issue
	for _, w := range res.Warnings {
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "template-warning",
			Target:         path,
			Message:        w,
			Recommendation: "regenerate the configuration or adjust endpoints.hostname_pattern",
		})
	}
	if err != nil {
		msg := err.Error()
		if errors.Is(err, os.ErrPermission) {
			msg = "permission denied"
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "template-parse",
			Target:         path,
			Message:        msg,
			Recommendation: "regenerate the configuration; no endpoints can be offered until it parses",
		})
		return issues
	}
	return append(issues, sharedAddressIssues(res.Endpoints)...)
}

// sharedAddressIssues flags endpoints that resolve to the same address,
// which makes their latency figures indistinguishable.
func sharedAddressIssues(endpoints []model.Endpoint) []Issue {
	seen := map[string][]string{}
	for _, ep := range endpoints {
		seen[ep.Address] = append(seen[ep.Address], ep.Hostname)
	}
	var issues []Issue
	for addr, hosts := range seen {
		if len(hosts) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "shared-address",
			Target:         addr,
			Message:        fmt.Sprintf("address is listed for %d hostnames: %s", len(hosts), strings.Join(hosts, ", ")),
			Recommendation: "expect identical latency for these entries",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
