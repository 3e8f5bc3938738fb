package security

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treykane/vpnpick/internal/appconfig"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Finding struct {
	Severity       Severity `json:"severity"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type AuditReport struct {
	Findings []Finding `json:"findings"`
}

func (r AuditReport) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// RunLocalAudit inspects the configured download sources and the
// permissions of files that carry tunnel credentials.
func RunLocalAudit(cfg appconfig.Config) (AuditReport, error) {
	var findings []Finding

	// The generator runs as root, so it must not arrive over plaintext.
	for _, u := range []struct{ key, value string }{
		{"upstream.generator_url", cfg.Upstream.GeneratorURL},
		{"upstream.template_url", cfg.Upstream.TemplateURL},
	} {
		if !isHTTPS(u.value) {
			findings = append(findings, Finding{
				Severity:       SeverityHigh,
				Target:         "config.yaml",
				Message:        fmt.Sprintf("%s is not an https URL", u.key),
				Recommendation: "download the generator and template over https",
			})
		}
	}
	if !isHTTPS(cfg.Verify.GeoURL) {
		findings = append(findings, Finding{
			Severity:       SeverityMedium,
			Target:         "config.yaml",
			Message:        "verify.geo_url is not an https URL",
			Recommendation: "use an https geolocation endpoint",
		})
	}

	checkPathPerm(&findings, cfg.WorkDir, 0o700, false)
	checkPathPerm(&findings, filepath.Join(cfg.WorkDir, cfg.Upstream.OutputName), 0o600, true)
	artifacts, err := filepath.Glob(filepath.Join(cfg.WorkDir, "vpnpick-*.conf"))
	if err != nil {
		return AuditReport{}, err
	}
	for _, a := range artifacts {
		checkPathPerm(&findings, a, 0o600, true)
	}

	checkPathPerm(&findings, appconfig.ConfigDir(), 0o700, false)
	checkPathPerm(&findings, appconfig.FilePath(), 0o600, true)

	state := appconfig.StateDir()
	checkPathPerm(&findings, state, 0o700, false)
	checkPathPerm(&findings, filepath.Join(state, "events.jsonl"), 0o600, true)

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		}
		if findings[i].Target != findings[j].Target {
			return findings[i].Target < findings[j].Target
		}
		return findings[i].Message < findings[j].Message
	})
	return AuditReport{Findings: findings}, nil
}

func isHTTPS(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.Scheme == "https" && u.Host != ""
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

func checkPathPerm(findings *[]Finding, path string, max os.FileMode, isFile bool) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		*findings = append(*findings, Finding{
			Severity:       SeverityLow,
			Target:         path,
			Message:        fmt.Sprintf("unable to inspect permissions: %v", err),
			Recommendation: "verify path and permissions manually",
		})
		return
	}
	mode := st.Mode().Perm()
	if mode&^max != 0 {
		kind := "directory"
		if isFile {
			kind = "file"
		}
		*findings = append(*findings, Finding{
			Severity:       SeverityMedium,
			Target:         path,
			Message:        fmt.Sprintf("%s permissions are too broad (%#o)", kind, mode),
			Recommendation: fmt.Sprintf("restrict permissions to %#o or tighter", max),
		})
	}
}
