package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

// remoteLine matches any remote directive with a literal IPv4 address and a
// port, annotated or not.
var remoteLine = regexp.MustCompile(`^\s*remote\s+\d+\.\d+\.\d+\.\d+\s+\d+`)

// FormatDirective renders one remote line in the same shape the parser reads.
func FormatDirective(ep model.Endpoint, port int) string {
	return fmt.Sprintf("remote %s %d # %s (%s)", ep.Address, port, ep.Hostname, ep.Location)
}

// StripDirectives removes every remote directive line from text. All other
// bytes, line endings included, are kept in order.
func StripDirectives(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, line := range strings.SplitAfter(text, "\n") {
		if remoteLine.MatchString(line) {
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

// Synthesize produces a configuration that selects only ep: one directive
// per port, a blank line, then the template without its directives.
// The output depends only on its inputs.
func Synthesize(base string, ep model.Endpoint) string {
	var b strings.Builder
	for _, port := range ep.Ports {
		b.WriteString(FormatDirective(ep, port))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(StripDirectives(base))
	return b.String()
}

// ArtifactPath returns the per-hostname location of a synthesized config.
func ArtifactPath(dir, hostname string) (string, error) {
	if err := validateHostname(hostname); err != nil {
		return "", err
	}
	return filepath.Join(dir, "vpnpick-"+hostname+".conf"), nil
}

// WriteArtifact synthesizes the config for ep from base and writes it to its
// artifact path, replacing any previous file for the same hostname.
// Artifacts embed client credentials from the template, so they are 0600.
func WriteArtifact(dir string, ep model.Endpoint, base string) (string, error) {
	path, err := ArtifactPath(dir, ep.Hostname)
	if err != nil {
		return "", vpnerr.IO("artifact path", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", vpnerr.IO("create "+dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".vpnpick-*.conf")
	if err != nil {
		return "", vpnerr.IO("create temp artifact", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(Synthesize(base, ep)); err != nil {
		_ = tmp.Close()
		return "", vpnerr.IO("write "+tmpName, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return "", vpnerr.IO("chmod "+tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", vpnerr.IO("close "+tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", vpnerr.IO("rename to "+path, err)
	}
	return path, nil
}

// SynthesizeFile reads the template at templatePath and writes the artifact
// for ep into dir.
func SynthesizeFile(templatePath, dir string, ep model.Endpoint) (string, error) {
	b, err := os.ReadFile(templatePath)
	if err != nil {
		return "", vpnerr.IO("read template", err)
	}
	return WriteArtifact(dir, ep, string(b))
}

func validateHostname(hostname string) error {
	if strings.TrimSpace(hostname) == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	if strings.ContainsAny(hostname, `/\ `) || strings.HasPrefix(hostname, ".") {
		return fmt.Errorf("hostname %q is not usable as a file name", hostname)
	}
	return nil
}
