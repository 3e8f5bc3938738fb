// Package config extracts endpoint records from a generated OpenVPN
// configuration and synthesizes single-endpoint configurations from it.
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/util"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

// DefaultHostnamePattern matches the naming scheme of the upstream endpoint
// list, e.g. vpn07-par.riseup.net.
const DefaultHostnamePattern = `vpn\d+-\w+\.riseup\.net`

type ParseResult struct {
	Endpoints []model.Endpoint
	Warnings  []string
}

// Parser turns remote directives into endpoints. The zero value is not
// usable; use NewParser.
type Parser struct {
	directive *regexp.Regexp
	addr      int
	port      int
	host      int
	loc       int
}

type ParserOption func(*parserOptions)

type parserOptions struct {
	hostname string
}

// WithHostnamePattern restricts accepted hostnames. The pattern is anchored
// inside the directive shape, so it must not contain its own anchors.
func WithHostnamePattern(pattern string) ParserOption {
	return func(o *parserOptions) {
		o.hostname = pattern
	}
}

// NewParser compiles the directive expression for the configured hostname
// pattern.
func NewParser(opts ...ParserOption) (*Parser, error) {
	o := parserOptions{hostname: DefaultHostnamePattern}
	for _, opt := range opts {
		opt(&o)
	}
	if _, err := regexp.Compile(o.hostname); err != nil {
		return nil, fmt.Errorf("hostname pattern: %w", err)
	}
	// Named groups keep field positions stable when the hostname pattern
	// brings capture groups of its own.
	expr := `^\s*remote\s+(?P<addr>\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\s+(?P<port>\d+)\s+#\s+(?P<host>` + o.hostname + `)\s+\((?P<loc>[^)]+)\)`
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("directive pattern: %w", err)
	}
	p := &Parser{
		directive: re,
		addr:      re.SubexpIndex("addr"),
		port:      re.SubexpIndex("port"),
		host:      re.SubexpIndex("host"),
		loc:       re.SubexpIndex("loc"),
	}
	seen := map[string]bool{}
	for _, name := range re.SubexpNames() {
		if name != "" && seen[name] {
			return nil, fmt.Errorf("hostname pattern reuses group name %q", name)
		}
		seen[name] = true
	}
	return p, nil
}

var defaultParser = func() *Parser {
	p, err := NewParser()
	if err != nil {
		panic(err)
	}
	return p
}()

// Parse uses the default hostname pattern.
func Parse(text string) (ParseResult, error) {
	return defaultParser.Parse(text)
}

// ParseFile uses the default hostname pattern.
func ParseFile(path string) (ParseResult, error) {
	return defaultParser.ParseFile(path)
}

// ParseFile reads path and parses its contents.
func (p *Parser) ParseFile(path string) (ParseResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ParseResult{}, vpnerr.IO("read "+path, err)
	}
	return p.Parse(string(b))
}

// Parse scans text for remote directives. Lines that do not match are
// skipped; lines that look like an annotated remote directive but fail the
// full shape are skipped with a warning. When nothing matches, the empty
// result is returned together with a parse error.
func (p *Parser) Parse(text string) (ParseResult, error) {
	var (
		endpoints []model.Endpoint
		index     = map[string]int{}
		warnings  []string
	)

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		m := p.directive.FindStringSubmatch(line)
		if m == nil {
			if looksLikeDirective(line) {
				warnings = append(warnings, fmt.Sprintf("line %d: unrecognized remote directive", lineNo))
			}
			continue
		}
		address, portStr, hostname, location := m[p.addr], m[p.port], m[p.host], strings.TrimSpace(m[p.loc])

		port, err := util.ParsePort(portStr)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: %v", lineNo, err))
			continue
		}

		i, ok := index[hostname]
		if !ok {
			index[hostname] = len(endpoints)
			endpoints = append(endpoints, model.Endpoint{
				Hostname: hostname,
				Address:  address,
				Location: location,
				Ports:    []int{port},
			})
			continue
		}
		ep := &endpoints[i]
		if ep.Address != address {
			warnings = append(warnings, fmt.Sprintf("line %d: %s listed with address %s, keeping %s", lineNo, hostname, address, ep.Address))
		}
		if !ep.HasPort(port) {
			ep.Ports = append(ep.Ports, port)
		}
	}
	if err := scanner.Err(); err != nil {
		return ParseResult{Warnings: warnings}, vpnerr.IO("scan config", err)
	}

	res := ParseResult{Endpoints: endpoints, Warnings: warnings}
	if len(endpoints) == 0 {
		return res, vpnerr.Parse("parse config", vpnerr.ErrNoEndpoints)
	}
	return res, nil
}

// looksLikeDirective catches annotated remote lines that failed the full
// shape, e.g. a hostname outside the accepted pattern.
func looksLikeDirective(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "remote ") && strings.Contains(trimmed, "#")
}
