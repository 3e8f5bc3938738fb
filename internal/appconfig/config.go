// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/treykane/vpnpick/internal/config"
	"github.com/treykane/vpnpick/internal/geo"
	"github.com/treykane/vpnpick/internal/openvpn"
	"github.com/treykane/vpnpick/internal/util"
)

const appName = "vpnpick"

const (
	DefaultGeneratorURL = "https://github.com/BarbossHack/RiseupVPN-OpenVPN/raw/refs/heads/master/generate.sh"
	DefaultTemplateURL  = "https://github.com/BarbossHack/RiseupVPN-OpenVPN/raw/refs/heads/master/riseup-ovpn.sample.conf"
)

// UpstreamConfig locates the generator script and the template it consumes.
type UpstreamConfig struct {
	GeneratorURL     string `yaml:"generator_url"`
	TemplateURL      string `yaml:"template_url"`
	GeneratorName    string `yaml:"generator_name"`
	TemplateName     string `yaml:"template_name"`
	OutputName       string `yaml:"output_name"`
	DownloadAttempts int    `yaml:"download_attempts"`
}

type ProbeConfig struct {
	Port          int `yaml:"port"`
	TimeoutMS     int `yaml:"timeout_ms"`
	MaxConcurrent int `yaml:"max_concurrent"`
}

func (p ProbeConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

type TunnelConfig struct {
	Binary                string `yaml:"binary"`
	SettleSeconds         int    `yaml:"settle_seconds"`
	PollSeconds           int    `yaml:"poll_seconds"`
	TerminateGraceSeconds int    `yaml:"terminate_grace_seconds"`
}

func (t TunnelConfig) SettleDelay() time.Duration {
	return time.Duration(t.SettleSeconds) * time.Second
}

func (t TunnelConfig) PollInterval() time.Duration {
	return time.Duration(t.PollSeconds) * time.Second
}

func (t TunnelConfig) TerminateGrace() time.Duration {
	return time.Duration(t.TerminateGraceSeconds) * time.Second
}

type VerifyConfig struct {
	GeoURL                string `yaml:"geo_url"`
	LatencyURL            string `yaml:"latency_url"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	LatencyTimeoutSeconds int    `yaml:"latency_timeout_seconds"`
}

type EndpointsConfig struct {
	HostnamePattern string `yaml:"hostname_pattern"`
}

// Config holds application-level configuration.
type Config struct {
	WorkDir   string          `yaml:"work_dir"`
	LogLevel  string          `yaml:"log_level"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Probe     ProbeConfig     `yaml:"probe"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
	Verify    VerifyConfig    `yaml:"verify"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		WorkDir:  CacheDir(),
		LogLevel: "info",
		Upstream: UpstreamConfig{
			GeneratorURL:     DefaultGeneratorURL,
			TemplateURL:      DefaultTemplateURL,
			GeneratorName:    "generate.sh",
			TemplateName:     "riseup-ovpn.sample.conf",
			OutputName:       "riseup-ovpn.conf",
			DownloadAttempts: 3,
		},
		Probe: ProbeConfig{
			Port:          util.DefaultProbePort,
			TimeoutMS:     int(util.DefaultProbeTimeout / time.Millisecond),
			MaxConcurrent: util.DefaultMaxConcurrentProbes,
		},
		Tunnel: TunnelConfig{
			Binary:                openvpn.DefaultBinary,
			SettleSeconds:         int(util.DefaultSettleDelay / time.Second),
			PollSeconds:           int(util.DefaultPollInterval / time.Second),
			TerminateGraceSeconds: int(util.DefaultTerminateGrace / time.Second),
		},
		Verify: VerifyConfig{
			GeoURL:                geo.DefaultLookupURL,
			LatencyURL:            geo.DefaultPingURL,
			TimeoutSeconds:        10,
			LatencyTimeoutSeconds: 5,
		},
		Endpoints: EndpointsConfig{HostnamePattern: config.DefaultHostnamePattern},
	}
}

// ConfigDir returns the application config directory path, honouring
// XDG_CONFIG_HOME.
func ConfigDir() string {
	xdg.Reload()
	return filepath.Join(xdg.ConfigHome, appName)
}

// CacheDir is the default working directory for downloaded and generated
// files.
func CacheDir() string {
	xdg.Reload()
	return filepath.Join(xdg.CacheHome, appName)
}

// StateDir holds history and the event journal.
func StateDir() string {
	xdg.Reload()
	return filepath.Join(xdg.StateHome, appName)
}

// FilePath returns the full path to config.yaml.
func FilePath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	path := FilePath()
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	normalize(&cfg)
	return cfg, nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	d := ConfigDir()
	if err := os.MkdirAll(d, 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	// The file names the generator that runs as root.
	path := FilePath()
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

func normalize(cfg *Config) {
	d := Default()
	if strings.TrimSpace(cfg.WorkDir) == "" {
		cfg.WorkDir = d.WorkDir
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "debug", "info", "warn", "error":
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	default:
		cfg.LogLevel = d.LogLevel
	}

	u := &cfg.Upstream
	u.GeneratorURL = util.DefaultString(u.GeneratorURL, d.Upstream.GeneratorURL)
	u.TemplateURL = util.DefaultString(u.TemplateURL, d.Upstream.TemplateURL)
	u.GeneratorName = util.DefaultString(u.GeneratorName, d.Upstream.GeneratorName)
	u.TemplateName = util.DefaultString(u.TemplateName, d.Upstream.TemplateName)
	u.OutputName = util.DefaultString(u.OutputName, d.Upstream.OutputName)
	if u.DownloadAttempts <= 0 {
		u.DownloadAttempts = d.Upstream.DownloadAttempts
	}

	p := &cfg.Probe
	if util.ValidatePort(p.Port) != nil {
		p.Port = d.Probe.Port
	}
	if p.TimeoutMS <= 0 {
		p.TimeoutMS = d.Probe.TimeoutMS
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = d.Probe.MaxConcurrent
	}

	t := &cfg.Tunnel
	t.Binary = util.DefaultString(t.Binary, d.Tunnel.Binary)
	if t.SettleSeconds < 0 {
		t.SettleSeconds = d.Tunnel.SettleSeconds
	}
	if t.PollSeconds <= 0 {
		t.PollSeconds = d.Tunnel.PollSeconds
	}
	if t.TerminateGraceSeconds <= 0 {
		t.TerminateGraceSeconds = d.Tunnel.TerminateGraceSeconds
	}

	v := &cfg.Verify
	v.GeoURL = util.DefaultString(v.GeoURL, d.Verify.GeoURL)
	v.LatencyURL = util.DefaultString(v.LatencyURL, d.Verify.LatencyURL)
	if v.TimeoutSeconds <= 0 {
		v.TimeoutSeconds = d.Verify.TimeoutSeconds
	}
	if v.LatencyTimeoutSeconds <= 0 {
		v.LatencyTimeoutSeconds = d.Verify.LatencyTimeoutSeconds
	}

	if _, err := regexp.Compile(cfg.Endpoints.HostnamePattern); err != nil || strings.TrimSpace(cfg.Endpoints.HostnamePattern) == "" {
		cfg.Endpoints.HostnamePattern = d.Endpoints.HostnamePattern
	}
}
