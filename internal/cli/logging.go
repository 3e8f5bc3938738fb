package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/treykane/vpnpick/internal/appconfig"
)

// setupLogging sends structured logs to vpnpick.log in the work dir, since
// the terminal belongs to the menu. It falls back to warnings on stderr.
func setupLogging(cfg appconfig.Config) func() {
	level := parseLevel(cfg.LogLevel)
	if err := os.MkdirAll(cfg.WorkDir, 0o700); err == nil {
		f, err := os.OpenFile(filepath.Join(cfg.WorkDir, "vpnpick.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err == nil {
			slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
			return func() { _ = f.Close() }
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	return func() {}
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
