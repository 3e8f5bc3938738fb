// Package upstream fetches the endpoint generator and its template, then runs
// the generator to produce the configuration the menu is built from.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/treykane/vpnpick/internal/appconfig"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

const maxDownloadSize = 4 << 20

// Fetcher downloads small files with retries.
type Fetcher struct {
	HTTP     *http.Client
	Attempts uint
	Delay    time.Duration
}

func NewFetcher(attempts int) *Fetcher {
	if attempts <= 0 {
		attempts = 1
	}
	return &Fetcher{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Attempts: uint(attempts),
		Delay:    time.Second,
	}
}

// Download writes the body of url to dest with the given mode. The previous
// file, if any, is replaced only after a complete download. Client errors
// (4xx) are not retried.
func (f *Fetcher) Download(ctx context.Context, url, dest string, mode os.FileMode) error {
	return retry.Do(
		func() error {
			return f.fetch(ctx, url, dest, mode)
		},
		retry.Context(ctx),
		retry.Attempts(f.Attempts),
		retry.Delay(f.Delay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("download failed, retrying", "url", url, "attempt", n+1, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
}

func (f *Fetcher) fetch(ctx context.Context, url, dest string, mode os.FileMode) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: %s", url, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Unrecoverable(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return retry.Unrecoverable(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadSize)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return retry.Unrecoverable(err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// Prepare refreshes the generator and template in cfg.WorkDir, runs the
// generator there and returns the path of the generated configuration.
//
// A failed download is tolerated when a configuration from an earlier run is
// still present. A generator that exits non-zero is only logged; the result
// is judged by whether the output file exists.
func (f *Fetcher) Prepare(ctx context.Context, cfg appconfig.Config) (string, error) {
	u := cfg.Upstream
	dir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return "", vpnerr.IO("resolve work dir", err)
	}
	output := filepath.Join(dir, u.OutputName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", vpnerr.IO("create "+dir, err)
	}

	generator := filepath.Join(dir, u.GeneratorName)
	downloads := []struct {
		url, dest string
		mode      os.FileMode
	}{
		{u.GeneratorURL, generator, 0o755},
		{u.TemplateURL, filepath.Join(dir, u.TemplateName), 0o600},
	}
	for _, d := range downloads {
		if err := f.Download(ctx, d.url, d.dest, d.mode); err != nil {
			if vpnerr.IsContextError(err) {
				return "", vpnerr.Cancelled("download")
			}
			if fileExists(output) {
				slog.Warn("download failed, reusing existing configuration", "url", d.url, "error", err)
				return output, nil
			}
			return "", vpnerr.IO("download "+d.url, err)
		}
	}

	if err := os.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", vpnerr.IO("remove stale "+output, err)
	}
	if err := runGenerator(ctx, dir, generator); err != nil {
		slog.Warn("generator exited with an error", "generator", generator, "error", err)
	}
	if !fileExists(output) {
		return "", vpnerr.IO("generate configuration", fmt.Errorf("%s was not produced by %s", u.OutputName, u.GeneratorName))
	}
	if err := os.Chmod(output, 0o600); err != nil {
		slog.Warn("failed to restrict generated configuration", "path", output, "error", err)
	}
	return output, nil
}

func runGenerator(ctx context.Context, dir, script string) error {
	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = dir
	return cmd.Run()
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
