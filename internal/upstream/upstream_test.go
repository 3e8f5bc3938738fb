package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treykane/vpnpick/internal/appconfig"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

const generatorScript = `#!/bin/sh
test -f riseup-ovpn.sample.conf || exit 2
cp riseup-ovpn.sample.conf riseup-ovpn.conf
echo "remote 1.2.3.4 443 # vpn1-par.riseup.net (Paris)" >> riseup-ovpn.conf
`

func testFetcher() *Fetcher {
	f := NewFetcher(3)
	f.Delay = time.Millisecond
	return f
}

func testConfig(t *testing.T, srv *httptest.Server) appconfig.Config {
	t.Helper()
	cfg := appconfig.Default()
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	cfg.Upstream.GeneratorURL = srv.URL + "/generate.sh"
	cfg.Upstream.TemplateURL = srv.URL + "/riseup-ovpn.sample.conf"
	return cfg
}

func upstreamServer(generator string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/generate.sh", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(generator))
	})
	mux.HandleFunc("/riseup-ovpn.sample.conf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("client\ndev tun\n"))
	})
	return httptest.NewServer(mux)
}

func TestDownload(t *testing.T) {
	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("payload"))
		}))
		defer srv.Close()

		dest := filepath.Join(t.TempDir(), "file")
		require.NoError(t, testFetcher().Download(context.Background(), srv.URL, dest, 0o600))
		assert.Equal(t, int32(3), calls.Load())

		b, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(b))
		st, err := os.Stat(dest)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		dest := filepath.Join(t.TempDir(), "file")
		err := testFetcher().Download(context.Background(), srv.URL, dest, 0o600)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.NoFileExists(t, dest)
	})

	t.Run("keeps previous file on failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		dest := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(dest, []byte("old"), 0o600))
		require.Error(t, testFetcher().Download(context.Background(), srv.URL, dest, 0o600))

		b, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "old", string(b))
	})
}

func TestPrepare(t *testing.T) {
	t.Run("runs generator and returns output", func(t *testing.T) {
		srv := upstreamServer(generatorScript)
		defer srv.Close()
		cfg := testConfig(t, srv)

		path, err := testFetcher().Prepare(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(cfg.WorkDir, "riseup-ovpn.conf"), path)

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(b), "vpn1-par.riseup.net (Paris)")

		st, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
	})

	t.Run("returns without waiting for generator children", func(t *testing.T) {
		srv := upstreamServer(generatorScript + "sleep 3 &\n")
		defer srv.Close()
		cfg := testConfig(t, srv)

		start := time.Now()
		_, err := testFetcher().Prepare(context.Background(), cfg)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("missing output is fatal", func(t *testing.T) {
		srv := upstreamServer("#!/bin/sh\nexit 1\n")
		defer srv.Close()
		cfg := testConfig(t, srv)

		_, err := testFetcher().Prepare(context.Background(), cfg)
		require.Error(t, err)
		assert.True(t, vpnerr.IsKind(err, vpnerr.KindIO))
	})

	t.Run("stale output is not reused after a generator failure", func(t *testing.T) {
		srv := upstreamServer("#!/bin/sh\nexit 1\n")
		defer srv.Close()
		cfg := testConfig(t, srv)
		require.NoError(t, os.MkdirAll(cfg.WorkDir, 0o700))
		require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkDir, "riseup-ovpn.conf"), []byte("old"), 0o600))

		_, err := testFetcher().Prepare(context.Background(), cfg)
		require.Error(t, err)
	})

	t.Run("offline start reuses previous output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		cfg := testConfig(t, srv)
		require.NoError(t, os.MkdirAll(cfg.WorkDir, 0o700))
		previous := filepath.Join(cfg.WorkDir, "riseup-ovpn.conf")
		require.NoError(t, os.WriteFile(previous, []byte("remote 1.2.3.4 443 # vpn1-par.riseup.net (Paris)\n"), 0o600))

		path, err := testFetcher().Prepare(context.Background(), cfg)
		require.NoError(t, err)
		assert.Equal(t, previous, path)
	})

	t.Run("download failure without previous output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()
		cfg := testConfig(t, srv)

		_, err := testFetcher().Prepare(context.Background(), cfg)
		require.Error(t, err)
		assert.True(t, vpnerr.IsKind(err, vpnerr.KindIO))
	})
}
