package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := New()
	c.LookupURL = url
	c.PingURL = url
	return c
}

func TestLookup(t *testing.T) {
	t.Run("decodes service response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ip":"203.0.113.7","city":"Paris","region":"Île-de-France","country":"FR","org":"AS1"}`))
		}))
		defer srv.Close()

		info, err := testClient(srv.URL).Lookup(context.Background())
		require.NoError(t, err)
		assert.Equal(t, Info{IP: "203.0.113.7", City: "Paris", Region: "Île-de-France", Country: "FR"}, info)
	})

	t.Run("missing fields stay empty", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ip":"203.0.113.7"}`))
		}))
		defer srv.Close()

		info, err := testClient(srv.URL).Lookup(context.Background())
		require.NoError(t, err)
		assert.Empty(t, info.City)
		assert.Empty(t, info.Country)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Lookup(context.Background())
		require.Error(t, err)
	})

	t.Run("times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := testClient(srv.URL)
		c.LookupTimeout = 50 * time.Millisecond
		_, err := c.Lookup(context.Background())
		require.Error(t, err)
	})
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d, err := testClient(srv.URL).Ping(context.Background())
	require.NoError(t, err)
	assert.Greater(t, d, time.Duration(0))
}

func TestInfoMatches(t *testing.T) {
	info := Info{City: "Montréal", Region: "Quebec"}
	assert.True(t, info.Matches("montréal"))
	assert.True(t, info.Matches("QUEBEC"))
	assert.False(t, info.Matches("Paris"))
	assert.False(t, info.Matches(""))
}
