// Package geo queries the public IP geolocation service used to confirm that
// traffic leaves through the chosen endpoint.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/treykane/vpnpick/internal/util"
)

const (
	DefaultLookupURL = "https://ipinfo.io/json"
	DefaultPingURL   = "https://www.google.com"
)

// Info is the subset of the service response we use. Missing fields stay
// empty.
type Info struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
}

// Matches reports whether expected occurs in the city or region, ignoring
// case.
func (i Info) Matches(expected string) bool {
	return util.ContainsFold(i.City, expected) || util.ContainsFold(i.Region, expected)
}

type Client struct {
	HTTP          *http.Client
	LookupURL     string
	PingURL       string
	LookupTimeout time.Duration
	PingTimeout   time.Duration
}

// New returns a client with the default service URLs and timeouts.
func New() *Client {
	return &Client{
		HTTP:          &http.Client{},
		LookupURL:     DefaultLookupURL,
		PingURL:       DefaultPingURL,
		LookupTimeout: 10 * time.Second,
		PingTimeout:   5 * time.Second,
	}
}

// Lookup fetches the geolocation of the current public IP.
func (c *Client) Lookup(ctx context.Context) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, c.LookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.LookupURL, nil)
	if err != nil {
		return Info{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("geolocation lookup returned status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return Info{}, fmt.Errorf("decode geolocation: %w", err)
	}
	return info, nil
}

// Ping times one GET against the well-known host.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.PingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PingURL, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	return time.Since(start), nil
}
