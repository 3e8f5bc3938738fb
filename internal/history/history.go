// Package history remembers when each endpoint last carried a successful
// connection.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/treykane/vpnpick/internal/appconfig"
)

type store struct {
	LastUsed map[string]int64 `json:"last_used"`
}

func filePath() string {
	return filepath.Join(appconfig.StateDir(), "history.json")
}

// Touch records a successful connection to hostname.
func Touch(hostname string) error {
	st, err := load()
	if err != nil {
		return err
	}
	st.LastUsed[hostname] = time.Now().Unix()
	return save(st)
}

// LastUsed returns last successful connection timestamps by hostname.
func LastUsed() (map[string]int64, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	return st.LastUsed, nil
}

// MostRecent returns the hostname used most recently, or "" when there is no
// history. Ties resolve to the lexically smaller hostname.
func MostRecent() (string, error) {
	used, err := LastUsed()
	if err != nil {
		return "", err
	}
	var (
		best   string
		bestTS int64
	)
	for host, ts := range used {
		if ts > bestTS || (ts == bestTS && host < best) {
			best, bestTS = host, ts
		}
	}
	return best, nil
}

func load() (store, error) {
	b, err := os.ReadFile(filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return store{LastUsed: map[string]int64{}}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{LastUsed: map[string]int64{}}, nil
	}
	if st.LastUsed == nil {
		st.LastUsed = map[string]int64{}
	}
	return st, nil
}

func save(st store) error {
	path := filePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
