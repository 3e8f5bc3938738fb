package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTouchAndLastUsed(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	if err := Touch("vpn1-par.riseup.net"); err != nil {
		t.Fatalf("touch: %v", err)
	}
	got, err := LastUsed()
	if err != nil {
		t.Fatalf("last used: %v", err)
	}
	if got["vpn1-par.riseup.net"] <= 0 {
		t.Fatalf("expected timestamp for vpn1, got %+v", got)
	}
}

func TestMostRecent(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)

	host, err := MostRecent()
	if err != nil || host != "" {
		t.Fatalf("expected no history, got %q %v", host, err)
	}

	now := time.Now().Unix()
	st := store{LastUsed: map[string]int64{
		"vpn2-lon.riseup.net": now - 60,
		"vpn1-par.riseup.net": now,
	}}
	if err := save(st); err != nil {
		t.Fatal(err)
	}
	host, err = MostRecent()
	if err != nil {
		t.Fatal(err)
	}
	if host != "vpn1-par.riseup.net" {
		t.Fatalf("expected vpn1 most recent, got %s", host)
	}
}

func TestCorruptHistoryIsIgnored(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	dir := filepath.Join(state, "vpnpick")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "history.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := Touch("vpn1-par.riseup.net"); err != nil {
		t.Fatalf("touch over corrupt file: %v", err)
	}
	used, err := LastUsed()
	if err != nil || len(used) != 1 {
		t.Fatalf("unexpected history: %+v %v", used, err)
	}
}
