// Package events keeps an append-only JSONL journal of tunnel lifecycle
// transitions.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treykane/vpnpick/internal/appconfig"
	"github.com/treykane/vpnpick/internal/model"
)

const TypeTransition = "transition"

// Event is one tunnel lifecycle record persisted to events.jsonl.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	SessionID string            `json:"session_id,omitempty"`
	Hostname  string            `json:"hostname,omitempty"`
	EventType string            `json:"event_type"`
	State     model.TunnelState `json:"state,omitempty"`
	Message   string            `json:"message,omitempty"`
	PID       int               `json:"pid,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	Hostname  string
	SessionID string
	EventType string
	State     model.TunnelState
	Since     time.Time
	Limit     int
}

// Session is the journal's view of one connection attempt.
type Session struct {
	ID        string            `json:"session_id"`
	Hostname  string            `json:"hostname"`
	PID       int               `json:"pid,omitempty"`
	Started   time.Time         `json:"started"`
	Ended     time.Time         `json:"ended,omitempty"`
	LastState model.TunnelState `json:"last_state"`
	Connected bool              `json:"connected"`
	// Verify is the verification status recorded on entering Connected.
	Verify string `json:"verify,omitempty"`
	// Failure is the launch error for attempts that never started.
	Failure string `json:"failure,omitempty"`
}

// Duration is the time between the first and the terminated transition, or
// zero while the attempt has no terminated record.
func (s Session) Duration() time.Duration {
	if s.Ended.IsZero() {
		return 0
	}
	return s.Ended.Sub(s.Started)
}

// Open reports whether the journal never saw the attempt terminate, e.g.
// after a crash.
func (s Session) Open() bool {
	return s.LastState != model.TunnelTerminated
}

// Store provides append/read access to the local event journal.
type Store struct {
	path string
}

// NewStore uses events.jsonl in the application state directory.
func NewStore() *Store {
	return &Store{path: filepath.Join(appconfig.StateDir(), "events.jsonl")}
}

func (s *Store) Path() string { return s.path }

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Read returns events in append order, filtered by query. With a limit only
// the most recent matches are kept.
func (s *Store) Read(q Query) ([]Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if !matches(evt, q) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func matches(evt Event, q Query) bool {
	if strings.TrimSpace(q.Hostname) != "" && evt.Hostname != q.Hostname {
		return false
	}
	if strings.TrimSpace(q.SessionID) != "" && evt.SessionID != q.SessionID {
		return false
	}
	if strings.TrimSpace(q.EventType) != "" && evt.EventType != q.EventType {
		return false
	}
	if q.State != "" && evt.State != q.State {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// Sessions groups transition events by session in order of first
// appearance. Query.Limit bounds the number of sessions, keeping the most
// recent; Query.State is ignored so every summary sees its full history.
func (s *Store) Sessions(q Query) ([]Session, error) {
	limit := q.Limit
	q.Limit = 0
	q.State = ""
	q.EventType = TypeTransition
	evts, err := s.Read(q)
	if err != nil {
		return nil, err
	}
	out := Summarize(evts)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Summarize folds transition events into per-session summaries. Events
// without a session ID are skipped.
func Summarize(evts []Event) []Session {
	var out []Session
	index := map[string]int{}
	for _, evt := range evts {
		if evt.SessionID == "" {
			continue
		}
		i, ok := index[evt.SessionID]
		if !ok {
			i = len(out)
			index[evt.SessionID] = i
			out = append(out, Session{ID: evt.SessionID, Hostname: evt.Hostname, Started: evt.Timestamp})
		}
		sess := &out[i]
		sess.LastState = evt.State
		if evt.PID != 0 {
			sess.PID = evt.PID
		}
		switch evt.State {
		case model.TunnelConnected:
			sess.Connected = true
			sess.Verify = evt.Message
		case model.TunnelTerminated:
			sess.Ended = evt.Timestamp
			if sess.PID == 0 {
				sess.Failure = evt.Message
			}
		}
	}
	return out
}
