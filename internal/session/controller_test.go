package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/treykane/vpnpick/internal/config"
	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/rank"
	"github.com/treykane/vpnpick/internal/ui"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

const template = `client
dev tun
remote 1.1.1.1 443 # vpn1-par.riseup.net (Paris)
remote 2.2.2.2 443 # vpn2-lon.riseup.net (London)
remote 1.1.1.1 80 # vpn1-par.riseup.net (Paris)
cipher AES-256-GCM
`

// latencyRanker ranks by a fixed table; missing hostnames are unreachable.
type latencyRanker struct {
	latency map[string]time.Duration
	calls   int
}

func (r *latencyRanker) Rank(ctx context.Context, eps []model.Endpoint) model.Ranking {
	r.calls++
	results := make([]model.ProbeResult, 0, len(eps))
	for _, ep := range eps {
		if d, ok := r.latency[ep.Hostname]; ok {
			results = append(results, model.Reachable(ep, d))
		} else {
			results = append(results, model.Unreachable(ep))
		}
	}
	rank.Sort(results)
	return rank.Classify(results)
}

type call struct {
	path string
	ep   model.Endpoint
}

type fakeSupervisor struct {
	calls  []call
	result model.SessionResult
	err    error
}

func (s *fakeSupervisor) Supervise(ctx context.Context, path string, ep model.Endpoint) (model.SessionResult, error) {
	s.calls = append(s.calls, call{path: path, ep: ep})
	if s.err != nil {
		return model.SessionResult{State: model.TunnelTerminated, Reason: model.ReasonStartFailed}, s.err
	}
	return s.result, nil
}

// scriptedPrompter answers from a fixed list, then reports aborted input.
type scriptedPrompter struct {
	answers []string
	labels  []string
}

func (p *scriptedPrompter) Prompt(ctx context.Context, label string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.answers) == 0 {
		return "", ui.ErrAborted
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

type recordingConsole struct {
	menus    int
	invalid  []error
	errors   []error
	finished []model.SessionResult
	goodbye  int
	statuses []string
}

func (c *recordingConsole) Menu(model.Ranking, string) { c.menus++ }
func (c *recordingConsole) Status(msg string) { c.statuses = append(c.statuses, msg) }
func (c *recordingConsole) Invalid(err error) { c.invalid = append(c.invalid, err) }
func (c *recordingConsole) Finished(res model.SessionResult) { c.finished = append(c.finished, res) }
func (c *recordingConsole) Error(err error) { c.errors = append(c.errors, err) }
func (c *recordingConsole) Goodbye() { c.goodbye++ }

type harness struct {
	ctrl    *Controller
	sup     *fakeSupervisor
	prompt  *scriptedPrompter
	console *recordingConsole
	ranker  *latencyRanker
	touched []string
	dir     string
}

func newHarness(t *testing.T, answers ...string) *harness {
	t.Helper()
	h := &harness{
		sup:     &fakeSupervisor{result: model.SessionResult{State: model.TunnelTerminated, Reason: model.ReasonCancelled, Verification: &model.Verification{Status: model.VerifyMatched}}},
		prompt:  &scriptedPrompter{answers: answers},
		console: &recordingConsole{},
		ranker: &latencyRanker{latency: map[string]time.Duration{
			"vpn1-par.riseup.net": 20 * time.Millisecond,
			"vpn2-lon.riseup.net": 50 * time.Millisecond,
		}},
		dir: t.TempDir(),
	}
	parser, err := config.NewParser()
	if err != nil {
		t.Fatal(err)
	}
	h.ctrl = NewController(parser, h.ranker, h.sup, h.prompt, h.console)
	h.ctrl.AttemptContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		return context.WithCancel(parent)
	}
	h.ctrl.Touch = func(host string) error {
		h.touched = append(h.touched, host)
		return nil
	}
	h.ctrl.MostRecent = func() (string, error) { return "vpn2-lon.riseup.net", nil }
	return h
}

func (h *harness) bootstrap(t *testing.T, text string) *Session {
	t.Helper()
	path := filepath.Join(h.dir, "riseup-ovpn.conf")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	sess, err := h.ctrl.Bootstrap(context.Background(), path, filepath.Join(h.dir, "work"))
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return sess
}

func TestBootstrapRanksOnce(t *testing.T) {
	h := newHarness(t)
	sess := h.bootstrap(t, template)

	if h.ranker.calls != 1 {
		t.Fatalf("expected one ranking pass, got %d", h.ranker.calls)
	}
	if len(sess.Endpoints) != 2 || sess.Ranking.Len() != 2 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.LastUsed != "vpn2-lon.riseup.net" {
		t.Fatalf("expected last used from history, got %q", sess.LastUsed)
	}
	if sess.ID == "" {
		t.Fatal("expected session id")
	}
}

func TestBootstrapWithoutEndpointsIsFatal(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "empty.conf")
	if err := os.WriteFile(path, []byte("client\ndev tun\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	sess, err := h.ctrl.Bootstrap(context.Background(), path, h.dir)
	if sess != nil || !vpnerr.IsKind(err, vpnerr.KindParse) {
		t.Fatalf("expected parse error, got %v %v", sess, err)
	}
	if h.ranker.calls != 0 {
		t.Fatal("nothing to rank after a parse failure")
	}
}

func TestRunDefaultSelectsFastest(t *testing.T) {
	h := newHarness(t, "", "E")
	sess := h.bootstrap(t, template)

	if err := h.ctrl.Run(context.Background(), sess); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.sup.calls) != 1 {
		t.Fatalf("expected one attempt, got %d", len(h.sup.calls))
	}
	got := h.sup.calls[0]
	if got.ep.Hostname != "vpn1-par.riseup.net" {
		t.Fatalf("expected vpn1, got %s", got.ep.Hostname)
	}
	b, err := os.ReadFile(got.path)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	wantHead := "remote 1.1.1.1 443 # vpn1-par.riseup.net (Paris)\nremote 1.1.1.1 80 # vpn1-par.riseup.net (Paris)\n\n"
	if !strings.HasPrefix(string(b), wantHead) {
		t.Fatalf("unexpected artifact:\n%s", b)
	}
	if strings.Contains(string(b), "vpn2-lon") {
		t.Fatal("artifact must only select the chosen endpoint")
	}
	if len(h.touched) != 1 || sess.LastUsed != "vpn1-par.riseup.net" {
		t.Fatalf("expected history update, got %v / %q", h.touched, sess.LastUsed)
	}
	if h.console.menus != 2 || h.console.goodbye != 1 {
		t.Fatalf("expected menu twice and goodbye once, got %d/%d", h.console.menus, h.console.goodbye)
	}
}

func TestRunInvalidInputReprompts(t *testing.T) {
	h := newHarness(t, "9", "abc", "2", "e")
	sess := h.bootstrap(t, template)

	if err := h.ctrl.Run(context.Background(), sess); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.console.invalid) != 2 {
		t.Fatalf("expected two rejections, got %v", h.console.invalid)
	}
	if !strings.Contains(h.console.invalid[0].Error(), "between 1 and 2") {
		t.Fatalf("unexpected message %q", h.console.invalid[0])
	}
	if len(h.sup.calls) != 1 || h.sup.calls[0].ep.Hostname != "vpn2-lon.riseup.net" {
		t.Fatalf("expected vpn2 attempt, got %+v", h.sup.calls)
	}
	if h.console.menus != 2 {
		t.Fatalf("re-prompting must not redraw the menu, got %d menus", h.console.menus)
	}
}

func TestRunSynthesisFailureReturnsToMenu(t *testing.T) {
	h := newHarness(t, "1", "", "e")
	sess := h.bootstrap(t, template)
	if err := os.Remove(sess.TemplatePath); err != nil {
		t.Fatal(err)
	}

	if err := h.ctrl.Run(context.Background(), sess); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.sup.calls) != 0 {
		t.Fatal("no tunnel may start without a config")
	}
	if len(h.console.errors) != 1 || !vpnerr.IsKind(h.console.errors[0], vpnerr.KindIO) {
		t.Fatalf("expected one IO error, got %v", h.console.errors)
	}
	if h.console.menus != 2 {
		t.Fatalf("expected a return to the menu, got %d menus", h.console.menus)
	}
}

func TestRunStartFailureReturnsToMenu(t *testing.T) {
	h := newHarness(t, "1", "", "E")
	h.sup.err = vpnerr.Process("start tunnel", errors.New("exec: not found"))
	sess := h.bootstrap(t, template)

	if err := h.ctrl.Run(context.Background(), sess); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.console.errors) != 1 || !vpnerr.IsKind(h.console.errors[0], vpnerr.KindProcess) {
		t.Fatalf("expected process error, got %v", h.console.errors)
	}
	if len(h.touched) != 0 {
		t.Fatal("failed attempts must not update history")
	}
}

func TestRunEndsOnClosedInput(t *testing.T) {
	h := newHarness(t)
	sess := h.bootstrap(t, template)

	if err := h.ctrl.Run(context.Background(), sess); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.console.goodbye != 1 || len(h.sup.calls) != 0 {
		t.Fatalf("expected clean exit, got goodbye=%d calls=%d", h.console.goodbye, len(h.sup.calls))
	}
}

func TestRunAttemptContextIsScoped(t *testing.T) {
	h := newHarness(t, "1", "2", "e")
	var scoped []context.Context
	h.ctrl.AttemptContext = func(parent context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(parent)
		scoped = append(scoped, ctx)
		return ctx, cancel
	}
	sess := h.bootstrap(t, template)

	if err := h.ctrl.Run(context.Background(), sess); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(scoped) != 2 {
		t.Fatalf("expected a fresh context per attempt, got %d", len(scoped))
	}
	for i, ctx := range scoped {
		if ctx.Err() == nil {
			t.Fatalf("attempt %d context not released", i)
		}
	}
}
