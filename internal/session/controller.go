// Package session drives the interactive loop: rank once, then let the user
// pick endpoints and supervise one tunnel at a time until they leave.
package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/treykane/vpnpick/internal/config"
	"github.com/treykane/vpnpick/internal/history"
	"github.com/treykane/vpnpick/internal/model"
	"github.com/treykane/vpnpick/internal/ui"
	"github.com/treykane/vpnpick/internal/vpnerr"
)

type Ranker interface {
	Rank(ctx context.Context, endpoints []model.Endpoint) model.Ranking
}

type Supervisor interface {
	Supervise(ctx context.Context, configPath string, ep model.Endpoint) (model.SessionResult, error)
}

// Console is the user-facing side of the loop. ui.Console implements it.
type Console interface {
	Menu(r model.Ranking, lastUsed string)
	Status(msg string)
	Invalid(err error)
	Finished(res model.SessionResult)
	Error(err error)
	Goodbye()
}

// Session is everything one run of the menu works from. Endpoints and
// Ranking are fixed after Bootstrap; only LastUsed changes.
type Session struct {
	ID           string
	TemplatePath string
	WorkDir      string
	Endpoints    []model.Endpoint
	Warnings     []string
	Ranking      model.Ranking
	LastUsed     string
}

type Controller struct {
	Parser     *config.Parser
	Ranker     Ranker
	Supervisor Supervisor
	Prompter   ui.Prompter
	Console    Console

	// AttemptContext scopes one connection attempt. The default ends the
	// attempt on SIGINT or SIGTERM so the tunnel stops and the menu returns.
	AttemptContext func(parent context.Context) (context.Context, context.CancelFunc)
	// Touch records a connection that got past verification.
	Touch func(hostname string) error
	// MostRecent returns the last connected hostname, if any.
	MostRecent func() (string, error)
}

func NewController(parser *config.Parser, ranker Ranker, sup Supervisor, prompter ui.Prompter, console Console) *Controller {
	return &Controller{
		Parser:     parser,
		Ranker:     ranker,
		Supervisor: sup,
		Prompter:   prompter,
		Console:    console,
		AttemptContext: func(parent context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		},
		Touch:      history.Touch,
		MostRecent: history.MostRecent,
	}
}

// Bootstrap parses the template and ranks its endpoints. Both happen once
// per session; a template without endpoints is fatal.
func (c *Controller) Bootstrap(ctx context.Context, templatePath, workDir string) (*Session, error) {
	res, err := c.Parser.ParseFile(templatePath)
	for _, w := range res.Warnings {
		slog.Warn("template warning", "path", templatePath, "warning", w)
	}
	if err != nil {
		return nil, err
	}

	c.Console.Status("Testing server speeds...")
	sess := &Session{
		ID:           uuid.NewString(),
		TemplatePath: templatePath,
		WorkDir:      workDir,
		Endpoints:    res.Endpoints,
		Warnings:     res.Warnings,
		Ranking:      c.Ranker.Rank(ctx, res.Endpoints),
	}
	if c.MostRecent != nil {
		if host, err := c.MostRecent(); err == nil {
			sess.LastUsed = host
		} else {
			slog.Debug("history unavailable", "error", err)
		}
	}
	slog.Info("session ready", "session", sess.ID, "endpoints", len(sess.Endpoints), "reachable", sess.Ranking.Reachable())
	return sess, nil
}

// Run shows the menu until the user exits, input ends, or ctx is cancelled.
// Failed attempts are reported and lead back to the menu.
func (c *Controller) Run(ctx context.Context, sess *Session) error {
	defer c.Console.Goodbye()
	for {
		if ctx.Err() != nil {
			return nil
		}
		c.Console.Menu(sess.Ranking, sess.LastUsed)

		choice, err := c.choose(ctx, sess.Ranking)
		if err != nil {
			if errors.Is(err, ui.ErrAborted) || vpnerr.IsContextError(err) {
				return nil
			}
			return err
		}
		if choice.Exit {
			return nil
		}
		if !c.attempt(ctx, sess, sess.Ranking.At(choice.Index).Endpoint) {
			return nil
		}
	}
}

// choose prompts until the answer is valid.
func (c *Controller) choose(ctx context.Context, r model.Ranking) (ui.Choice, error) {
	for {
		input, err := c.Prompter.Prompt(ctx, ui.PromptLabel(r))
		if err != nil {
			return ui.Choice{}, err
		}
		choice, err := ui.ParseSelection(input, r)
		if err != nil {
			c.Console.Invalid(err)
			continue
		}
		return choice, nil
	}
}

// attempt connects to ep and blocks until the tunnel is gone. It returns
// false when the session should end.
func (c *Controller) attempt(ctx context.Context, sess *Session, ep model.Endpoint) bool {
	path, err := config.SynthesizeFile(sess.TemplatePath, sess.WorkDir, ep)
	if err != nil {
		slog.Error("synthesize failed", "hostname", ep.Hostname, "error", err)
		c.Console.Error(err)
		return c.pause(ctx)
	}

	actx, cancel := c.AttemptContext(ctx)
	res, err := c.Supervisor.Supervise(actx, path, ep)
	cancel()
	if err != nil {
		slog.Error("tunnel failed to start", "hostname", ep.Hostname, "error", err)
		c.Console.Error(err)
		return c.pause(ctx)
	}

	c.Console.Finished(res)
	if res.Verification != nil {
		sess.LastUsed = ep.Hostname
		if c.Touch != nil {
			if err := c.Touch(ep.Hostname); err != nil {
				slog.Warn("failed to record history", "hostname", ep.Hostname, "error", err)
			}
		}
	}
	if res.Reason == model.ReasonExited {
		return c.pause(ctx)
	}
	return ctx.Err() == nil
}

// pause keeps a failure on screen until the user acknowledges it.
func (c *Controller) pause(ctx context.Context) bool {
	_, err := c.Prompter.Prompt(ctx, "Press Enter to return to the menu...")
	return err == nil
}
