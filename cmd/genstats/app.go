package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/genstats/client/internal/api"
	"github.com/genstats/client/internal/history"
	"github.com/genstats/client/internal/realtime"
	"github.com/genstats/client/internal/session"
	"github.com/genstats/client/internal/storage"
)

// app is one opened session: the backend client, the restored session state
// and the local stores it is persisted to.
type app struct {
	name    string
	backend *api.Client
	client  *session.Client
	store   *storage.LocalStore
	journal *history.Journal
	channel *realtime.Channel
}

type openOptions struct {
	realtime bool
}

func (c *cli) open(ctx context.Context, opts openOptions) (*app, error) {
	backend, err := api.NewClient(api.Options{
		BaseURL:     c.cfg.Backend.BaseURL,
		InsightPath: c.cfg.Backend.InsightPath,
		Timeout:     c.cfg.Timeout(),
		Logger:      c.logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.NewLocalStore(c.cfg.Storage.StateDirectory)
	if err != nil {
		return nil, err
	}

	a := &app{name: c.flags.session, backend: backend, store: store}
	sessionOpts := []session.Option{session.WithLogger(c.logger)}

	if c.cfg.Storage.EnableHistory && c.cfg.Storage.HistoryFile != "" {
		j, err := history.Open(c.cfg.Storage.HistoryFile, c.logger)
		if err != nil {
			// History is best effort; the session works without it
			c.logger.Warn("history journal unavailable", "error", err)
		} else {
			a.journal = j
			sessionOpts = append(sessionOpts, session.WithJournal(j))
		}
	}

	if opts.realtime {
		u, err := realtime.URLFromBase(c.cfg.Backend.BaseURL, c.cfg.Backend.RealtimePath)
		if err != nil {
			a.close()
			return nil, err
		}
		ch, err := realtime.Dial(ctx, u, realtime.Options{
			PingInterval:   c.cfg.PingInterval(),
			MaxMessageSize: int64(c.cfg.Advanced.MaxMessageSizeKB) * 1024,
			Logger:         c.logger,
		})
		if err != nil {
			c.logger.Warn("realtime channel unavailable", "url", u, "error", err)
		} else {
			a.channel = ch
			sessionOpts = append(sessionOpts, session.WithRealtime(ch))
		}
	}

	a.client = session.New(backend, sessionOpts...)

	snap, err := store.LoadSnapshot(a.name)
	switch {
	case err == nil:
		a.client.Restore(snap)
	case errors.Is(err, storage.ErrNotFound):
	default:
		c.logger.Warn("ignoring unreadable session snapshot", "session", a.name, "error", err)
	}
	return a, nil
}

// save persists the session state under the app's name.
func (a *app) save() error {
	if err := a.store.SaveSnapshot(a.name, a.client.Snapshot()); err != nil {
		return fmt.Errorf("saving session %s: %w", a.name, err)
	}
	return nil
}

func (a *app) close() {
	if a.channel != nil {
		a.channel.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
}
