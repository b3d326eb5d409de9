// Package app wires configuration, storage, the gateway driver and the
// announcement service into a runnable unit.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"announcer/internal/announce"
	"announcer/internal/attachments"
	"announcer/internal/config"
	"announcer/internal/gateway"
	"announcer/internal/gateway/discord"
	"announcer/internal/gateway/telegram"
	"announcer/internal/storage"
	"announcer/pkg/logx"
)

// inboxSize bounds how many operator messages can queue ahead of the single
// consumer before the gateway starts dropping.
const inboxSize = 64

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	store *storage.Store
	blobs *attachments.Manager
	gw    gateway.Gateway
	svc   *announce.Service
	poll  *announce.Poller

	inbox chan gateway.Inbound

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// Validate() already vetted these; errors here are impossible in practice.
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	busyTimeout, err := cfg.BusyTimeout()
	if err != nil {
		return nil, err
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, loc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	blobs, err := attachments.NewManager(cfg.Attachments.Dir, log.With(logx.String("comp", "attachments")))
	if err != nil {
		store.Close()
		return nil, err
	}

	gw, err := newGateway(cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	svc := announce.New(announce.Deps{
		Store:       store,
		Attachments: blobs,
		Gateway:     gw,
		Log:         log.With(logx.String("comp", "announce")),
		Location:    loc,
		OperatorID:  cfg.OperatorID,
	})

	return &App{
		cfgm:  cfgm,
		logs:  logs,
		log:   log.With(logx.String("comp", "app")),
		store: store,
		blobs: blobs,
		gw:    gw,
		svc:   svc,
		poll:  announce.NewPoller(svc, pollInterval, loc, log.With(logx.String("comp", "poller"))),
		inbox: make(chan gateway.Inbound, inboxSize),
	}, nil
}

func newGateway(cfg *config.Config, log logx.Logger) (gateway.Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Gateway.Driver)) {
	case "discord":
		return discord.New(discord.Config{
			Token: cfg.Gateway.Discord.Token,
		}, log.With(logx.String("comp", "discord")))
	case "telegram":
		pollTimeout, err := cfg.TelegramPollTimeout()
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:        cfg.Gateway.Telegram.Token,
			PollTimeout:  pollTimeout,
			Destinations: cfg.Gateway.Telegram.Destinations,
		}, log.With(logx.String("comp", "telegram")))
	default:
		return nil, fmt.Errorf("unknown gateway driver %q", cfg.Gateway.Driver)
	}
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.gw.Start(rctx, a.inbox); err != nil {
		cancel()
		return err
	}

	// Single consumer: operator commands are processed strictly in order, so
	// an edit never races its own delivery.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-rctx.Done():
				return
			case in := <-a.inbox:
				a.svc.HandleInbound(rctx, in)
			}
		}
	}()

	if err := a.poll.Start(rctx); err != nil {
		cancel()
		_ = a.gw.Stop(ctx)
		return err
	}

	// Config reloads only retune logging; everything else needs a restart.
	sub := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(rctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-rctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging configuration reloaded")
			}
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.poll.Stop(ctx)
	err := a.gw.Stop(ctx)
	a.wg.Wait()
	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logs.Close()
	return err
}
