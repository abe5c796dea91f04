// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge wires the CasualChat client, the Telegram adapter, the link
// store, the admin API and the contact sync schedule into one process.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-extchat/pkg/admin"
	"github.com/aiku/mattermost-extchat/pkg/casualchat"
	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/extchat/telegram"
	"github.com/aiku/mattermost-extchat/pkg/linkstore"
)

type Bridge struct {
	Config  *Config
	Log     zerolog.Logger
	Version string

	// NewTransport overrides the gateway transport, mainly for tests.
	NewTransport telegram.TransportFactory

	Metrics    *prometheus.Registry
	Store      *linkstore.Store
	CasualChat *casualchat.Client
	Telegram   *telegram.Adapter
	Adapters   extchat.Registry
	Admin      *admin.Server

	cron        *cron.Cron
	syncMu      sync.Mutex
	runCtx      context.Context
	cancelRun   context.CancelFunc
	stopTracing func(context.Context) error
	stopOnce    sync.Once
}

func New(cfg *Config, log zerolog.Logger, version string) *Bridge {
	return &Bridge{
		Config:  cfg,
		Log:     log,
		Version: version,
	}
}

// Start brings up every component. On error, whatever was already started
// is torn down again.
func (b *Bridge) Start(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			b.Stop(context.WithoutCancel(ctx))
		}
	}()
	b.runCtx, b.cancelRun = context.WithCancel(context.WithoutCancel(ctx))

	b.stopTracing, err = setupTracing(ctx, b.Config.Tracing, b.Version)
	if err != nil {
		return err
	}

	b.Store, err = linkstore.Open(ctx, b.Config.Database.Path, b.Log)
	if err != nil {
		return fmt.Errorf("failed to open link store: %w", err)
	}

	b.CasualChat = casualchat.NewClient(b.Config.CasualChat.ServerURL, b.Config.CasualChat.Token, b.Log)
	if b.Config.CasualChat.VerifyToken {
		if _, err = b.CasualChat.Verify(ctx); err != nil {
			return err
		}
	}

	b.Metrics = prometheus.NewRegistry()
	b.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	newTransport := b.NewTransport
	if newTransport == nil {
		newTransport = telegram.GatewayTransport(b.Config.Telegram, b.Log)
	}
	b.Telegram, err = telegram.NewAdapter(telegram.Options{
		Config:       b.Config.Telegram,
		NewTransport: newTransport,
		Resolver:     b.CasualChat,
		Posts:        b.CasualChat,
		Status:       b.Store.Sink(extchat.PlatformTelegram),
		Registerer:   b.Metrics,
		Logger:       b.Log,
	})
	if err != nil {
		return fmt.Errorf("failed to create telegram adapter: %w", err)
	}
	b.Telegram.Start(b.runCtx)
	b.Adapters = extchat.Registry{extchat.PlatformTelegram: b.Telegram}

	if schedule := b.Config.Telegram.ContactSyncSchedule; schedule != "" {
		b.cron = cron.New()
		if _, err = b.cron.AddFunc(schedule, b.syncContacts); err != nil {
			return fmt.Errorf("failed to schedule contact sync: %w", err)
		}
		b.cron.Start()
		b.Log.Info().Str("schedule", schedule).Msg("Scheduled contact sync")
	}

	b.Admin = admin.New(admin.Options{
		Addr:        b.Config.Admin.ListenAddr,
		BearerToken: b.Config.Admin.Token,
		Adapters:    b.Adapters,
		Directory:   b.Store,
		Linker:      b.CasualChat,
		Gatherer:    b.Metrics,
		Logger:      b.Log,
	})
	if err = b.Admin.Start(); err != nil {
		return err
	}

	b.Log.Info().Str("version", b.Version).Msg("Bridge started")
	return nil
}

// syncContacts runs one scheduled pull, skipping the tick if the previous
// pull is still running.
func (b *Bridge) syncContacts() {
	if !b.syncMu.TryLock() {
		b.Log.Warn().Msg("Contact sync still running, skipping tick")
		return
	}
	defer b.syncMu.Unlock()

	if err := b.Telegram.PullContacts(b.runCtx); err != nil {
		b.Log.Err(err).Msg("Scheduled contact sync failed")
		return
	}
	b.Log.Debug().Msg("Scheduled contact sync finished")
}

// Stop shuts everything down in reverse start order. It is safe to call
// more than once and after a failed Start.
func (b *Bridge) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		var errs []error
		if b.Admin != nil {
			errs = append(errs, b.Admin.Stop(ctx))
		}
		if b.cancelRun != nil {
			b.cancelRun()
		}
		if b.cron != nil {
			<-b.cron.Stop().Done()
		}
		if b.Telegram != nil {
			b.Telegram.Stop()
		}
		if b.Store != nil {
			errs = append(errs, b.Store.Close())
		}
		if b.stopTracing != nil {
			errs = append(errs, b.stopTracing(ctx))
		}
		if err := errors.Join(errs...); err != nil {
			b.Log.Warn().Err(err).Msg("Errors while stopping bridge")
		}
		b.Log.Info().Msg("Bridge stopped")
	})
}
