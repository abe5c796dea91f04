// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package telegram implements extchat.Adapter for a Telegram account
// reached through a TDLib JSON transport.
//
// The adapter owns one session: a lazily created transport, the generation
// of that transport, and the loginReady/codeReady flags. Push updates are
// queued by the transport's reader and handled one at a time by the event
// loop started with [Adapter.Start]; that loop is the only writer of the
// flags. Updates from a discarded transport are dropped.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/tdclient"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// Transport is the request/response channel to the external network.
type Transport interface {
	Send(ctx context.Context, req tdproto.Request) (tdproto.Response, error)
	Close() error
	// Done is closed once the transport can no longer send or receive.
	Done() <-chan struct{}
}

// ErrStopped is returned by operations on a stopped adapter.
var ErrStopped = errors.New("adapter stopped")

const (
	defaultReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 2 * time.Minute
)

// TransportFactory creates a transport that delivers push updates to onPush.
// onPush must not be blocked on by the transport's caller.
type TransportFactory func(ctx context.Context, onPush func(tdproto.Update)) (Transport, error)

// GatewayTransport returns a factory dialing the TDLib gateway in cfg.
func GatewayTransport(cfg Config, log zerolog.Logger) TransportFactory {
	return func(ctx context.Context, onPush func(tdproto.Update)) (Transport, error) {
		return tdclient.Dial(ctx, tdclient.Config{
			URL:          cfg.GatewayURL,
			InstanceName: cfg.InstanceName,
		}, onPush, log)
	}
}

// Options holds the collaborators of an Adapter.
type Options struct {
	Config       Config
	NewTransport TransportFactory
	Resolver     extchat.IdentityResolver
	Posts        extchat.PostCreator
	Status       extchat.StatusSink
	// Registerer receives the adapter metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// ReconnectDelay is the first wait between attempts to replace a lost
	// transport. It doubles up to two minutes. Defaults to five seconds.
	ReconnectDelay time.Duration
}

// Adapter is the live Telegram implementation of extchat.Adapter.
type Adapter struct {
	cfg          Config
	newTransport TransportFactory
	resolver     extchat.IdentityResolver
	posts        extchat.PostCreator
	status       extchat.StatusSink
	now          func() time.Time

	reconnectDelay time.Duration

	log     zerolog.Logger
	metrics *metrics
	tracer  trace.Tracer

	// transportMu is taken before stateMu.
	transportMu sync.Mutex
	transport   Transport

	stateMu    sync.RWMutex
	generation uint64
	loginReady bool
	codeReady  bool

	events         *eventQueue
	lastPostMillis atomic.Int64

	// lifeCtx is cancelled by Stop.
	lifeCtx  context.Context
	stopLife context.CancelFunc
	started  atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

var _ extchat.Adapter = (*Adapter)(nil)

// NewAdapter creates an adapter. No transport is created until Start or the
// first operation that needs one.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.NewTransport == nil {
		return nil, errors.New("transport factory is required")
	}
	if opts.Resolver == nil || opts.Posts == nil || opts.Status == nil {
		return nil, errors.New("resolver, post creator and status sink are required")
	}
	cfg := opts.Config
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("failed to post-process config: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	reconnectDelay := opts.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	lifeCtx, stopLife := context.WithCancel(context.Background())
	return &Adapter{
		cfg:          cfg,
		newTransport: opts.NewTransport,
		resolver:     opts.Resolver,
		posts:        opts.Posts,
		status:       opts.Status,
		now:          now,

		reconnectDelay: reconnectDelay,
		lifeCtx:        lifeCtx,
		stopLife:       stopLife,

		log:      opts.Logger.With().Str("component", "telegram").Logger(),
		metrics:  newMetrics(opts.Registerer),
		tracer:   otel.Tracer("github.com/aiku/mattermost-extchat/pkg/extchat/telegram"),
		events:   newEventQueue(),
		loopDone: make(chan struct{}),
	}, nil
}

// Start runs the event loop until Stop and eagerly creates the transport so
// the network starts reporting authorization states. A transport failure is
// logged and retried lazily by the next operation.
func (a *Adapter) Start(ctx context.Context) {
	if a.lifeCtx.Err() != nil {
		a.log.Warn().Msg("Ignoring Start on a stopped adapter")
		return
	}
	a.started.Store(true)
	a.startOnce.Do(func() {
		var loopCtx context.Context
		loopCtx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
		go a.run(loopCtx)
	})
	if _, err := a.ensureTransport(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Failed to create transport, will retry on next use")
	}
}

// Stop ends the event loop and closes the transport.
func (a *Adapter) Stop() {
	a.stopOnce.Do(func() {
		a.stopLife()
		// Prevents a later Start from launching the loop.
		a.startOnce.Do(func() {})
		if a.cancel != nil {
			a.cancel()
			<-a.loopDone
		}

		a.transportMu.Lock()
		t := a.transport
		a.transport = nil
		a.transportMu.Unlock()
		if t != nil {
			if err := t.Close(); err != nil {
				a.log.Debug().Err(err).Msg("Error closing transport")
			}
		}
		a.log.Info().Msg("Telegram adapter stopped")
	})
}

// IsReadyToLogin reports whether the network is waiting for a phone number.
func (a *Adapter) IsReadyToLogin() bool {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.loginReady
}

// IsReadyToSendCode reports whether the network is waiting for a code.
func (a *Adapter) IsReadyToSendCode() bool {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.codeReady
}

// ensureTransport returns the live transport, creating it if needed.
// Concurrent callers wait for a single creation.
func (a *Adapter) ensureTransport(ctx context.Context) (Transport, error) {
	a.transportMu.Lock()
	defer a.transportMu.Unlock()
	if a.lifeCtx.Err() != nil {
		return nil, ErrStopped
	}
	if a.transport != nil {
		return a.transport, nil
	}
	return a.createTransportLocked(ctx)
}

// createTransportLocked starts a new generation with both flags cleared.
// transportMu must be held.
func (a *Adapter) createTransportLocked(ctx context.Context) (Transport, error) {
	a.stateMu.Lock()
	a.generation++
	gen := a.generation
	a.loginReady = false
	a.codeReady = false
	a.stateMu.Unlock()

	t, err := a.newTransport(ctx, func(upd tdproto.Update) {
		a.events.push(pushEvent{generation: gen, update: upd})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	a.transport = t
	a.metrics.TransportsCreated.Inc()
	a.log.Info().Uint64("generation", gen).Msg("Created transport")
	go a.watchTransport(t, gen)
	return t, nil
}

// discardTransport forgets t if it is still the live transport so the next
// operation creates a fresh one. It reports whether t was live.
func (a *Adapter) discardTransport(t Transport) bool {
	a.transportMu.Lock()
	if a.transport != t {
		a.transportMu.Unlock()
		return false
	}
	a.transport = nil
	a.transportMu.Unlock()
	_ = t.Close()
	a.log.Warn().Msg("Discarded closed transport")
	return true
}

// watchTransport replaces t when it dies on its own. Without a running
// adapter the replacement is left to the next operation.
func (a *Adapter) watchTransport(t Transport, gen uint64) {
	select {
	case <-a.lifeCtx.Done():
		return
	case <-t.Done():
	}
	if !a.discardTransport(t) {
		return
	}
	a.log.Warn().Uint64("generation", gen).Msg("Transport closed unexpectedly")
	a.metrics.TransportsLost.Inc()
	if a.started.Load() {
		a.reconnect()
	}
}

// reconnect creates a new transport, backing off between failures, until
// one succeeds or the adapter stops.
func (a *Adapter) reconnect() {
	delay := a.reconnectDelay
	for {
		_, err := a.ensureTransport(a.lifeCtx)
		if err == nil || errors.Is(err, ErrStopped) {
			return
		}
		a.log.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to replace transport")
		select {
		case <-a.lifeCtx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (a *Adapter) isCurrent(gen uint64) bool {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return gen == a.generation
}

// send issues req on the live transport.
func (a *Adapter) send(ctx context.Context, req tdproto.Request) (tdproto.Response, error) {
	t, err := a.ensureTransport(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := t.Send(ctx, req)
	a.metrics.Requests.WithLabelValues(req.TDType(), successLabel(err)).Inc()
	if errors.Is(err, tdclient.ErrClosed) {
		a.discardTransport(t)
	}
	return resp, err
}

func (a *Adapter) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := a.tracer.Start(ctx, "telegram."+op)
	span.SetAttributes(append(attrs, attribute.String("platform", extchat.PlatformTelegram))...)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
