// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

type sendHandler func(req tdproto.Request) (tdproto.Response, error)

// fakeTransport records requests and answers them through handler.
type fakeTransport struct {
	mu       sync.Mutex
	requests []tdproto.Request
	handler  sendHandler
	closed   bool
	onPush   func(tdproto.Update)

	doneOnce sync.Once
	done     chan struct{}
}

func newFakeTransport(handler sendHandler, onPush func(tdproto.Update)) *fakeTransport {
	return &fakeTransport{handler: handler, onPush: onPush, done: make(chan struct{})}
}

func (f *fakeTransport) Send(_ context.Context, req tdproto.Request) (tdproto.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return &tdproto.Ok{}, nil
	}
	return h(req)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.drop()
	return nil
}

func (f *fakeTransport) Done() <-chan struct{} { return f.done }

// drop ends the transport as if the gateway went away.
func (f *fakeTransport) drop() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeTransport) Requests() []tdproto.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]tdproto.Request, len(f.requests))
	copy(cp, f.requests)
	return cp
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory creates fakeTransports sharing one handler.
type fakeFactory struct {
	mu       sync.Mutex
	created  []*fakeTransport
	handler  sendHandler
	delay    time.Duration
	fail     error
	inFlight int
	maxSeen  int
	calls    int
}

func (f *fakeFactory) New(_ context.Context, onPush func(tdproto.Update)) (Transport, error) {
	f.mu.Lock()
	f.calls++
	f.inFlight++
	f.maxSeen = max(f.maxSeen, f.inFlight)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.fail != nil {
		return nil, f.fail
	}
	t := newFakeTransport(f.handler, onPush)
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFactory) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeFactory) Last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

// fakeResolver maps external ids to channels and channels to refs.
type fakeResolver struct {
	mu           sync.Mutex
	channels     map[string]string
	refs         map[string]*extchat.ExternalRef
	refErr       error
	channelCalls []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		channels: make(map[string]string),
		refs:     make(map[string]*extchat.ExternalRef),
	}
}

func (f *fakeResolver) link(externalID, channelID, aliasUserID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[externalID] = channelID
	f.refs[channelID] = &extchat.ExternalRef{
		ChannelID:        channelID,
		ExternalPlatform: extchat.PlatformTelegram,
		ExternalID:       externalID,
		AliasUserID:      aliasUserID,
	}
}

func (f *fakeResolver) ChannelForExternalID(_ context.Context, platform, externalID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelCalls = append(f.channelCalls, platform+"/"+externalID)
	ch, ok := f.channels[externalID]
	if !ok {
		return "", errors.New("channel not found")
	}
	return ch, nil
}

func (f *fakeResolver) RefForChannel(_ context.Context, channelID string) (*extchat.ExternalRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refErr != nil {
		return nil, f.refErr
	}
	return f.refs[channelID], nil
}

// fakePosts records created posts.
type fakePosts struct {
	mu    sync.Mutex
	posts []*extchat.Post
	err   error
}

func (f *fakePosts) CreatePost(_ context.Context, post *extchat.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post)
	return f.err
}

func (f *fakePosts) Posts() []*extchat.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*extchat.Post, len(f.posts))
	copy(cp, f.posts)
	return cp
}

// fakeStatus records link status changes and published contact maps.
type fakeStatus struct {
	mu        sync.Mutex
	linked    []bool
	published []map[string]extchat.ExternalContact
}

func (f *fakeStatus) SetLinkStatus(_ context.Context, linked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked = append(f.linked, linked)
}

func (f *fakeStatus) PublishContacts(_ context.Context, contacts map[string]extchat.ExternalContact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, contacts)
}

func (f *fakeStatus) Linked() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.linked...)
}

func (f *fakeStatus) Published() []map[string]extchat.ExternalContact {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]extchat.ExternalContact(nil), f.published...)
}

type harness struct {
	adapter  *Adapter
	factory  *fakeFactory
	resolver *fakeResolver
	posts    *fakePosts
	status   *fakeStatus
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.APIID = 12345
	cfg.APIHash = "test-hash"
	return cfg
}

// newHarness builds an adapter over fakes. mutate may adjust the options
// and the factory before construction.
func newHarness(t *testing.T, mutate func(opts *Options, factory *fakeFactory)) *harness {
	t.Helper()
	h := &harness{
		factory:  &fakeFactory{},
		resolver: newFakeResolver(),
		posts:    &fakePosts{},
		status:   &fakeStatus{},
	}
	opts := Options{
		Config:       testConfig(),
		NewTransport: h.factory.New,
		Resolver:     h.resolver,
		Posts:        h.posts,
		Status:       h.status,
		Logger:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&opts, h.factory)
	}
	a, err := NewAdapter(opts)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	t.Cleanup(a.Stop)
	h.adapter = a
	return h
}

// transport returns the live transport, creating it if needed.
func (h *harness) transport(t *testing.T) *fakeTransport {
	t.Helper()
	if _, err := h.adapter.ensureTransport(context.Background()); err != nil {
		t.Fatalf("ensureTransport: %v", err)
	}
	return h.factory.Last()
}

// deliver handles upd synchronously as if it came from the live transport.
func (h *harness) deliver(upd tdproto.Update) {
	h.adapter.stateMu.RLock()
	gen := h.adapter.generation
	h.adapter.stateMu.RUnlock()
	h.adapter.handleEvent(context.Background(), pushEvent{generation: gen, update: upd})
}

func (h *harness) authState(state tdproto.AuthorizationState) {
	h.deliver(&tdproto.UpdateAuthorizationState{State: state})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func requestTypes(reqs []tdproto.Request) []string {
	types := make([]string, len(reqs))
	for i, r := range reqs {
		types[i] = r.TDType()
	}
	return types
}
