// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/extchat/telegram"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// scriptedTransport answers getContacts with two users and everything
// else with ok.
type scriptedTransport struct {
	mu       sync.Mutex
	requests []string
}

func (s *scriptedTransport) Send(_ context.Context, req tdproto.Request) (tdproto.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req.TDType())
	s.mu.Unlock()
	switch r := req.(type) {
	case tdproto.GetContacts:
		return &tdproto.Users{TotalCount: 2, UserIDs: []int64{1, 2}}, nil
	case tdproto.GetUser:
		names := map[int64]string{1: "Ada", 2: "Grace"}
		return &tdproto.User{ID: r.UserID, FirstName: names[r.UserID]}, nil
	default:
		return &tdproto.Ok{}, nil
	}
}

func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) Done() <-chan struct{} { return nil }

func fakeCasualChat(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v4/users/me" && r.Header.Get("Authorization") != "" {
			_ = json.NewEncoder(w).Encode(&model.User{Id: "bridge-bot", Username: "extchat"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "unauthorized", "message": "unauthorized", "status_code": 401})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testBridgeConfig(t *testing.T, serverURL string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(ExampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.CasualChat.ServerURL = serverURL
	cfg.CasualChat.Token = "bridge-token"
	cfg.Admin.ListenAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "extchat.db")
	return cfg
}

func TestBridgeStartSyncStop(t *testing.T) {
	t.Parallel()
	mm := fakeCasualChat(t)
	cfg := testBridgeConfig(t, mm.URL)
	cfg.Telegram.ContactSyncSchedule = "@every 1h"

	transport := &scriptedTransport{}
	b := New(cfg, zerolog.Nop(), "test")
	b.NewTransport = func(context.Context, func(tdproto.Update)) (telegram.Transport, error) {
		return transport, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop(ctx)

	if _, err := b.Adapters.Get(extchat.PlatformTelegram); err != nil {
		t.Errorf("telegram adapter not registered: %v", err)
	}

	b.syncContacts()

	contacts := b.Store.Contacts(extchat.PlatformTelegram)
	if len(contacts) != 2 || contacts[0].Name != "Ada" || contacts[1].Name != "Grace" {
		t.Errorf("contacts = %+v", contacts)
	}

	w := httptest.NewRecorder()
	b.Admin.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestBridgeStartFailsOnBadToken(t *testing.T) {
	t.Parallel()
	mm := fakeCasualChat(t)
	cfg := testBridgeConfig(t, mm.URL)
	cfg.CasualChat.Token = ""

	b := New(cfg, zerolog.Nop(), "test")
	b.NewTransport = func(context.Context, func(tdproto.Update)) (telegram.Transport, error) {
		return &scriptedTransport{}, nil
	}
	if err := b.Start(context.Background()); err == nil {
		t.Fatal("expected token verification to fail")
	}
	if b.Telegram != nil {
		t.Error("adapter should not be created when verification fails")
	}
	// Stop after a failed Start is a no-op.
	b.Stop(context.Background())
}

func TestBridgeStartWithoutVerification(t *testing.T) {
	t.Parallel()
	cfg := testBridgeConfig(t, "http://127.0.0.1:1")
	cfg.CasualChat.VerifyToken = false

	b := New(cfg, zerolog.Nop(), "test")
	b.NewTransport = func(context.Context, func(tdproto.Update)) (telegram.Transport, error) {
		return &scriptedTransport{}, nil
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Stop(context.Background())
	b.Stop(context.Background())
}
