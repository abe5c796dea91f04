// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// contactsHandler serves getContacts from users and getUser from the same
// map. Ids in fail return an error.
func contactsHandler(ids []int64, users map[int64]*tdproto.User, fail map[int64]bool) sendHandler {
	return func(req tdproto.Request) (tdproto.Response, error) {
		switch r := req.(type) {
		case tdproto.GetContacts:
			return &tdproto.Users{TotalCount: int32(len(ids)), UserIDs: ids}, nil
		case tdproto.GetUser:
			if fail[r.UserID] {
				return nil, &tdproto.Error{Code: 404, Message: "user not found"}
			}
			if u, ok := users[r.UserID]; ok {
				return u, nil
			}
			return &tdproto.User{ID: r.UserID}, nil
		default:
			return &tdproto.Ok{}, nil
		}
	}
}

func sampleUsers() ([]int64, map[int64]*tdproto.User) {
	ids := []int64{1, 2, 3}
	users := map[int64]*tdproto.User{
		1: {ID: 1, FirstName: "Ada", LastName: "Lovelace"},
		2: {ID: 2, FirstName: "Alan", Username: "turing"},
		3: {ID: 3, Username: "grace"},
	}
	return ids, users
}

func TestPullContactsPublishesOnce(t *testing.T) {
	t.Parallel()
	ids, users := sampleUsers()
	h := newHarness(t, func(_ *Options, f *fakeFactory) {
		f.handler = contactsHandler(ids, users, nil)
	})

	if err := h.adapter.PullContacts(context.Background()); err != nil {
		t.Fatalf("PullContacts: %v", err)
	}

	reqs := h.factory.Last().Requests()
	if len(reqs) != 1+len(ids) {
		t.Fatalf("expected %d requests, got %v", 1+len(ids), requestTypes(reqs))
	}
	if reqs[0].TDType() != tdproto.TypeGetContacts {
		t.Errorf("first request = %s", reqs[0].TDType())
	}
	for i, id := range ids {
		if r, ok := reqs[i+1].(tdproto.GetUser); !ok || r.UserID != id {
			t.Errorf("request %d = %#v, want getUser %d in order", i+1, reqs[i+1], id)
		}
	}

	published := h.status.Published()
	if len(published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(published))
	}
	contacts := published[0]
	if len(contacts) != len(ids) {
		t.Fatalf("expected %d contacts, got %d", len(ids), len(contacts))
	}
	wantNames := map[string]string{"1": "Ada Lovelace", "2": "Alan", "3": "grace"}
	for id, want := range wantNames {
		c, ok := contacts[id]
		if !ok {
			t.Errorf("contact %s missing", id)
			continue
		}
		if c.ID != id || c.Name != want {
			t.Errorf("contact %s = %+v, want name %q", id, c, want)
		}
		if c.Messages == nil || len(c.Messages) != 0 {
			t.Errorf("contact %s should start with empty history", id)
		}
	}
}

func TestPullContactsAbortsOnFailure(t *testing.T) {
	t.Parallel()
	ids, users := sampleUsers()
	h := newHarness(t, func(_ *Options, f *fakeFactory) {
		f.handler = contactsHandler(ids, users, map[int64]bool{2: true})
	})

	err := h.adapter.PullContacts(context.Background())
	var tdErr *tdproto.Error
	if !errors.As(err, &tdErr) {
		t.Fatalf("expected td error, got %v", err)
	}
	if n := len(h.status.Published()); n != 0 {
		t.Errorf("expected no publish, got %d", n)
	}
	if n := len(h.factory.Last().Requests()); n != 3 {
		t.Errorf("sequential pull should stop at the failure, got %d requests", n)
	}
}

func TestPullContactsSkipFailed(t *testing.T) {
	t.Parallel()
	ids, users := sampleUsers()
	h := newHarness(t, func(opts *Options, f *fakeFactory) {
		opts.Config.SkipFailedContacts = true
		f.handler = contactsHandler(ids, users, map[int64]bool{2: true})
	})

	if err := h.adapter.PullContacts(context.Background()); err != nil {
		t.Fatalf("PullContacts: %v", err)
	}
	published := h.status.Published()
	if len(published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(published))
	}
	if _, ok := published[0]["2"]; ok || len(published[0]) != 2 {
		t.Errorf("contacts = %v, want 1 and 3 only", published[0])
	}
}

func TestPullContactsBoundedConcurrency(t *testing.T) {
	t.Parallel()
	ids := make([]int64, 20)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	h := newHarness(t, func(opts *Options, f *fakeFactory) {
		opts.Config.ContactFetchConcurrency = 4
		f.handler = contactsHandler(ids, nil, nil)
	})

	if err := h.adapter.PullContacts(context.Background()); err != nil {
		t.Fatalf("PullContacts: %v", err)
	}
	if n := len(h.factory.Last().Requests()); n != 1+len(ids) {
		t.Errorf("expected %d requests, got %d", 1+len(ids), n)
	}
	published := h.status.Published()
	if len(published) != 1 || len(published[0]) != len(ids) {
		t.Fatalf("published = %d maps", len(published))
	}
	if c := published[0]["20"]; c.Name != "20" {
		t.Errorf("nameless contact should fall back to its id, got %q", c.Name)
	}
}

func TestPullContactsBoundedConcurrencyFailure(t *testing.T) {
	t.Parallel()
	ids, users := sampleUsers()
	h := newHarness(t, func(opts *Options, f *fakeFactory) {
		opts.Config.ContactFetchConcurrency = 2
		f.handler = contactsHandler(ids, users, map[int64]bool{3: true})
	})

	if err := h.adapter.PullContacts(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if n := len(h.status.Published()); n != 0 {
		t.Errorf("expected no publish, got %d", n)
	}
}

func TestPullContactsListFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *Options, f *fakeFactory) {
		f.handler = func(tdproto.Request) (tdproto.Response, error) {
			return &tdproto.Ok{}, nil
		}
	})

	err := h.adapter.PullContacts(context.Background())
	if !errors.Is(err, tdproto.ErrUnexpectedResponse) {
		t.Errorf("expected ErrUnexpectedResponse, got %v", err)
	}
	if n := len(h.status.Published()); n != 0 {
		t.Errorf("expected no publish, got %d", n)
	}
}

func TestPullContactsEmptyList(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(_ *Options, f *fakeFactory) {
		f.handler = contactsHandler(nil, nil, nil)
	})

	if err := h.adapter.PullContacts(context.Background()); err != nil {
		t.Fatalf("PullContacts: %v", err)
	}
	published := h.status.Published()
	if len(published) != 1 || len(published[0]) != 0 {
		t.Errorf("expected one empty publish, got %v", published)
	}
}
