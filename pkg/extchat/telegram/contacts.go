// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// PullContacts fetches the contact list and every contact's details, then
// publishes the whole map at once. A failed detail fetch aborts without
// publishing unless skip_failed_contacts is set.
func (a *Adapter) PullContacts(ctx context.Context) (err error) {
	ctx, span := a.startSpan(ctx, "PullContacts")
	defer func() { endSpan(span, err) }()

	resp, err := a.send(ctx, tdproto.GetContacts{})
	if err != nil {
		return fmt.Errorf("failed to get contacts: %w", err)
	}
	users, err := tdproto.As[*tdproto.Users](resp)
	if err != nil {
		return fmt.Errorf("failed to get contacts: %w", err)
	}
	span.SetAttributes(attribute.Int("contact_count", len(users.UserIDs)))

	contacts, err := a.fetchContacts(ctx, users.UserIDs)
	if err != nil {
		return err
	}
	a.status.PublishContacts(ctx, contacts)
	a.metrics.ContactsPublished.Set(float64(len(contacts)))
	a.log.Info().Int("count", len(contacts)).Msg("Published contacts")
	return nil
}

func (a *Adapter) fetchContacts(ctx context.Context, ids []int64) (map[string]extchat.ExternalContact, error) {
	contacts := make(map[string]extchat.ExternalContact, len(ids))
	var mu sync.Mutex

	fetch := func(ctx context.Context, id int64) error {
		contact, err := a.fetchContact(ctx, id)
		if err != nil {
			if a.cfg.SkipFailedContacts {
				a.log.Warn().Err(err).Int64("user_id", id).Msg("Skipping contact")
				return nil
			}
			return err
		}
		mu.Lock()
		contacts[contact.ID] = contact
		mu.Unlock()
		return nil
	}

	if a.cfg.ContactFetchConcurrency <= 1 {
		for _, id := range ids {
			if err := fetch(ctx, id); err != nil {
				return nil, err
			}
		}
		return contacts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ContactFetchConcurrency)
	for _, id := range ids {
		g.Go(func() error { return fetch(gctx, id) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (a *Adapter) fetchContact(ctx context.Context, id int64) (extchat.ExternalContact, error) {
	resp, err := a.send(ctx, tdproto.GetUser{UserID: id})
	if err != nil {
		return extchat.ExternalContact{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	user, err := tdproto.As[*tdproto.User](resp)
	if err != nil {
		return extchat.ExternalContact{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return extchat.ExternalContact{
		ID:       tdproto.MakeExternalID(id),
		Name:     a.cfg.FormatContactName(user),
		Messages: []extchat.Message{},
	}, nil
}
