// Copyright 2024-2026 Aiku AI

package extchat

import (
	"context"
	"time"
)

// ExternalContact is one entry of an external network's contact list.
type ExternalContact struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// Message is a message exchanged with an external contact.
type Message struct {
	ID               string    `json:"id"`
	SenderExternalID string    `json:"sender_external_id"`
	Body             string    `json:"body"`
	SentAt           time.Time `json:"sent_at"`
}

// ExternalRef links an internal channel to an external conversation.
// Messages are only relayed into the channel when AliasUserID is set.
type ExternalRef struct {
	ChannelID        string `json:"channel_id"`
	ExternalPlatform string `json:"external_platform"`
	ExternalID       string `json:"external_id"`
	AliasUserID      string `json:"alias_user_id"`
}

// RelayMessage is an inbound message on its way into a channel.
type RelayMessage struct {
	SenderExternalID string
	Body             string
	ChannelID        string
}

// Post is an internal post created on behalf of an aliased user.
type Post struct {
	ChannelID                string
	UserID                   string
	Message                  string
	PendingPostID            string
	CreateAt                 int64
	FileIDs                  []string
	RootID                   string
	MentionHighlightDisabled bool
	DisableGroupHighlight    bool
}

// IdentityResolver maps external identities to internal channels.
type IdentityResolver interface {
	// ChannelForExternalID fails when no channel is linked to the id.
	ChannelForExternalID(ctx context.Context, platform, externalID string) (string, error)
	// RefForChannel returns nil when the channel has no external link.
	RefForChannel(ctx context.Context, channelID string) (*ExternalRef, error)
}

type PostCreator interface {
	CreatePost(ctx context.Context, post *Post) error
}

// StatusSink receives link status changes and synced contacts.
type StatusSink interface {
	SetLinkStatus(ctx context.Context, linked bool)
	PublishContacts(ctx context.Context, contacts map[string]ExternalContact)
}
