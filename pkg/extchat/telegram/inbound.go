// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"context"
	"fmt"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/tdfmt"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

const unsupportedMessage = "[Unsupported Message]"

// handleNewMessage relays msg into the channel linked to its sender.
// Unresolved or unlinked senders are dropped without error; only post
// creation failures are returned.
func (a *Adapter) handleNewMessage(ctx context.Context, msg *tdproto.Message) error {
	// Our own sends come back as outgoing messages.
	if msg.IsOutgoing {
		a.metrics.InboundMessages.WithLabelValues(outcomeOutgoing).Inc()
		return nil
	}

	relay := extchat.RelayMessage{
		SenderExternalID: tdproto.MakeExternalID(msg.Sender.ExternalID()),
		Body:             a.messageBody(msg.Content),
	}
	log := a.log.With().
		Str("sender_external_id", relay.SenderExternalID).
		Int64("message_id", msg.ID).
		Logger()

	channelID, err := a.resolver.ChannelForExternalID(ctx, extchat.PlatformTelegram, relay.SenderExternalID)
	if err != nil {
		log.Debug().Err(err).Msg("No channel for sender, dropping message")
		a.metrics.InboundMessages.WithLabelValues(outcomeUnresolved).Inc()
		return nil
	}
	relay.ChannelID = channelID

	ref, err := a.resolver.RefForChannel(ctx, channelID)
	if err != nil {
		log.Debug().Err(err).Str("channel_id", channelID).Msg("Failed to look up channel link, dropping message")
		a.metrics.InboundMessages.WithLabelValues(outcomeUnresolved).Inc()
		return nil
	}
	if ref == nil || ref.AliasUserID == "" {
		log.Debug().Str("channel_id", channelID).Msg("Channel not linked for posting, dropping message")
		a.metrics.InboundMessages.WithLabelValues(outcomeUnlinked).Inc()
		return nil
	}

	post := a.newPost(relay, ref.AliasUserID)
	if err := a.posts.CreatePost(ctx, post); err != nil {
		a.metrics.InboundMessages.WithLabelValues(outcomeFailed).Inc()
		return fmt.Errorf("failed to create post in %s: %w", channelID, err)
	}
	a.metrics.InboundMessages.WithLabelValues(outcomePosted).Inc()
	log.Debug().Str("channel_id", channelID).Str("pending_post_id", post.PendingPostID).Msg("Relayed inbound message")
	return nil
}

func (a *Adapter) messageBody(content tdproto.MessageContent) string {
	if !content.IsText() {
		return unsupportedMessage
	}
	if a.cfg.MarkdownEntities {
		return tdfmt.ToMarkdown(*content.Text)
	}
	return content.Text.Text
}

func (a *Adapter) newPost(relay extchat.RelayMessage, userID string) *extchat.Post {
	millis := a.nextPostMillis()
	return &extchat.Post{
		ChannelID:     relay.ChannelID,
		UserID:        userID,
		Message:       relay.Body,
		PendingPostID: fmt.Sprintf("%s:%d", userID, millis),
		CreateAt:      millis,
		FileIDs:       []string{},
	}
}

// nextPostMillis returns the current time in milliseconds, bumped so that
// every call returns a strictly larger value.
func (a *Adapter) nextPostMillis() int64 {
	for {
		last := a.lastPostMillis.Load()
		next := a.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if a.lastPostMillis.CompareAndSwap(last, next) {
			return next
		}
	}
}
