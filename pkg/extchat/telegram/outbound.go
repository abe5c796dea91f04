// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package telegram

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/tdfmt"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

const undefinedMessage = "Undefined Message"

// SendMessage opens a private chat with externalID and sends message into
// it. The chat is created first; the message is not sent if that fails.
func (a *Adapter) SendMessage(ctx context.Context, externalID, message string) (err error) {
	ctx, span := a.startSpan(ctx, "SendMessage", attribute.String("external_id", externalID))
	defer func() {
		a.metrics.OutboundMessages.WithLabelValues(outboundOutcome(err)).Inc()
		endSpan(span, err)
	}()

	userID, err := tdproto.ParseExternalID(externalID)
	if err != nil {
		return fmt.Errorf("%w: %w", extchat.ErrInvalidExternalID, err)
	}
	if message == "" {
		message = undefinedMessage
	}

	resp, err := a.send(ctx, tdproto.CreatePrivateChat{UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to create private chat: %w", err)
	}
	chatID := userID
	if chat, ok := resp.(*tdproto.Chat); ok && chat.ID != 0 {
		chatID = chat.ID
	}

	_, err = a.send(ctx, tdproto.SendMessage{
		ChatID:              chatID,
		InputMessageContent: tdproto.InputMessageText{Text: a.formatOutgoing(message)},
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	a.log.Debug().Str("external_id", externalID).Int64("chat_id", chatID).Msg("Sent outbound message")
	return nil
}

func (a *Adapter) formatOutgoing(message string) tdproto.FormattedText {
	if a.cfg.MarkdownEntities {
		if ft := tdfmt.FromMarkdown(message); ft.Text != "" {
			return ft
		}
	}
	return tdproto.FormattedText{Text: message}
}

func outboundOutcome(err error) string {
	if err != nil {
		return outcomeFailed
	}
	return outcomeSent
}
