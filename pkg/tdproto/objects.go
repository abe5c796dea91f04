// Copyright 2024-2026 Aiku AI

package tdproto

import (
	"encoding/json"
	"fmt"
)

// AuthorizationState is the "@type" of an authorization_state object.
type AuthorizationState string

const (
	AuthorizationStateWaitTdlibParameters AuthorizationState = "authorizationStateWaitTdlibParameters"
	AuthorizationStateWaitEncryptionKey   AuthorizationState = "authorizationStateWaitEncryptionKey"
	AuthorizationStateWaitPhoneNumber     AuthorizationState = "authorizationStateWaitPhoneNumber"
	AuthorizationStateWaitCode            AuthorizationState = "authorizationStateWaitCode"
	AuthorizationStateReady               AuthorizationState = "authorizationStateReady"
	AuthorizationStateLoggingOut          AuthorizationState = "authorizationStateLoggingOut"
	AuthorizationStateClosing             AuthorizationState = "authorizationStateClosing"
	AuthorizationStateClosed              AuthorizationState = "authorizationStateClosed"
)

// Text entity types understood by the formatter.
const (
	EntityBold          = "textEntityTypeBold"
	EntityItalic        = "textEntityTypeItalic"
	EntityUnderline     = "textEntityTypeUnderline"
	EntityStrikethrough = "textEntityTypeStrikethrough"
	EntityCode          = "textEntityTypeCode"
	EntityPre           = "textEntityTypePre"
	EntityPreCode       = "textEntityTypePreCode"
	EntityTextURL       = "textEntityTypeTextUrl"
	EntityURL           = "textEntityTypeUrl"
)

// FormattedText is text with optional formatting entities. Offsets and
// lengths in entities are counted in UTF-16 code units.
type FormattedText struct {
	Text     string       `json:"text"`
	Entities []TextEntity `json:"entities"`
}

func (t FormattedText) MarshalJSON() ([]byte, error) {
	type raw FormattedText
	return json.Marshal(struct {
		Type string `json:"@type"`
		raw
	}{typeFormattedText, raw(t)})
}

type TextEntity struct {
	Offset int32          `json:"offset"`
	Length int32          `json:"length"`
	Type   TextEntityType `json:"type"`
}

// TextEntityType carries the entity's "@type" and the fields of the
// variants that have any.
type TextEntityType struct {
	Type     string `json:"@type"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
}

// MessageSender identifies who sent a message. Exactly one of UserID and
// ChatID is set.
type MessageSender struct {
	UserID int64
	ChatID int64
}

func (s *MessageSender) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   string `json:"@type"`
		UserID int64  `json:"user_id"`
		ChatID int64  `json:"chat_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case typeMessageSenderChat:
		s.ChatID = raw.ChatID
	case typeMessageSenderUser, "":
		s.UserID = raw.UserID
	default:
		// Unknown sender kinds decode to zero ids and resolve to nothing.
		*s = MessageSender{}
	}
	return nil
}

// ExternalID returns the id used to address the sender.
func (s MessageSender) ExternalID() int64 {
	if s.UserID != 0 {
		return s.UserID
	}
	return s.ChatID
}

// MessageContent is the content of a message. Text is only set for
// messageText.
type MessageContent struct {
	Type string         `json:"@type"`
	Text *FormattedText `json:"text,omitempty"`
}

// UnmarshalJSON only looks at "text" for messageText. Other content types
// reuse the field name with different shapes.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type string          `json:"@type"`
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = MessageContent{Type: raw.Type}
	if raw.Type != typeMessageText || len(raw.Text) == 0 || string(raw.Text) == "null" {
		return nil
	}
	var text FormattedText
	if err := json.Unmarshal(raw.Text, &text); err != nil {
		return fmt.Errorf("failed to decode message text: %w", err)
	}
	c.Text = &text
	return nil
}

// IsText reports whether the content is a plain text message.
func (c MessageContent) IsText() bool {
	return c.Type == typeMessageText && c.Text != nil
}

type Message struct {
	ID         int64          `json:"id"`
	ChatID     int64          `json:"chat_id"`
	IsOutgoing bool           `json:"is_outgoing"`
	Date       int32          `json:"date"`
	Sender     MessageSender  `json:"-"`
	Content    MessageContent `json:"content"`
}

// UnmarshalJSON accepts the sender under "sender_id", the older "sender"
// and the legacy flat "sender_user_id".
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw struct {
		plain
		SenderID     *MessageSender `json:"sender_id"`
		SenderObj    *MessageSender `json:"sender"`
		SenderUserID int64          `json:"sender_user_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.plain)
	switch {
	case raw.SenderID != nil:
		m.Sender = *raw.SenderID
	case raw.SenderObj != nil:
		m.Sender = *raw.SenderObj
	default:
		m.Sender = MessageSender{UserID: raw.SenderUserID}
	}
	return nil
}
