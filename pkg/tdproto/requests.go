// Copyright 2024-2026 Aiku AI

// Package tdproto defines the subset of TDLib JSON objects exchanged with the
// external network. Every object is a tagged variant identified by its
// "@type" field: requests are closed Go types implementing [Request], replies
// decode into [Response] and unsolicited pushes decode into [Update]. Tags
// the bridge does not handle decode into explicit "other" variants.
package tdproto

import "encoding/json"

// Request is a method call sent to the external network.
type Request interface {
	TDType() string
	isRequest()
}

const (
	TypeSetTdlibParameters            = "setTdlibParameters"
	TypeCheckDatabaseEncryptionKey    = "checkDatabaseEncryptionKey"
	TypeSetAuthenticationPhoneNumber  = "setAuthenticationPhoneNumber"
	TypeCheckAuthenticationCode       = "checkAuthenticationCode"
	TypeLogOut                        = "logOut"
	TypeGetContacts                   = "getContacts"
	TypeGetUser                       = "getUser"
	TypeCreatePrivateChat             = "createPrivateChat"
	TypeSendMessage                   = "sendMessage"
	typeInputMessageText              = "inputMessageText"
	typeFormattedText                 = "formattedText"
	typeTdlibParameters               = "tdlibParameters"
	typeMessageSenderUser             = "messageSenderUser"
	typeMessageSenderChat             = "messageSenderChat"
	typeMessageText                   = "messageText"
)

// TdlibParameters is the static client configuration sent while the
// network waits for parameters.
type TdlibParameters struct {
	DatabaseDirectory  string `json:"database_directory"`
	APIID              int32  `json:"api_id"`
	APIHash            string `json:"api_hash"`
	SystemLanguageCode string `json:"system_language_code"`
	DeviceModel        string `json:"device_model"`
	ApplicationVersion string `json:"application_version"`
}

func (p TdlibParameters) MarshalJSON() ([]byte, error) {
	type raw TdlibParameters
	return json.Marshal(struct {
		Type string `json:"@type"`
		raw
	}{typeTdlibParameters, raw(p)})
}

type SetTdlibParameters struct {
	Parameters TdlibParameters `json:"parameters"`
}

type CheckDatabaseEncryptionKey struct {
	EncryptionKey string `json:"encryption_key"`
}

type SetAuthenticationPhoneNumber struct {
	PhoneNumber string `json:"phone_number"`
}

type CheckAuthenticationCode struct {
	Code string `json:"code"`
}

type LogOut struct{}

type GetContacts struct{}

type GetUser struct {
	UserID int64 `json:"user_id"`
}

type CreatePrivateChat struct {
	UserID int64 `json:"user_id"`
	Force  bool  `json:"force"`
}

// SendMessage posts InputMessageContent into a chat.
type SendMessage struct {
	ChatID              int64            `json:"chat_id"`
	ReplyToMessageID    int64            `json:"reply_to_message_id"`
	DisableNotification bool             `json:"disable_notification"`
	FromBackground      bool             `json:"from_background"`
	ReplyMarkup         any              `json:"reply_markup"`
	InputMessageContent InputMessageText `json:"input_message_content"`
}

// InputMessageText is the content of an outgoing text message.
type InputMessageText struct {
	Text                  FormattedText `json:"text"`
	DisableWebPagePreview bool          `json:"disable_web_page_preview"`
	ClearDraft            bool          `json:"clear_draft"`
}

func (t InputMessageText) MarshalJSON() ([]byte, error) {
	type raw InputMessageText
	return json.Marshal(struct {
		Type string `json:"@type"`
		raw
	}{typeInputMessageText, raw(t)})
}

func (SetTdlibParameters) TDType() string           { return TypeSetTdlibParameters }
func (CheckDatabaseEncryptionKey) TDType() string   { return TypeCheckDatabaseEncryptionKey }
func (SetAuthenticationPhoneNumber) TDType() string { return TypeSetAuthenticationPhoneNumber }
func (CheckAuthenticationCode) TDType() string      { return TypeCheckAuthenticationCode }
func (LogOut) TDType() string                       { return TypeLogOut }
func (GetContacts) TDType() string                  { return TypeGetContacts }
func (GetUser) TDType() string                      { return TypeGetUser }
func (CreatePrivateChat) TDType() string            { return TypeCreatePrivateChat }
func (SendMessage) TDType() string                  { return TypeSendMessage }

func (SetTdlibParameters) isRequest()           {}
func (CheckDatabaseEncryptionKey) isRequest()   {}
func (SetAuthenticationPhoneNumber) isRequest() {}
func (CheckAuthenticationCode) isRequest()      {}
func (LogOut) isRequest()                       {}
func (GetContacts) isRequest()                  {}
func (GetUser) isRequest()                      {}
func (CreatePrivateChat) isRequest()            {}
func (SendMessage) isRequest()                  {}
