// Copyright 2024-2026 Aiku AI

package tdproto

// Update is an unsolicited push from the external network.
type Update interface {
	TDType() string
	isUpdate()
}

const (
	TypeUpdateAuthorizationState = "updateAuthorizationState"
	TypeUpdateNewMessage         = "updateNewMessage"
)

type UpdateAuthorizationState struct {
	State AuthorizationState
}

type UpdateNewMessage struct {
	Message Message `json:"message"`
}

// OtherUpdate is any push the bridge ignores.
type OtherUpdate struct {
	Type string
}

func (*UpdateAuthorizationState) TDType() string { return TypeUpdateAuthorizationState }
func (*UpdateNewMessage) TDType() string         { return TypeUpdateNewMessage }
func (o *OtherUpdate) TDType() string            { return o.Type }

func (*UpdateAuthorizationState) isUpdate() {}
func (*UpdateNewMessage) isUpdate()         {}
func (*OtherUpdate) isUpdate()              {}
