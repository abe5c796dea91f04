// Copyright 2024-2026 Aiku AI

package tdproto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedResponse is returned when a reply has a different type than
// the request expects.
var ErrUnexpectedResponse = errors.New("unexpected response type")

// Response is the reply to a [Request].
type Response interface {
	TDType() string
	isResponse()
}

const (
	TypeOk    = "ok"
	TypeError = "error"
	TypeUsers = "users"
	TypeUser  = "user"
	TypeChat  = "chat"
	typeMsg   = "message"
)

type Ok struct{}

// Error is the "error" object. It is returned as a Go error by transports.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("td error %d: %s", e.Code, e.Message)
}

type Users struct {
	TotalCount int32   `json:"total_count"`
	UserIDs    []int64 `json:"user_ids"`
}

type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Other is any reply type the bridge does not model.
type Other struct {
	Type string
	Raw  json.RawMessage
}

func (*Ok) TDType() string      { return TypeOk }
func (*Error) TDType() string   { return TypeError }
func (*Users) TDType() string   { return TypeUsers }
func (*User) TDType() string    { return TypeUser }
func (*Chat) TDType() string    { return TypeChat }
func (*Message) TDType() string { return typeMsg }
func (o *Other) TDType() string { return o.Type }

func (*Ok) isResponse()      {}
func (*Error) isResponse()   {}
func (*Users) isResponse()   {}
func (*User) isResponse()    {}
func (*Chat) isResponse()    {}
func (*Message) isResponse() {}
func (*Other) isResponse()   {}

// As converts a response into the expected variant, turning an *Error reply
// into an error.
func As[T Response](resp Response) (T, error) {
	var zero T
	if tdErr, ok := resp.(*Error); ok {
		return zero, tdErr
	}
	typed, ok := resp.(T)
	if !ok {
		typ := "<nil>"
		if resp != nil {
			typ = resp.TDType()
		}
		return zero, fmt.Errorf("%w: %s", ErrUnexpectedResponse, typ)
	}
	return typed, nil
}
