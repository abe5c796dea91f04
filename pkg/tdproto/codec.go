// Copyright 2024-2026 Aiku AI

package tdproto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the undecoded form of any object read off the wire.
type Envelope struct {
	Type  string
	Extra string
	Raw   json.RawMessage
}

// ParseEnvelope reads the "@type" and "@extra" fields of an object.
// Non-string "@extra" values are ignored.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var head struct {
		Type  string `json:"@type"`
		Extra any    `json:"@extra"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse object: %w", err)
	}
	if head.Type == "" {
		return nil, errors.New("object has no @type")
	}
	env := &Envelope{Type: head.Type, Raw: data}
	if extra, ok := head.Extra.(string); ok {
		env.Extra = extra
	}
	return env, nil
}

// Marshal encodes a request with its "@type" and, when non-empty, the
// "@extra" correlation value.
func Marshal(req Request, extra string) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", req.TDType(), err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", req.TDType(), err)
	}
	fields["@type"], _ = json.Marshal(req.TDType())
	if extra != "" {
		fields["@extra"], _ = json.Marshal(extra)
	}
	return json.Marshal(fields)
}

// DecodeResponse decodes a reply. Unknown types become *Other.
func DecodeResponse(env *Envelope) (Response, error) {
	var resp Response
	switch env.Type {
	case TypeOk:
		return &Ok{}, nil
	case TypeError:
		resp = &Error{}
	case TypeUsers:
		resp = &Users{}
	case TypeUser:
		resp = &User{}
	case TypeChat:
		resp = &Chat{}
	case typeMsg:
		resp = &Message{}
	default:
		return &Other{Type: env.Type, Raw: env.Raw}, nil
	}
	if err := json.Unmarshal(env.Raw, resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
	}
	return resp, nil
}

// DecodeUpdate decodes a push. Unknown types become *OtherUpdate.
func DecodeUpdate(env *Envelope) (Update, error) {
	switch env.Type {
	case TypeUpdateAuthorizationState:
		var raw struct {
			State struct {
				Type string `json:"@type"`
			} `json:"authorization_state"`
		}
		if err := json.Unmarshal(env.Raw, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		return &UpdateAuthorizationState{State: AuthorizationState(raw.State.Type)}, nil
	case TypeUpdateNewMessage:
		upd := &UpdateNewMessage{}
		if err := json.Unmarshal(env.Raw, upd); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", env.Type, err)
		}
		return upd, nil
	default:
		return &OtherUpdate{Type: env.Type}, nil
	}
}
