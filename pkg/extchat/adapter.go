// Copyright 2024-2026 Aiku AI

package extchat

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

const PlatformTelegram = "telegram"

var (
	// ErrNotReady is returned when the external network has not reached the
	// authorization stage an operation needs.
	ErrNotReady = errors.New("not ready")
	// ErrUnknownPlatform is returned for platform names missing from a Registry.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrInvalidExternalID is returned for ids the external network cannot address.
	ErrInvalidExternalID = errors.New("invalid external id")
)

// Adapter is the capability set of one external network account.
// IsReadyToLogin and IsReadyToSendCode never perform I/O.
type Adapter interface {
	LogIn(ctx context.Context, identifier string) error
	SendCode(ctx context.Context, code string) error
	LogOut(ctx context.Context) error
	PullContacts(ctx context.Context) error
	SendMessage(ctx context.Context, externalID, message string) error
	IsReadyToLogin() bool
	IsReadyToSendCode() bool
}

// Stub is an Adapter that accepts every call and does nothing.
type Stub struct{}

var _ Adapter = Stub{}

func (Stub) LogIn(context.Context, string) error               { return nil }
func (Stub) SendCode(context.Context, string) error            { return nil }
func (Stub) LogOut(context.Context) error                      { return nil }
func (Stub) PullContacts(context.Context) error                { return nil }
func (Stub) SendMessage(context.Context, string, string) error { return nil }
func (Stub) IsReadyToLogin() bool                              { return true }
func (Stub) IsReadyToSendCode() bool                           { return true }

// Registry maps platform names to adapters.
type Registry map[string]Adapter

// StubRegistry returns a registry with a Stub for every known platform.
func StubRegistry() Registry {
	return Registry{PlatformTelegram: Stub{}}
}

// Get returns the adapter for platform.
func (r Registry) Get(platform string) (Adapter, error) {
	a, ok := r[platform]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPlatform, platform)
	}
	return a, nil
}

// Platforms returns the registered platform names in sorted order.
func (r Registry) Platforms() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
