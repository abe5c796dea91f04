// Copyright 2024-2026 Aiku AI

package telegram

import (
	"context"
	"fmt"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// handleAuthorizationState performs the single transition for state.
func (a *Adapter) handleAuthorizationState(ctx context.Context, gen uint64, state tdproto.AuthorizationState) {
	a.metrics.AuthorizationStates.WithLabelValues(string(state)).Inc()
	log := a.log.With().Str("state", string(state)).Uint64("generation", gen).Logger()

	switch state {
	case tdproto.AuthorizationStateWaitTdlibParameters:
		req := tdproto.SetTdlibParameters{Parameters: a.cfg.tdlibParameters()}
		if _, err := a.send(ctx, req); err != nil {
			log.Error().Err(err).Msg("Failed to set TDLib parameters")
		}
	case tdproto.AuthorizationStateWaitEncryptionKey:
		if _, err := a.send(ctx, tdproto.CheckDatabaseEncryptionKey{}); err != nil {
			log.Error().Err(err).Msg("Failed to check database encryption key")
		}
	case tdproto.AuthorizationStateWaitPhoneNumber:
		a.setFlags(gen, func() { a.loginReady = true })
		log.Info().Msg("Ready to log in")
	case tdproto.AuthorizationStateWaitCode:
		a.setFlags(gen, func() { a.codeReady = true })
		log.Info().Msg("Ready to receive authentication code")
	case tdproto.AuthorizationStateReady:
		log.Info().Msg("Account linked")
		a.status.SetLinkStatus(ctx, true)
	case tdproto.AuthorizationStateClosed:
		a.resetSession(ctx, gen)
	default:
		log.Trace().Msg("Ignoring authorization state")
	}
}

func (a *Adapter) setFlags(gen uint64, set func()) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if gen == a.generation {
		set()
	}
}

// resetSession discards a closed transport and creates a new one, which
// clears both flags and makes the network report its initial states again.
func (a *Adapter) resetSession(ctx context.Context, gen uint64) {
	a.transportMu.Lock()
	if !a.isCurrent(gen) {
		a.transportMu.Unlock()
		return
	}
	old := a.transport
	a.transport = nil
	_, err := a.createTransportLocked(ctx)
	a.transportMu.Unlock()

	if old != nil {
		if cerr := old.Close(); cerr != nil {
			a.log.Debug().Err(cerr).Msg("Error closing old transport")
		}
	}
	a.status.SetLinkStatus(ctx, false)
	if err != nil {
		a.log.Error().Err(err).Msg("Failed to recreate transport after close, will retry on next use")
		return
	}
	a.log.Info().Msg("Session closed, transport recreated")
}

// LogIn sends the phone number once the network asks for one.
func (a *Adapter) LogIn(ctx context.Context, identifier string) (err error) {
	ctx, span := a.startSpan(ctx, "LogIn")
	defer func() { endSpan(span, err) }()

	if !a.IsReadyToLogin() {
		// A transport makes the network start reporting authorization states.
		_, terr := a.ensureTransport(ctx)
		if a.cfg.LenientLogin {
			a.log.Debug().AnErr("transport_error", terr).Msg("Ignoring login before phone number is requested")
			return nil
		}
		if terr != nil {
			return terr
		}
		return fmt.Errorf("%w to log in", extchat.ErrNotReady)
	}
	if _, err = a.send(ctx, tdproto.SetAuthenticationPhoneNumber{PhoneNumber: identifier}); err != nil {
		return fmt.Errorf("failed to set authentication phone number: %w", err)
	}
	return nil
}

// SendCode submits the authentication code once the network asks for one.
func (a *Adapter) SendCode(ctx context.Context, code string) (err error) {
	ctx, span := a.startSpan(ctx, "SendCode")
	defer func() { endSpan(span, err) }()

	if !a.IsReadyToSendCode() {
		return fmt.Errorf("%w to send code", extchat.ErrNotReady)
	}
	if _, err = a.send(ctx, tdproto.CheckAuthenticationCode{Code: code}); err != nil {
		return fmt.Errorf("failed to check authentication code: %w", err)
	}
	return nil
}

// LogOut asks the network to log out. Flags change only when the resulting
// authorization states arrive.
func (a *Adapter) LogOut(ctx context.Context) (err error) {
	ctx, span := a.startSpan(ctx, "LogOut")
	defer func() { endSpan(span, err) }()

	if _, err = a.send(ctx, tdproto.LogOut{}); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	a.log.Info().Msg("Requested logout")
	return nil
}
