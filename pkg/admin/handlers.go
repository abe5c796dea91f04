// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
)

type platformStatus struct {
	Linked          bool       `json:"linked"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	ReadyToLogin    bool       `json:"ready_to_login"`
	ReadyToSendCode bool       `json:"ready_to_send_code"`
}

type logInRequest struct {
	Identifier string `json:"identifier"`
}

type sendCodeRequest struct {
	Code string `json:"code"`
}

type sendMessageRequest struct {
	ExternalID string `json:"external_id"`
	Body       string `json:"body"`
}

type linkAccountRequest struct {
	ExternalID string `json:"external_id"`
}

type aliasUserRequest struct {
	ExternalID string `json:"external_id"`
	Username   string `json:"username"`
}

type aliasUserResponse struct {
	AliasUserID string `json:"alias_user_id"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write admin response")
	}
}

// writeError maps adapter errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, extchat.ErrUnknownPlatform):
		status = http.StatusNotFound
	case errors.Is(err, extchat.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, extchat.ErrInvalidExternalID):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.log.Warn().Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("Admin request failed")
	http.Error(w, err.Error(), status)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) adapter(w http.ResponseWriter, r *http.Request) (extchat.Adapter, bool) {
	adapter, err := s.opts.Adapters.Get(chi.URLParam(r, "platform"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return adapter, true
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	platforms := make(map[string]platformStatus, len(s.opts.Adapters))
	for _, name := range s.opts.Adapters.Platforms() {
		adapter := s.opts.Adapters[name]
		st := platformStatus{
			ReadyToLogin:    adapter.IsReadyToLogin(),
			ReadyToSendCode: adapter.IsReadyToSendCode(),
		}
		if s.opts.Directory != nil {
			link := s.opts.Directory.Status(name)
			st.Linked = link.Linked
			if !link.UpdatedAt.IsZero() {
				st.UpdatedAt = &link.UpdatedAt
			}
		}
		platforms[name] = st
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"platforms": platforms})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if s.opts.Directory == nil {
		http.Error(w, "contact directory not configured", http.StatusNotFound)
		return
	}
	platforms := s.opts.Adapters.Platforms()
	if p := r.URL.Query().Get("platform"); p != "" {
		if _, err := s.opts.Adapters.Get(p); err != nil {
			s.writeError(w, r, err)
			return
		}
		platforms = []string{p}
	}
	out := make(map[string][]extchat.ExternalContact, len(platforms))
	for _, name := range platforms {
		out[name] = s.opts.Directory.Contacts(name)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogIn(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.adapter(w, r)
	if !ok {
		return
	}
	var req logInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Identifier == "" {
		http.Error(w, "identifier is required", http.StatusBadRequest)
		return
	}
	if err := adapter.LogIn(r.Context(), req.Identifier); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendCode(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.adapter(w, r)
	if !ok {
		return
	}
	var req sendCodeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	if err := adapter.SendCode(r.Context(), req.Code); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogOut(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.adapter(w, r)
	if !ok {
		return
	}
	if err := adapter.LogOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePullContacts(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.adapter(w, r)
	if !ok {
		return
	}
	if err := adapter.PullContacts(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	adapter, ok := s.adapter(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		http.Error(w, "external_id is required", http.StatusBadRequest)
		return
	}
	// An empty body is allowed; the adapter substitutes a placeholder.
	if err := adapter.SendMessage(r.Context(), req.ExternalID, req.Body); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.adapter(w, r); !ok {
		return
	}
	if s.opts.Linker == nil {
		http.Error(w, "account linking not configured", http.StatusNotFound)
		return
	}
	var req linkAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		http.Error(w, "external_id is required", http.StatusBadRequest)
		return
	}
	if err := s.opts.Linker.LinkAccount(r.Context(), chi.URLParam(r, "platform"), req.ExternalID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAliasUser returns the internal user that relayed messages from an
// external contact are credited to.
func (s *Server) handleAliasUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.adapter(w, r); !ok {
		return
	}
	if s.opts.Linker == nil {
		http.Error(w, "account linking not configured", http.StatusNotFound)
		return
	}
	var req aliasUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ExternalID == "" || req.Username == "" {
		http.Error(w, "external_id and username are required", http.StatusBadRequest)
		return
	}
	aliasID, err := s.opts.Linker.AliasUserID(r.Context(), chi.URLParam(r, "platform"), req.ExternalID, req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, aliasUserResponse{AliasUserID: aliasID})
}
