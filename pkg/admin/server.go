// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package admin serves the bridge admin API: adapter operations per
// platform, link status, the contact directory and Prometheus metrics.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-extchat/pkg/extchat"
	"github.com/aiku/mattermost-extchat/pkg/linkstore"
)

// DefaultAddr is used when no listen address is configured.
const DefaultAddr = ":29320"

// maxBodySize caps request bodies (1 MB).
const maxBodySize = 1 << 20

// Directory is the read side of the link store.
type Directory interface {
	Status(platform string) linkstore.Status
	Contacts(platform string) []extchat.ExternalContact
}

// AccountLinker links the bridge account to an external identity and looks
// up the internal users standing in for external ones.
type AccountLinker interface {
	LinkAccount(ctx context.Context, platform, externalID string) error
	AliasUserID(ctx context.Context, platform, externalID, username string) (string, error)
}

type Options struct {
	Addr string
	// BearerToken protects /api when set.
	BearerToken string
	Adapters    extchat.Registry
	Directory   Directory
	Linker      AccountLinker
	Gatherer    prometheus.Gatherer
	Logger      zerolog.Logger
}

type Server struct {
	opts    Options
	log     zerolog.Logger
	handler http.Handler
	server  *http.Server
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	s := &Server{
		opts: opts,
		log:  opts.Logger.With().Str("component", "admin").Logger(),
	}
	s.handler = s.buildRouter()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		if s.opts.BearerToken != "" {
			r.Use(s.requireToken)
		}
		r.Get("/status", s.handleStatus)
		r.Get("/contacts", s.handleContacts)
		r.Route("/extchat/{platform}", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/login", s.handleLogIn)
			r.Post("/code", s.handleSendCode)
			r.Post("/logout", s.handleLogOut)
			r.Post("/contacts/pull", s.handlePullContacts)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/link", s.handleLinkAccount)
			r.Post("/alias", s.handleAliasUser)
		})
	})
	return r
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.server = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("Starting bridge admin API")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Bridge admin API error")
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down admin API: %w", err)
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.BearerToken)) != 1 {
			s.log.Warn().Str("remote_addr", r.RemoteAddr).Str("path", r.URL.Path).Msg("Rejected unauthorized admin request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Handled admin request")
	})
}
