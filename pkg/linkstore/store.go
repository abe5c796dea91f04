// Copyright 2024-2026 Aiku AI

// Package linkstore keeps the link status and contact directory of each
// external platform. Reads are served from memory; every change is written
// through to SQLite so the directory survives restarts.
package linkstore

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/aiku/mattermost-extchat/pkg/extchat"
)

const defaultBusyTimeout = 5000

// Status is the link state of one platform.
type Status struct {
	Linked    bool      `json:"linked"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time

	mu       sync.RWMutex
	status   map[string]Status
	contacts map[string]map[string]extchat.ExternalContact
}

// Open opens (creating if needed) the database at path and loads the
// stored snapshot. Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		log:      log.With().Str("component", "linkstore").Logger(),
		now:      time.Now,
		status:   make(map[string]Status),
		contacts: make(map[string]map[string]extchat.ExternalContact),
	}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT platform, linked, updated_at FROM link_status")
	if err != nil {
		return fmt.Errorf("failed to load link status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			platform  string
			linked    bool
			updatedAt int64
		)
		if err := rows.Scan(&platform, &linked, &updatedAt); err != nil {
			return fmt.Errorf("failed to scan link status: %w", err)
		}
		s.status[platform] = Status{Linked: linked, UpdatedAt: time.UnixMilli(updatedAt)}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load link status: %w", err)
	}

	contactRows, err := s.db.QueryContext(ctx, "SELECT platform, external_id, name FROM contacts")
	if err != nil {
		return fmt.Errorf("failed to load contacts: %w", err)
	}
	defer contactRows.Close()
	for contactRows.Next() {
		var platform string
		contact := extchat.ExternalContact{Messages: []extchat.Message{}}
		if err := contactRows.Scan(&platform, &contact.ID, &contact.Name); err != nil {
			return fmt.Errorf("failed to scan contact: %w", err)
		}
		if s.contacts[platform] == nil {
			s.contacts[platform] = make(map[string]extchat.ExternalContact)
		}
		s.contacts[platform][contact.ID] = contact
	}
	return contactRows.Err()
}

// Sink returns the status sink an adapter for platform reports to.
func (s *Store) Sink(platform string) extchat.StatusSink {
	return &sink{store: s, platform: platform}
}

// Status returns the last reported link status of platform.
func (s *Store) Status(platform string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[platform]
}

// Contacts returns the directory of platform ordered by name, then id.
func (s *Store) Contacts(platform string) []extchat.ExternalContact {
	s.mu.RLock()
	out := make([]extchat.ExternalContact, 0, len(s.contacts[platform]))
	for _, c := range s.contacts[platform] {
		out = append(out, c)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b extchat.ExternalContact) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (s *Store) setLinkStatus(ctx context.Context, platform string, linked bool) error {
	st := Status{Linked: linked, UpdatedAt: s.now()}
	s.mu.Lock()
	s.status[platform] = st
	s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO link_status (platform, linked, updated_at) VALUES (?, ?, ?)",
		platform, linked, st.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store link status: %w", err)
	}
	return nil
}

func (s *Store) replaceContacts(ctx context.Context, platform string, contacts map[string]extchat.ExternalContact) error {
	snapshot := make(map[string]extchat.ExternalContact, len(contacts))
	for id, c := range contacts {
		snapshot[id] = c
	}
	s.mu.Lock()
	s.contacts[platform] = snapshot
	s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM contacts WHERE platform = ?", platform); err != nil {
		return fmt.Errorf("failed to clear contacts: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO contacts (platform, external_id, name, synced_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()
	syncedAt := s.now().UnixMilli()
	for id, c := range snapshot {
		if _, err := stmt.ExecContext(ctx, platform, id, c.Name, syncedAt); err != nil {
			return fmt.Errorf("failed to insert contact %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contacts: %w", err)
	}
	return nil
}

type sink struct {
	store    *Store
	platform string
}

func (k *sink) SetLinkStatus(ctx context.Context, linked bool) {
	if err := k.store.setLinkStatus(ctx, k.platform, linked); err != nil {
		k.store.log.Err(err).Str("platform", k.platform).Bool("linked", linked).Msg("Failed to persist link status")
		return
	}
	k.store.log.Info().Str("platform", k.platform).Bool("linked", linked).Msg("Link status changed")
}

func (k *sink) PublishContacts(ctx context.Context, contacts map[string]extchat.ExternalContact) {
	if err := k.store.replaceContacts(ctx, k.platform, contacts); err != nil {
		k.store.log.Err(err).Str("platform", k.platform).Msg("Failed to persist contacts")
		return
	}
	k.store.log.Info().Str("platform", k.platform).Int("count", len(contacts)).Msg("Contacts published")
}
