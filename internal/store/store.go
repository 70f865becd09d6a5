// Package store implements the local token store: durable, synchronous
// storage for the bearer token and a cached user profile, surviving
// restarts but not logout or token invalidation.
//
// Every operation is infallible from the caller's point of view. Storage
// failures and malformed persisted records degrade to "absent" and are
// logged; they never bubble into the session controller.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/ayla-health/ayla-cli/internal/logging"
	"github.com/ayla-health/ayla-cli/internal/models"
)

const (
	keyToken   = "token"
	keyProfile = "profile"

	// profileRecordVersion is bumped whenever the persisted profile layout
	// changes. Records with an unknown version degrade to absent.
	profileRecordVersion = 1
)

// profileRecord is the versioned on-disk envelope for the cached profile.
type profileRecord struct {
	Version int                 `json:"v"`
	Profile *models.UserProfile `json:"profile"`
}

// Store is one handle onto the shared session storage. Handles created with
// the same DB and Notifier model independent execution contexts (browser
// tabs) over one storage substrate; each carries a unique origin ID so
// listeners can tell their own writes from foreign ones.
type Store struct {
	db       *sql.DB
	notifier *Notifier
	log      logging.Logger
	origin   string
}

// New creates a store handle over db, publishing changes to notifier.
func New(db *sql.DB, notifier *Notifier, log logging.Logger) *Store {
	return &Store{
		db:       db,
		notifier: notifier,
		log:      log,
		origin:   uuid.New().String(),
	}
}

// Origin returns the handle's unique identity, matched against
// Change.Origin by listeners.
func (s *Store) Origin() string {
	return s.origin
}

// Notifier exposes the change-notification channel shared by all handles.
func (s *Store) Notifier() *Notifier {
	return s.notifier
}

// Token returns the stored bearer token, or "" when not authenticated.
func (s *Store) Token(ctx context.Context) string {
	return string(s.get(ctx, keyToken))
}

// SaveToken overwrites the stored bearer token.
func (s *Store) SaveToken(ctx context.Context, token string) {
	s.set(ctx, keyToken, []byte(token))
}

// CachedProfile returns the cached user profile, or nil when absent.
// A malformed or unknown-version record is treated as absent.
func (s *Store) CachedProfile(ctx context.Context) *models.UserProfile {
	return decodeProfile(s.get(ctx, keyProfile))
}

// SaveProfile overwrites the cached profile and notifies other handles.
func (s *Store) SaveProfile(ctx context.Context, p *models.UserProfile) {
	rec := profileRecord{Version: profileRecordVersion, Profile: p}
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Warn(ctx, "failed to encode cached profile", "error", err)
		return
	}
	s.set(ctx, keyProfile, data)
	s.notifier.Publish(Change{Origin: s.origin, Profile: data})
}

// Clear removes both the token and the cached profile and notifies other
// handles. Used on logout and on authentication failure.
func (s *Store) Clear(ctx context.Context) {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session`)
	if err != nil {
		s.log.Warn(ctx, "failed to clear session storage", "error", err)
	}
	s.notifier.Publish(Change{Origin: s.origin, Cleared: true})
}

func (s *Store) get(ctx context.Context, key string) []byte {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.log.Warn(ctx, "failed to read session storage", "key", key, "error", err)
		return nil
	}
	return value
}

func (s *Store) set(ctx context.Context, key string, value []byte) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		s.log.Warn(ctx, "failed to write session storage", "key", key, "error", err)
	}
}

// decodeProfile parses a persisted profile record, returning nil for
// absent, malformed, or unknown-version data.
func decodeProfile(data []byte) *models.UserProfile {
	if len(data) == 0 {
		return nil
	}
	var rec profileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	if rec.Version != profileRecordVersion {
		return nil
	}
	return rec.Profile
}

// DecodeProfile exposes the persisted-record parser to listeners adopting
// foreign changes verbatim. Malformed input yields nil.
func DecodeProfile(data []byte) *models.UserProfile {
	return decodeProfile(data)
}
