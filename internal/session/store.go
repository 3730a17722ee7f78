// Package session owns the client's authentication state: token, role and
// profile. The in-memory triple is authoritative; the key-value store is a
// write-through durability mirror read only at cold start.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/booking-client/internal/model"
	"github.com/jwalitptl/booking-client/pkg/kvstore"
)

// Mirror keys in the key-value store.
const (
	KeyToken = "token"
	KeyRole  = "role"
	KeyUser  = "user"
)

// Normalize treats the literal strings "undefined" and "null" as absent.
// Earlier serialization bugs in the upstream ecosystem persisted them as
// real values.
func Normalize(v string) string {
	switch v {
	case "undefined", "null":
		return ""
	}
	return v
}

// Session is a point-in-time copy of the authentication state. Token and
// role are both present or both absent.
type Session struct {
	Token string
	Role  model.Role
	User  *model.Profile
}

// Store is the process-wide session singleton. Only Set and Clear mutate
// it; per the side-effect boundary, their callers are the auth service and
// the HTTP client's 401/403 handler.
type Store struct {
	mu     sync.RWMutex
	kv     kvstore.Store
	logger *zerolog.Logger

	loaded bool
	token  string
	role   model.Role
	user   *model.Profile
}

func NewStore(kv kvstore.Store, logger *zerolog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Set installs a fully authenticated session atomically and mirrors it to
// the key-value store.
func (s *Store) Set(ctx context.Context, token string, role model.Role, user *model.Profile) error {
	token = Normalize(token)
	if token == "" || role == "" {
		return fmt.Errorf("session: token and role are both required")
	}

	s.mu.Lock()
	s.token = token
	s.role = role
	s.user = user
	s.loaded = true
	s.mu.Unlock()

	if err := s.kv.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("failed to mirror token: %w", err)
	}
	if err := s.kv.Set(ctx, KeyRole, string(role)); err != nil {
		return fmt.Errorf("failed to mirror role: %w", err)
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyUser, string(data)); err != nil {
		return fmt.Errorf("failed to mirror user: %w", err)
	}
	return nil
}

// Clear drops the session from memory and from the mirror. Mirror failures
// are logged, not returned: in-memory state is authoritative and is gone
// either way.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.role = ""
	s.user = nil
	s.loaded = true
	s.mu.Unlock()

	for _, key := range []string{KeyToken, KeyRole, KeyUser} {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("failed to clear session mirror key")
		}
	}
}

// Load restores the session from the mirror at cold start. Sentinel values
// count as absent; a partially persisted session or an expired token clears
// everything rather than entering a half-authenticated state.
func (s *Store) Load(ctx context.Context) error {
	token, err := s.read(ctx, KeyToken)
	if err != nil {
		return err
	}
	roleRaw, err := s.read(ctx, KeyRole)
	if err != nil {
		return err
	}

	if token == "" || roleRaw == "" {
		if token != "" || roleRaw != "" {
			s.logger.Warn().Msg("partially persisted session found, clearing")
		}
		s.Clear(ctx)
		return nil
	}

	role, err := model.ParseRole(roleRaw)
	if err != nil {
		s.logger.Warn().Str("role", roleRaw).Msg("unrecognized persisted role, clearing session")
		s.Clear(ctx)
		return nil
	}

	if expired(token) {
		s.logger.Warn().Msg("persisted token is expired, clearing session")
		s.Clear(ctx)
		return nil
	}

	var user *model.Profile
	if rawUser, err := s.read(ctx, KeyUser); err == nil && rawUser != "" {
		profile, perr := model.ProfileFromRaw([]byte(rawUser))
		if perr != nil {
			s.logger.Warn().Err(perr).Msg("persisted user failed to normalize, dropping profile")
		} else {
			user = profile
		}
	}

	s.mu.Lock()
	s.token = token
	s.role = role
	s.user = user
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func (s *Store) read(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session mirror: %w", err)
	}
	return Normalize(v), nil
}

// expired checks the token's exp claim without verifying the signature;
// the client holds no signing key and the server remains the authority.
func expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{Token: s.token, Role: s.role, User: s.user}
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) Role() model.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Loaded reports whether the session has been resolved at least once, via
// Load, Set or Clear. The access guard treats an unresolved session as
// UNKNOWN rather than unauthenticated.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
