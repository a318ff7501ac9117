// Package session holds the directory credentials for one console session.
// A rejected or expired token invalidates the session until it is renewed.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
)

var _ ports.TokenSource = (*Session)(nil)

var (
	ErrEmptyToken   = errors.New("token is empty")
	ErrTokenExpired = errors.New("token expired")
)

// State is the externally visible session state.
type State struct {
	Valid         bool       `json:"valid"`
	Reason        string     `json:"reason,omitempty"`
	Fingerprint   string     `json:"fingerprint,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	InvalidatedAt *time.Time `json:"invalidated_at,omitempty"`
	RenewedAt     *time.Time `json:"renewed_at,omitempty"`
}

// Listener is told when the session changes validity.
type Listener interface {
	OnSessionInvalidated(ctx context.Context, state State)
	OnSessionRenewed(ctx context.Context, state State)
}

// Session implements ports.TokenSource for the directory client.
type Session struct {
	mu            sync.RWMutex
	token         string
	expiresAt     *time.Time
	valid         bool
	reason        string
	invalidatedAt *time.Time
	renewedAt     *time.Time
	now           func() time.Time
	log           zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []Listener
}

// New creates a session. An empty token starts the session invalid.
func New(token string) *Session {
	s := &Session{
		now: time.Now,
		log: logger.WithComponent("session"),
	}
	if token == "" {
		s.reason = "no directory token configured"
		return s
	}
	s.token = token
	s.expiresAt = tokenExpiry(token)
	s.valid = true
	return s
}

// SetClock overrides the time source. Used by tests.
func (s *Session) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddListener registers a session listener.
func (s *Session) AddListener(l Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Token returns the bearer token. An expired token invalidates the session.
func (s *Session) Token() (string, error) {
	if err := s.Check(context.Background()); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Check returns ErrSessionInvalid once the session has been invalidated.
func (s *Session) Check(ctx context.Context) error {
	s.mu.RLock()
	valid := s.valid
	expired := s.expiresAt != nil && !s.now().Before(*s.expiresAt)
	s.mu.RUnlock()

	if !valid {
		return domain.ErrSessionInvalid
	}
	if expired {
		s.Invalidate(ctx, ErrTokenExpired.Error())
		return domain.ErrSessionInvalid
	}
	return nil
}

// Invalidate marks the session unusable and notifies listeners.
// Only the first call after a renewal has any effect.
func (s *Session) Invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	at := s.now()
	s.valid = false
	s.reason = reason
	s.invalidatedAt = &at
	state := s.stateLocked()
	s.mu.Unlock()

	s.log.Warn().Str("reason", reason).Str("fingerprint", state.Fingerprint).Msg("Directory session invalidated")

	for _, l := range s.snapshotListeners() {
		l.OnSessionInvalidated(ctx, state)
	}
}

// Renew installs a new token and revalidates the session.
func (s *Session) Renew(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	exp := tokenExpiry(token)

	s.mu.Lock()
	now := s.now()
	if exp != nil && !now.Before(*exp) {
		s.mu.Unlock()
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Format(time.RFC3339))
	}
	s.token = token
	s.expiresAt = exp
	s.valid = true
	s.reason = ""
	s.invalidatedAt = nil
	s.renewedAt = &now
	state := s.stateLocked()
	s.mu.Unlock()

	s.log.Info().Str("fingerprint", state.Fingerprint).Msg("Directory session renewed")

	for _, l := range s.snapshotListeners() {
		l.OnSessionRenewed(ctx, state)
	}
	return nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Fingerprint identifies the current token without revealing it.
func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Fingerprint(s.token)
}

func (s *Session) stateLocked() State {
	return State{
		Valid:         s.valid,
		Reason:        s.reason,
		Fingerprint:   Fingerprint(s.token),
		ExpiresAt:     s.expiresAt,
		InvalidatedAt: s.invalidatedAt,
		RenewedAt:     s.renewedAt,
	}
}

func (s *Session) snapshotListeners() []Listener {
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	out := make([]Listener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// Fingerprint returns a short blake2b digest of token, or "" for no token.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

// tokenExpiry reads the exp claim of a JWT without verifying it. The directory
// verifies signatures; the console only needs to know when to stop using it.
// Opaque tokens have no known expiry.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
