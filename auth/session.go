// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/cloister-systems/cloister/lib/clock"
)

// TokenSize is the length of a session token in bytes.
const TokenSize = 32

// Session is a live authenticated session.
type Session struct {
	// KeyID identifies the registered key that opened the session.
	KeyID string

	// RemoteAddr is where the authentication request came from. It is
	// recorded for audit logging only; later requests on the session
	// are not required to come from the same address.
	RemoteAddr string

	// Descriptor is opaque client-supplied metadata (client name and
	// version, typically). Recorded verbatim, never interpreted.
	Descriptor string

	// Expiry is when the session stops verifying. Refresh pushes it
	// forward; it never moves backward.
	Expiry time.Time
}

// SessionStore tracks live sessions keyed by opaque token. Safe for
// concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	clk      clock.Clock
	ttl      time.Duration
	sessions map[[TokenSize]byte]Session
}

// NewSessionStore returns a store whose sessions live for ttl after
// creation or refresh.
func NewSessionStore(clk clock.Clock, ttl time.Duration) *SessionStore {
	return &SessionStore{
		clk:      clk,
		ttl:      ttl,
		sessions: make(map[[TokenSize]byte]Session),
	}
}

// Create opens a session for keyID and returns the token to present on
// later requests. The token is derived from fresh entropy via
// HKDF-SHA256 with the key ID as context, so tokens are uniform random
// bytes even if the entropy source repeats state across keys.
func (s *SessionStore) Create(keyID, remoteAddr, descriptor string) ([]byte, Session, error) {
	var seed [TokenSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, Session{}, fmt.Errorf("generating session token: %w", err)
	}

	var token [TokenSize]byte
	derive := hkdf.New(sha256.New, seed[:], nil, []byte("cloister session token "+keyID))
	if _, err := io.ReadFull(derive, token[:]); err != nil {
		return nil, Session{}, fmt.Errorf("deriving session token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	s.evictLocked(now)

	session := Session{
		KeyID:      keyID,
		RemoteAddr: remoteAddr,
		Descriptor: descriptor,
		Expiry:     now.Add(s.ttl),
	}
	s.sessions[token] = session

	return token[:], session, nil
}

// Verify returns the session for a token. Returns ErrNoSuchSession for
// an unknown token and ErrSessionExpired for one whose lifetime has
// passed; expired sessions are removed as they are discovered. Live
// lookups hold only the read lock, so verifications run concurrently
// and the write lock is taken just to evict.
func (s *SessionStore) Verify(token []byte) (Session, error) {
	key, ok := tokenKey(token)
	if !ok {
		return Session{}, ErrNoSuchSession
	}

	s.mu.RLock()
	session, found := s.sessions[key]
	s.mu.RUnlock()

	if !found {
		return Session{}, ErrNoSuchSession
	}
	if s.clk.Now().After(session.Expiry) {
		s.evictIfExpired(key)
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// evictIfExpired removes the session if it is still expired under the
// write lock. A Refresh may have extended it between the caller's read
// and this call; the re-check keeps such a session alive.
func (s *SessionStore) evictIfExpired(key [TokenSize]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.sessions[key]
	if found && s.clk.Now().After(session.Expiry) {
		delete(s.sessions, key)
	}
}

// Refresh extends a live session to a full TTL from now and returns the
// updated session. A session refreshed before expiry always gains
// lifetime: the new expiry is strictly later than the old one.
// Refreshing an expired or unknown session fails like Verify.
func (s *SessionStore) Refresh(token []byte) (Session, error) {
	key, ok := tokenKey(token)
	if !ok {
		return Session{}, ErrNoSuchSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, found := s.sessions[key]
	if !found {
		return Session{}, ErrNoSuchSession
	}
	now := s.clk.Now()
	if now.After(session.Expiry) {
		delete(s.sessions, key)
		return Session{}, ErrSessionExpired
	}

	session.Expiry = now.Add(s.ttl)
	s.sessions[key] = session
	return session, nil
}

// Revoke removes a session immediately. Returns ErrNoSuchSession if the
// token matches no session, expired or otherwise.
func (s *SessionStore) Revoke(token []byte) error {
	key, ok := tokenKey(token)
	if !ok {
		return ErrNoSuchSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.sessions[key]; !found {
		return ErrNoSuchSession
	}
	delete(s.sessions, key)
	return nil
}

// LiveCount returns how many unexpired sessions exist. Counting does
// not evict, so it shares the read lock with Verify.
func (s *SessionStore) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clk.Now()
	count := 0
	for _, session := range s.sessions {
		if !now.After(session.Expiry) {
			count++
		}
	}
	return count
}

func (s *SessionStore) evictLocked(now time.Time) {
	for token, session := range s.sessions {
		if now.After(session.Expiry) {
			delete(s.sessions, token)
		}
	}
}

func tokenKey(token []byte) ([TokenSize]byte, bool) {
	var key [TokenSize]byte
	if len(token) != TokenSize {
		return key, false
	}
	copy(key[:], token)
	return key, true
}
