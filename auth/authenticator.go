// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/ed25519"

	"github.com/cloister-systems/cloister/identity"
)

// Authenticator runs the full challenge-response handshake: key lookup,
// challenge consumption, signature verification, session creation.
type Authenticator struct {
	registry   *identity.Registry
	challenges *ChallengeStore
	sessions   *SessionStore
}

// NewAuthenticator wires the handshake over a registry, a challenge
// store, and a session store.
func NewAuthenticator(registry *identity.Registry, challenges *ChallengeStore, sessions *SessionStore) *Authenticator {
	return &Authenticator{
		registry:   registry,
		challenges: challenges,
		sessions:   sessions,
	}
}

// IssueChallenge hands out a fresh challenge for any caller. Challenges
// are not bound to a key; the binding happens at Authenticate, where
// the signature proves possession of the claimed key.
func (a *Authenticator) IssueChallenge() ([]byte, error) {
	return a.challenges.Issue()
}

// Authenticate verifies a signed challenge and opens a session.
//
// The checks run in a fixed order: the key ID must be registered
// (ErrUnknownKey), the challenge must be live (ErrUnknownChallenge),
// and the signature must verify over exactly the challenge bytes
// (ErrBadSignature). The challenge is consumed before the signature is
// checked, so a failed signature still burns the challenge and a
// replayed request fails on the challenge check.
func (a *Authenticator) Authenticate(keyID string, challenge, signature []byte, remoteAddr, descriptor string) ([]byte, Session, error) {
	id, ok := a.registry.Lookup(keyID)
	if !ok {
		return nil, Session{}, ErrUnknownKey
	}

	if err := a.challenges.Consume(challenge); err != nil {
		return nil, Session{}, err
	}

	if !ed25519.Verify(id.PublicKey, challenge, signature) {
		return nil, Session{}, ErrBadSignature
	}

	return a.sessions.Create(keyID, remoteAddr, descriptor)
}

// VerifySession resolves a token to its session and the identity that
// opened it. A session can outlive a registry reload that removed its
// key; that is reported as ErrUnknownKey so the caller revokes it.
func (a *Authenticator) VerifySession(token []byte) (Session, identity.Identity, error) {
	session, err := a.sessions.Verify(token)
	if err != nil {
		return Session{}, identity.Identity{}, err
	}
	id, ok := a.registry.Lookup(session.KeyID)
	if !ok {
		return Session{}, identity.Identity{}, ErrUnknownKey
	}
	return session, id, nil
}

// RefreshSession extends a live session by a full TTL from now.
func (a *Authenticator) RefreshSession(token []byte) (Session, error) {
	return a.sessions.Refresh(token)
}

// RevokeSession terminates a session immediately.
func (a *Authenticator) RevokeSession(token []byte) error {
	return a.sessions.Revoke(token)
}
