// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/cloister-systems/cloister/lib/clock"
)

// ChallengeSize is the length of an issued challenge in bytes.
const ChallengeSize = 32

// ChallengeStore issues random challenges and consumes them exactly
// once. Safe for concurrent use.
type ChallengeStore struct {
	mu         sync.Mutex
	clk        clock.Clock
	ttl        time.Duration
	challenges map[[ChallengeSize]byte]time.Time
}

// NewChallengeStore returns a store whose challenges stay redeemable
// for ttl after issue.
func NewChallengeStore(clk clock.Clock, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		clk:        clk,
		ttl:        ttl,
		challenges: make(map[[ChallengeSize]byte]time.Time),
	}
}

// Issue returns a fresh 32-byte challenge. The store remembers it until
// it is consumed or its TTL passes.
func (s *ChallengeStore) Issue() ([]byte, error) {
	var challenge [ChallengeSize]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return nil, fmt.Errorf("generating challenge: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	s.evictLocked(now)
	s.challenges[challenge] = now.Add(s.ttl)

	return challenge[:], nil
}

// Consume removes the challenge from the store. Returns
// ErrUnknownChallenge if it was never issued, already consumed, or has
// expired. The removal happens under one lock acquisition, so two
// concurrent presentations of the same challenge can never both
// succeed.
func (s *ChallengeStore) Consume(challenge []byte) error {
	if len(challenge) != ChallengeSize {
		return ErrUnknownChallenge
	}
	var key [ChallengeSize]byte
	copy(key[:], challenge)

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.challenges[key]
	if !ok {
		return ErrUnknownChallenge
	}
	delete(s.challenges, key)

	if s.clk.Now().After(deadline) {
		return ErrUnknownChallenge
	}
	return nil
}

// PendingCount returns how many unexpired challenges are outstanding.
func (s *ChallengeStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(s.clk.Now())
	return len(s.challenges)
}

func (s *ChallengeStore) evictLocked(now time.Time) {
	for challenge, deadline := range s.challenges {
		if now.After(deadline) {
			delete(s.challenges, challenge)
		}
	}
}
