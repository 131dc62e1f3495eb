// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import "errors"

var (
	// ErrUnknownKey means the presented key ID is not in the registry.
	ErrUnknownKey = errors.New("unknown key")

	// ErrUnknownChallenge means the presented challenge was never
	// issued, has expired, or was already consumed.
	ErrUnknownChallenge = errors.New("unknown challenge")

	// ErrBadSignature means the signature does not verify against the
	// registered public key.
	ErrBadSignature = errors.New("bad signature")

	// ErrNoSuchSession means the presented token matches no live
	// session.
	ErrNoSuchSession = errors.New("no such session")

	// ErrSessionExpired means the session existed but its expiry has
	// passed.
	ErrSessionExpired = errors.New("session expired")
)
