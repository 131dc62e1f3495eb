// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements Cloister's challenge-response authentication
// and session tracking.
//
// The protocol has two steps. A client first requests a challenge: 32
// random bytes the server remembers for a short window. The client
// signs exactly those bytes with its registered Ed25519 key and sends
// back the key ID, the challenge, and the signature. If the key is
// registered, the challenge is live, and the signature verifies, the
// server consumes the challenge and opens a session.
//
// A challenge is consumed atomically on first use, whether or not the
// signature verifies. Replaying a sniffed authentication request can
// therefore never succeed: the second presentation fails with
// ErrUnknownChallenge before any signature check.
//
// Sessions are identified by an opaque 256-bit token derived via
// HKDF-SHA256 from fresh random entropy. Expired sessions are evicted
// lazily when touched.
package auth
