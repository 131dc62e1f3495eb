// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/cloister-systems/cloister/identity"
	"github.com/cloister-systems/cloister/lib/clock"
)

type testIdentity struct {
	keyID      string
	privateKey ed25519.PrivateKey
}

func registerTestKey(t *testing.T, registry *identity.Registry, role identity.Role, name string) testIdentity {
	t.Helper()
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	keyID, err := identity.KeyID(publicKey)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}
	err = registry.Register(identity.Identity{
		KeyID:     keyID,
		Role:      role,
		Name:      name,
		PublicKey: publicKey,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return testIdentity{keyID: keyID, privateKey: privateKey}
}

func newTestAuthenticator(t *testing.T, clk clock.Clock) (*Authenticator, testIdentity) {
	t.Helper()
	registry := identity.NewRegistry()
	user := registerTestKey(t, registry, identity.RoleUser, "mallory")
	authenticator := NewAuthenticator(
		registry,
		NewChallengeStore(clk, 30*time.Second),
		NewSessionStore(clk, 10*time.Minute),
	)
	return authenticator, user
}

func TestAuthenticateHappyPath(t *testing.T) {
	authenticator, user := newTestAuthenticator(t, clock.Fake(epoch))

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	signature := ed25519.Sign(user.privateKey, challenge)

	token, session, err := authenticator.Authenticate(user.keyID, challenge, signature, "192.0.2.9:55000", "cloister/0.1.0")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if session.KeyID != user.keyID {
		t.Errorf("session KeyID = %q, want %q", session.KeyID, user.keyID)
	}
	if session.RemoteAddr != "192.0.2.9:55000" || session.Descriptor != "cloister/0.1.0" {
		t.Errorf("session metadata = %q / %q", session.RemoteAddr, session.Descriptor)
	}

	verified, id, err := authenticator.VerifySession(token)
	if err != nil {
		t.Fatalf("VerifySession: %v", err)
	}
	if verified.KeyID != user.keyID || id.Name != "mallory" {
		t.Errorf("VerifySession = %+v / %+v", verified, id)
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	authenticator, user := newTestAuthenticator(t, clock.Fake(epoch))

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	signature := ed25519.Sign(user.privateKey, challenge)

	_, _, err = authenticator.Authenticate("unregistered", challenge, signature, "", "")
	if !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Authenticate with unknown key = %v, want ErrUnknownKey", err)
	}

	// The challenge was not consumed by the failed key lookup.
	if _, _, err := authenticator.Authenticate(user.keyID, challenge, signature, "", ""); err != nil {
		t.Errorf("Authenticate after unknown-key attempt = %v, want success", err)
	}
}

func TestAuthenticateBadSignatureBurnsChallenge(t *testing.T) {
	authenticator, user := newTestAuthenticator(t, clock.Fake(epoch))

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}

	_, _, err = authenticator.Authenticate(user.keyID, challenge, []byte("forged"), "", "")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("Authenticate with forged signature = %v, want ErrBadSignature", err)
	}

	// The failed attempt consumed the challenge: even a valid signature
	// can no longer redeem it.
	signature := ed25519.Sign(user.privateKey, challenge)
	_, _, err = authenticator.Authenticate(user.keyID, challenge, signature, "", "")
	if !errors.Is(err, ErrUnknownChallenge) {
		t.Errorf("Authenticate after burned challenge = %v, want ErrUnknownChallenge", err)
	}
}

func TestAuthenticateReplayFails(t *testing.T) {
	authenticator, user := newTestAuthenticator(t, clock.Fake(epoch))

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	signature := ed25519.Sign(user.privateKey, challenge)

	if _, _, err := authenticator.Authenticate(user.keyID, challenge, signature, "", ""); err != nil {
		t.Fatalf("first Authenticate: %v", err)
	}

	// Replaying the identical request opens no second session.
	_, _, err = authenticator.Authenticate(user.keyID, challenge, signature, "", "")
	if !errors.Is(err, ErrUnknownChallenge) {
		t.Errorf("replayed Authenticate = %v, want ErrUnknownChallenge", err)
	}
}

func TestAuthenticateExpiredChallenge(t *testing.T) {
	clk := clock.Fake(epoch)
	authenticator, user := newTestAuthenticator(t, clk)

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	signature := ed25519.Sign(user.privateKey, challenge)

	clk.Advance(time.Minute)
	_, _, err = authenticator.Authenticate(user.keyID, challenge, signature, "", "")
	if !errors.Is(err, ErrUnknownChallenge) {
		t.Errorf("Authenticate with stale challenge = %v, want ErrUnknownChallenge", err)
	}
}

func TestAuthenticateSignatureMustCoverChallengeExactly(t *testing.T) {
	authenticator, user := newTestAuthenticator(t, clock.Fake(epoch))

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	// Signature over a superset of the challenge bytes does not verify.
	signature := ed25519.Sign(user.privateKey, append(append([]byte(nil), challenge...), 0x01))

	_, _, err = authenticator.Authenticate(user.keyID, challenge, signature, "", "")
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("Authenticate = %v, want ErrBadSignature", err)
	}
}

func TestRevokeSessionEndsAccess(t *testing.T) {
	authenticator, user := newTestAuthenticator(t, clock.Fake(epoch))

	challenge, err := authenticator.IssueChallenge()
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	token, _, err := authenticator.Authenticate(user.keyID, challenge, ed25519.Sign(user.privateKey, challenge), "", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := authenticator.RevokeSession(token); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, _, err := authenticator.VerifySession(token); !errors.Is(err, ErrNoSuchSession) {
		t.Errorf("VerifySession after revoke = %v, want ErrNoSuchSession", err)
	}
}
