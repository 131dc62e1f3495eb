// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"sync"
)

// Role distinguishes what an identity may do: owners govern datasets,
// users query them.
type Role string

const (
	// RoleOwner identifies a data owner: may upload datasets and
	// resolve release reviews.
	RoleOwner Role = "owner"
	// RoleUser identifies a data scientist: may submit plans and
	// request releases.
	RoleUser Role = "user"
)

// Identity is a registered public key with its role.
type Identity struct {
	// KeyID is the lowercase hex SHA-256 of the key's PKIX DER bytes.
	KeyID string

	// Role is the identity's single role. The registry rejects
	// registering the same key under both roles.
	Role Role

	// Name is a human-readable label, taken from the PEM filename.
	Name string

	// PublicKey is the Ed25519 verification key.
	PublicKey ed25519.PublicKey
}

// Registry maps key IDs to registered identities. Safe for concurrent
// use; in practice it is populated once at startup and then only read.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{identities: make(map[string]Identity)}
}

// Register adds an identity to the registry. Registering the same key
// ID twice is an error regardless of role: the owner and user sets
// must stay disjoint, and duplicate files in one role directory are a
// configuration mistake worth surfacing.
func (r *Registry) Register(id Identity) error {
	if len(id.PublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("identity %q: public key has %d bytes, want %d", id.Name, len(id.PublicKey), ed25519.PublicKeySize)
	}
	if id.Role != RoleOwner && id.Role != RoleUser {
		return fmt.Errorf("identity %q: unknown role %q", id.Name, id.Role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.identities[id.KeyID]; ok {
		return fmt.Errorf("key %s already registered as %s %q", id.KeyID, existing.Role, existing.Name)
	}
	r.identities[id.KeyID] = id
	return nil
}

// Lookup returns the identity for a key ID, or false if the key is not
// registered.
func (r *Registry) Lookup(keyID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.identities[keyID]
	return id, ok
}

// Count returns how many identities hold the given role.
func (r *Registry) Count(role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, id := range r.identities {
		if id.Role == role {
			count++
		}
	}
	return count
}

// KeyID computes the registry key ID for an Ed25519 public key: hex
// SHA-256 of its PKIX DER encoding.
func KeyID(publicKey ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	digest := sha256.Sum256(der)
	return hex.EncodeToString(digest[:]), nil
}

// ParsePublicKeyPEM parses a PKIX PEM block holding an Ed25519 public
// key and returns the key with its key ID.
func ParsePublicKeyPEM(pemBytes []byte) (ed25519.PublicKey, string, error) {
	block, rest := pem.Decode(pemBytes)
	if block == nil {
		return nil, "", fmt.Errorf("no PEM block found")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, "", fmt.Errorf("PEM block is %q, want PUBLIC KEY", block.Type)
	}
	// Tolerate trailing whitespace only; a second block means the file
	// holds more than one key.
	if trailing, _ := pem.Decode(rest); trailing != nil {
		return nil, "", fmt.Errorf("file contains more than one PEM block")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("parsing PKIX public key: %w", err)
	}
	publicKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, "", fmt.Errorf("public key is %T, want ed25519", parsed)
	}

	digest := sha256.Sum256(block.Bytes)
	return publicKey, hex.EncodeToString(digest[:]), nil
}

// EncodePublicKeyPEM encodes an Ed25519 public key as a PKIX PEM block,
// the format LoadDirectory reads.
func EncodePublicKeyPEM(publicKey ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
