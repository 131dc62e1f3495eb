// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for dataset frames at rest and
// for private signing keys on disk. It wraps filippo.io/age with the
// two shapes Cloister needs: seal raw bytes to one or more x25519
// recipients (dataset frames stored in the datastore), and seal bytes
// under a passphrase (Ed25519 signing keys written by the keygen CLI).
//
// Ciphertext is raw binary. Dataset frames go straight into SQLite BLOB
// columns and key files are written as-is, so no armor or base64 layer
// is involved.
//
// Private keys and unsealed plaintext travel in *secret.Buffer values
// (mmap-backed, locked against swap, excluded from core dumps, zeroed
// on close).
package sealed

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/cloister-systems/cloister/lib/secret"
)

// Keypair holds an age x25519 keypair. The private key lives in a
// secret.Buffer; the public key is a plain string safe to publish in
// server configuration.
//
// The caller must Close the keypair when done.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... identity, stored in mmap
	// memory outside the Go heap. Never log it or pass it on a command
	// line.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair with the private
// key held in a secret.Buffer. The caller must Close the result.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	// The string returned by identity.String() is heap-allocated and
	// will be GC'd; the mmap buffer is the durable copy.

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to one or more x25519 recipients given as
// age1... public key strings. Returns raw binary ciphertext.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	return seal(plaintext, recipients...)
}

// Unseal decrypts ciphertext produced by Seal using the given x25519
// private key. The private key is borrowed and not closed. Returns the
// plaintext in a secret.Buffer that the caller must Close.
func Unseal(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	// age.ParseX25519Identity requires a string; the heap copy is brief
	// and request-scoped.
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return unseal(ciphertext, identity)
}

// SealWithPassphrase encrypts plaintext under a scrypt-derived key.
// Used by the keygen CLI to write Ed25519 signing keys to disk. The
// passphrase is borrowed and not closed.
func SealWithPassphrase(plaintext []byte, passphrase *secret.Buffer) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	return seal(plaintext, recipient)
}

// UnsealWithPassphrase decrypts ciphertext produced by
// SealWithPassphrase. The passphrase is borrowed and not closed.
// Returns the plaintext in a secret.Buffer that the caller must Close.
func UnsealWithPassphrase(ciphertext []byte, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	return unseal(ciphertext, identity)
}

// ValidateRecipient checks that publicKey is a valid age x25519 public
// key. Used when loading server configuration, so a typo in a sealing
// recipient fails at startup rather than on the first dataset upload.
func ValidateRecipient(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

func seal(plaintext []byte, recipients ...age.Recipient) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

func unseal(ciphertext []byte, identity age.Identity) (*secret.Buffer, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}

	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("decrypted plaintext is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}
