// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDirectory builds a registry from a key directory laid out as:
//
//	<dir>/owners/*.pem
//	<dir>/users/*.pem
//
// Each file holds one PKIX-encoded Ed25519 public key; the identity's
// name is the filename without the .pem suffix. Non-PEM files are an
// error, as is the same key appearing in both role directories. A
// missing role subdirectory is treated as that role having no keys.
func LoadDirectory(dir string) (*Registry, error) {
	registry := NewRegistry()

	for subdir, role := range map[string]Role{
		"owners": RoleOwner,
		"users":  RoleUser,
	} {
		if err := loadRole(registry, filepath.Join(dir, subdir), role); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func loadRole(registry *Registry, dir string, role Role) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".pem") {
			return fmt.Errorf("%s: unexpected file %q in key directory (keys must end in .pem)", dir, name)
		}

		path := filepath.Join(dir, name)
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		publicKey, keyID, err := ParsePublicKeyPEM(pemBytes)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}

		identity := Identity{
			KeyID:     keyID,
			Role:      role,
			Name:      strings.TrimSuffix(name, ".pem"),
			PublicKey: publicKey,
		}
		if err := registry.Register(identity); err != nil {
			return fmt.Errorf("registering %s: %w", path, err)
		}
	}
	return nil
}
