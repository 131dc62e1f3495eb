// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloister-systems/cloister/lib/sealed"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloister.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	return path
}

func testRecipient(t *testing.T) string {
	t.Helper()
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair.PublicKey
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen:
  socket_path: /tmp/test-cloister.sock
auth:
  session_ttl: 2m
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Listen.SocketPath != "/tmp/test-cloister.sock" {
		t.Errorf("SocketPath = %q, want override", cfg.Listen.SocketPath)
	}
	if got := cfg.SessionTTL(); got != 2*time.Minute {
		t.Errorf("SessionTTL() = %v, want 2m", got)
	}
	// Untouched fields keep defaults.
	if got := cfg.ChallengeTTL(); got != 30*time.Second {
		t.Errorf("ChallengeTTL() = %v, want default 30s", got)
	}
	if cfg.Datastore.PoolSize != 4 {
		t.Errorf("PoolSize = %d, want default 4", cfg.Datastore.PoolSize)
	}
}

func TestLoadFileExpandsVariables(t *testing.T) {
	t.Setenv("CLOISTER_TEST_DIR", "/srv/cloister")
	path := writeConfig(t, `
keys:
  directory: ${CLOISTER_TEST_DIR}/keys
datastore:
  path: ${CLOISTER_TEST_MISSING:-/var/lib/cloister}/datasets.db
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Keys.Directory != "/srv/cloister/keys" {
		t.Errorf("Keys.Directory = %q, want expanded env var", cfg.Keys.Directory)
	}
	if cfg.Datastore.Path != "/var/lib/cloister/datasets.db" {
		t.Errorf("Datastore.Path = %q, want expanded default", cfg.Datastore.Path)
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("CLOISTER_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Error("Load with unset CLOISTER_CONFIG succeeded, want error")
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := Default()
	cfg.Datastore.SealingRecipients = []string{testRecipient(t)}
	cfg.Datastore.SealingIdentityFile = "/etc/cloister/identity.age"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on complete config: %v", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Listen.SocketPath = ""
	cfg.Auth.SessionTTL = "not-a-duration"
	cfg.Datastore.PoolSize = 0
	// SealingRecipients also empty.

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded, want errors")
	}
	message := err.Error()
	for _, want := range []string{
		"listen.socket_path",
		"auth.session_ttl",
		"datastore.pool_size",
		"sealing_recipients",
	} {
		if !strings.Contains(message, want) {
			t.Errorf("Validate error missing %q: %v", want, err)
		}
	}
}

func TestValidateRejectsBadRecipient(t *testing.T) {
	cfg := Default()
	cfg.Datastore.SealingRecipients = []string{"age1bogus"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a malformed sealing recipient")
	}
}

func TestValidateRejectsNonPositiveDuration(t *testing.T) {
	cfg := Default()
	cfg.Datastore.SealingRecipients = []string{testRecipient(t)}
	cfg.Datastore.SealingIdentityFile = "/etc/cloister/identity.age"
	cfg.Review.DecisionTimeout = "-1m"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a negative review timeout")
	}
}
