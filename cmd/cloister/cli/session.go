// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cloister-systems/cloister/service"
)

// Session is the saved CLI session: where the server lives and the
// bearer token obtained at login. Commands load it transparently, so
// authenticating once is enough for the rest of the work.
type Session struct {
	// SocketPath is the server's Unix socket.
	SocketPath string `json:"socket_path"`

	// KeyID identifies the signing key the session was opened with.
	KeyID string `json:"key_id"`

	// Token is the hex-encoded session token. The file carries it in
	// the clear, which is why SaveSession writes mode 0600.
	Token string `json:"token"`

	// Expiry is the session deadline as reported at login or on the
	// last refresh. Informational; the server is authoritative.
	Expiry time.Time `json:"expiry"`
}

// SessionFilePath returns the path of the saved session file:
// $CLOISTER_SESSION_FILE if set, otherwise
// $XDG_CONFIG_HOME/cloister/session.json, otherwise
// ~/.config/cloister/session.json.
func SessionFilePath() string {
	if path := os.Getenv("CLOISTER_SESSION_FILE"); path != "" {
		return path
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "cloister", "session.json")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "cloister", "session.json")
}

// SaveSession writes the session to the well-known path with owner-only
// permissions.
func SaveSession(session *Session) error {
	path := SessionFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// LoadSession reads the saved session. A missing file gets a hint to
// log in rather than a bare ENOENT.
func LoadSession() (*Session, error) {
	path := SessionFilePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no saved session at %s (run 'cloister login' first)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if session.SocketPath == "" || session.Token == "" {
		return nil, fmt.Errorf("session file %s is incomplete (run 'cloister login' again)", path)
	}
	return &session, nil
}

// RemoveSession deletes the saved session file. Missing is not an error.
func RemoveSession() error {
	err := os.Remove(SessionFilePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Connect loads the saved session and returns a client for its server
// along with the decoded token.
func Connect() (*service.Client, []byte, error) {
	session, err := LoadSession()
	if err != nil {
		return nil, nil, err
	}
	token, err := hex.DecodeString(session.Token)
	if err != nil {
		return nil, nil, fmt.Errorf("session token is not valid hex (run 'cloister login' again)")
	}
	return service.NewClient(session.SocketPath), token, nil
}

// DefaultSocketPath returns the server socket for commands that run
// before a session exists: $CLOISTER_SOCKET if set, otherwise the
// server's default socket location.
func DefaultSocketPath() string {
	if path := os.Getenv("CLOISTER_SOCKET"); path != "" {
		return path
	}
	return "/run/cloister/cloister.sock"
}
