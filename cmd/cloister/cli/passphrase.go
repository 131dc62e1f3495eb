// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/cloister-systems/cloister/lib/secret"
)

// ReadPassphrase obtains a passphrase for sealing or unsealing a key
// file. If passphraseFile is a real path, the passphrase is read from
// it; if it is empty or "-", the user is prompted on the terminal with
// echo disabled. When confirm is set the interactive prompt asks twice
// and requires both entries to match (used when creating a key, not
// when opening one).
func ReadPassphrase(passphraseFile string, confirm bool) (*secret.Buffer, error) {
	if passphraseFile != "" && passphraseFile != "-" {
		return secret.ReadFromPath(passphraseFile)
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal available for interactive passphrase prompt (use --passphrase-file)")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	passphrase, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		secret.Zero(passphrase)
		return nil, fmt.Errorf("passphrase is empty")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		confirmation, err := term.ReadPassword(stdinFileDescriptor)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			secret.Zero(passphrase)
			return nil, fmt.Errorf("reading passphrase confirmation: %w", err)
		}
		match := bytes.Equal(passphrase, confirmation)
		secret.Zero(confirmation)
		if !match {
			secret.Zero(passphrase)
			return nil, fmt.Errorf("passphrases do not match")
		}
	}

	buffer, err := secret.NewFromBytes(passphrase)
	if err != nil {
		secret.Zero(passphrase)
		return nil, err
	}
	return buffer, nil
}
