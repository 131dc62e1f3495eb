// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/cloister-systems/cloister/cmd/cloister/cli"
	"github.com/cloister-systems/cloister/identity"
	"github.com/cloister-systems/cloister/lib/sealed"
	"github.com/cloister-systems/cloister/service"
)

// dialTimeout bounds the short request-response commands. Release
// requests are the exception and manage their own deadline.
const dialTimeout = 30 * time.Second

func loginCommand() *cli.Command {
	var (
		socketPath     string
		passphraseFile string
	)

	return &cli.Command{
		Name:    "login",
		Summary: "Authenticate and save a session locally",
		Description: `Open a session with a Cloister server.

The key file is the sealed private key written by 'cloister keygen'.
Login unseals it with your passphrase, answers the server's challenge,
and saves the resulting session token to ` + cli.SessionFilePath() + `
(mode 0600). Subsequent commands use the saved session transparently.`,
		Usage: "cloister login <key-file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flags.StringVar(&socketPath, "socket", cli.DefaultSocketPath(), "server Unix socket path")
			flags.StringVar(&passphraseFile, "passphrase-file", "", "path to file containing the passphrase, or - to prompt (default: prompt)")
			return flags
		},
		Examples: []cli.Example{
			{
				Description: "Log in, prompting for the key passphrase",
				Command:     "cloister login alice.key",
			},
			{
				Description: "Log in to a server on a non-default socket",
				Command:     "cloister login alice.key --socket /tmp/cloister.sock",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one key file is required\n\nUsage: cloister login <key-file> [flags]")
			}

			privateKey, keyID, err := openKeyFile(args[0], passphraseFile)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			client := service.NewClient(socketPath)
			challenge, err := client.Challenge(ctx)
			if err != nil {
				return fmt.Errorf("requesting challenge: %w", err)
			}
			token, expiry, err := client.Authenticate(ctx, keyID, challenge, ed25519.Sign(privateKey, challenge))
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			if err := cli.SaveSession(&cli.Session{
				SocketPath: socketPath,
				KeyID:      keyID,
				Token:      hex.EncodeToString(token),
				Expiry:     expiry,
			}); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Logged in as %s\n", keyID)
			fmt.Fprintf(os.Stderr, "Session valid until %s\n", expiry.Format(time.RFC3339))
			return nil
		},
	}
}

// openKeyFile unseals a keygen-written key file and returns the signing
// key with its key ID.
func openKeyFile(path, passphraseFile string) (ed25519.PrivateKey, string, error) {
	sealedKey, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading key file: %w", err)
	}

	passphrase, err := cli.ReadPassphrase(passphraseFile, false)
	if err != nil {
		return nil, "", err
	}
	defer passphrase.Close()

	der, err := sealed.UnsealWithPassphrase(sealedKey, passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("unsealing %s: %w", path, err)
	}
	defer der.Close()

	parsed, err := x509.ParsePKCS8PrivateKey(der.Bytes())
	if err != nil {
		return nil, "", fmt.Errorf("parsing private key: %w", err)
	}
	privateKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, "", fmt.Errorf("%s does not hold an Ed25519 key", path)
	}

	keyID, err := identity.KeyID(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, "", err
	}
	return privateKey, keyID, nil
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the current session",
		Run: func(args []string) error {
			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			info, err := client.VerifySession(ctx, token)
			if err != nil {
				return err
			}
			fmt.Printf("Name:    %s\n", info.Name)
			fmt.Printf("Role:    %s\n", info.Role)
			fmt.Printf("Key ID:  %s\n", info.KeyID)
			fmt.Printf("Expires: %s\n", info.Expiry.Format(time.RFC3339))
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:    "refresh",
		Summary: "Extend the current session",
		Run: func(args []string) error {
			session, err := cli.LoadSession()
			if err != nil {
				return err
			}
			token, err := hex.DecodeString(session.Token)
			if err != nil {
				return fmt.Errorf("session token is not valid hex (run 'cloister login' again)")
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			expiry, err := service.NewClient(session.SocketPath).RefreshSession(ctx, token)
			if err != nil {
				return err
			}

			session.Expiry = expiry
			if err := cli.SaveSession(session); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Session valid until %s\n", expiry.Format(time.RFC3339))
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:    "logout",
		Summary: "Revoke the current session",
		Run: func(args []string) error {
			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			// An already-dead session is fine; the point is that the
			// local token stops working and goes away.
			if err := client.RevokeSession(ctx, token); err != nil &&
				!strings.Contains(err.Error(), "no such session") {
				return err
			}
			if err := cli.RemoveSession(); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Logged out")
			return nil
		},
	}
}
