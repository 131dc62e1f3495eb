// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/cloister-systems/cloister/cmd/cloister/cli"
	"github.com/cloister-systems/cloister/identity"
	"github.com/cloister-systems/cloister/lib/secret"
	"github.com/cloister-systems/cloister/lib/sealed"
)

func keygenCommand() *cli.Command {
	var (
		outDir         string
		passphraseFile string
	)

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an Ed25519 signing keypair",
		Description: `Generate an Ed25519 keypair for authenticating to a Cloister server.

Two files are written: <name>.pem holds the public key, which the
server operator places in the key directory (owners/ or users/) to
register you. <name>.key holds the private key, sealed under a
passphrase; it never leaves your machine.`,
		Usage: "cloister keygen <name> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flags.StringVar(&outDir, "out-dir", ".", "directory to write the key files into")
			flags.StringVar(&passphraseFile, "passphrase-file", "", "path to file containing the passphrase, or - to prompt (default: prompt)")
			return flags
		},
		Examples: []cli.Example{
			{
				Description: "Generate a keypair, prompting for a passphrase",
				Command:     "cloister keygen alice",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one key name is required\n\nUsage: cloister keygen <name> [flags]")
			}
			name := args[0]

			publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generating keypair: %w", err)
			}
			keyID, err := identity.KeyID(publicKey)
			if err != nil {
				return err
			}

			passphrase, err := cli.ReadPassphrase(passphraseFile, true)
			if err != nil {
				return err
			}
			defer passphrase.Close()

			// The private key is stored as passphrase-sealed PKCS#8 DER.
			der, err := x509.MarshalPKCS8PrivateKey(privateKey)
			if err != nil {
				return fmt.Errorf("encoding private key: %w", err)
			}
			sealedKey, err := sealed.SealWithPassphrase(der, passphrase)
			secret.Zero(der)
			if err != nil {
				return fmt.Errorf("sealing private key: %w", err)
			}

			publicPath := filepath.Join(outDir, name+".pem")
			privatePath := filepath.Join(outDir, name+".key")

			publicPEM, err := identity.EncodePublicKeyPEM(publicKey)
			if err != nil {
				return err
			}
			if err := os.WriteFile(publicPath, publicPEM, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", publicPath, err)
			}
			if err := os.WriteFile(privatePath, sealedKey, 0600); err != nil {
				return fmt.Errorf("writing %s: %w", privatePath, err)
			}

			fmt.Printf("Key ID:      %s\n", keyID)
			fmt.Printf("Public key:  %s\n", publicPath)
			fmt.Printf("Private key: %s\n", privatePath)
			fmt.Println()
			fmt.Println("Send the .pem file to the server operator to be registered.")
			return nil
		},
	}
}
