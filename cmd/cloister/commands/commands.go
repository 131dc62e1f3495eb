// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete cloister CLI command tree.
package commands

import (
	"fmt"

	"github.com/cloister-systems/cloister/cmd/cloister/cli"
	"github.com/cloister-systems/cloister/lib/version"
)

// Root builds and returns the complete cloister CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "cloister",
		Description: `Cloister: data custody with policy-gated release.

Owners upload datasets with release policies; users submit query plans
and receive results only when the plan provably aggregates enough, or
when an owner approves the release.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			loginCommand(),
			whoamiCommand(),
			refreshCommand(),
			logoutCommand(),
			datasetCommand(),
			planCommand(),
			releaseCommand(),
			reviewCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("cloister %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Generate a signing keypair (give the .pem to the server operator)",
				Command:     "cloister keygen alice",
			},
			{
				Description: "Authenticate (saves a session locally)",
				Command:     "cloister login alice.key",
			},
			{
				Description: "Upload a dataset with its release policy",
				Command:     "cloister dataset upload census --frame census.bin --policy census-policy.jsonc",
			},
			{
				Description: "Submit a query plan",
				Command:     "cloister plan submit means-by-region.jsonc",
			},
			{
				Description: "Request a plan's results, blocking through review",
				Command:     "cloister release <plan-id> --out result.bin",
			},
			{
				Description: "List releases waiting for an owner verdict",
				Command:     "cloister review list",
			},
		},
	}
}
