// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/cloister-systems/cloister/cmd/cloister/cli"
)

func datasetCommand() *cli.Command {
	return &cli.Command{
		Name:    "dataset",
		Summary: "Manage datasets (owner role)",
		Subcommands: []*cli.Command{
			datasetUploadCommand(),
		},
	}
}

func datasetUploadCommand() *cli.Command {
	var (
		framePath  string
		policyPath string
	)

	return &cli.Command{
		Name:    "upload",
		Summary: "Upload a dataset with its release policy",
		Description: `Upload a dataset frame and bind a release policy to it.

The policy file is a JSONC document describing the safe zone (the plan
shapes released without review) and the handling of everything else
(reject or review). The policy is immutable once uploaded; re-uploading
under the same name is an error.`,
		Usage: "cloister dataset upload <name> --frame <file> --policy <file>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("upload", pflag.ContinueOnError)
			flags.StringVar(&framePath, "frame", "", "path to the dataset frame (required)")
			flags.StringVar(&policyPath, "policy", "", "path to the JSONC release policy (required)")
			return flags
		},
		Examples: []cli.Example{
			{
				Description: "Upload a census dataset",
				Command:     "cloister dataset upload census --frame census.bin --policy census-policy.jsonc",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one dataset name is required\n\nUsage: cloister dataset upload <name> --frame <file> --policy <file>")
			}
			if framePath == "" || policyPath == "" {
				return fmt.Errorf("--frame and --policy are required")
			}
			name := args[0]

			frame, err := os.ReadFile(framePath)
			if err != nil {
				return fmt.Errorf("reading frame: %w", err)
			}
			policyDocument, err := os.ReadFile(policyPath)
			if err != nil {
				return fmt.Errorf("reading policy: %w", err)
			}

			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			if err := client.UploadDataset(ctx, token, name, frame, policyDocument); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Uploaded %q (%d bytes)\n", name, len(frame))
			return nil
		},
	}
}
