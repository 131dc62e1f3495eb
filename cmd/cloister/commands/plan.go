// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/cloister-systems/cloister/cmd/cloister/cli"
	"github.com/cloister-systems/cloister/gate"
	"github.com/cloister-systems/cloister/plan"
)

func planCommand() *cli.Command {
	return &cli.Command{
		Name:    "plan",
		Summary: "Submit query plans (user role)",
		Subcommands: []*cli.Command{
			planSubmitCommand(),
		},
	}
}

func planSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:    "submit",
		Summary: "Submit a query plan",
		Description: `Submit a query plan from a JSONC plan file.

The plan is an ordered node list; each node's inputs reference earlier
nodes by index. On success the plan's content address is printed; pass
it to 'cloister release' to request the results.`,
		Usage: "cloister plan submit <plan-file>",
		Examples: []cli.Example{
			{
				Description: "Submit a plan and capture its ID",
				Command:     "PLAN=$(cloister plan submit means-by-region.jsonc)",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one plan file is required\n\nUsage: cloister plan submit <plan-file>")
			}

			document, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading plan: %w", err)
			}
			var p plan.Plan
			if err := json.Unmarshal(jsonc.ToJSON(document), &p); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			// Catch structural mistakes before burning a round trip.
			if err := p.Validate(); err != nil {
				return err
			}

			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			planID, err := client.SubmitPlan(ctx, token, &p)
			if err != nil {
				return err
			}
			fmt.Println(planID)
			return nil
		},
	}
}

func releaseCommand() *cli.Command {
	var (
		outPath string
		timeout time.Duration
	)

	return &cli.Command{
		Name:    "release",
		Summary: "Request a submitted plan's results",
		Description: `Request the results of a previously submitted plan.

If every touched dataset's policy proves the plan safe, the results
come back immediately. Otherwise the request blocks while the owners
review it; the server times the review out on its own schedule. Results
go to --out, or to stdout if no file is given.`,
		Usage: "cloister release <plan-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("release", pflag.ContinueOnError)
			flags.StringVar(&outPath, "out", "", "file to write released data to (default: stdout)")
			flags.DurationVar(&timeout, "timeout", 0, "give up waiting after this long (default: wait for the server)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one plan ID is required\n\nUsage: cloister release <plan-id> [flags]")
			}

			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			result, err := client.RequestRelease(ctx, token, args[0])
			if err != nil {
				return err
			}

			if result.Status != gate.StatusReleased {
				if len(result.Reasons) > 0 {
					return fmt.Errorf("release %s:\n  %s", result.Status, strings.Join(result.Reasons, "\n  "))
				}
				return fmt.Errorf("release %s", result.Status)
			}

			if outPath == "" {
				_, err := os.Stdout.Write(result.Data)
				return err
			}
			if err := os.WriteFile(outPath, result.Data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			fmt.Fprintf(os.Stderr, "Released %d bytes to %s\n", len(result.Data), outPath)
			return nil
		},
	}
}
