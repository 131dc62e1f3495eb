// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cloister-systems/cloister/cmd/cloister/cli"
)

func reviewCommand() *cli.Command {
	return &cli.Command{
		Name:    "review",
		Summary: "Rule on pending release requests (owner role)",
		Subcommands: []*cli.Command{
			reviewListCommand(),
			reviewResolveCommand("approve", true),
			reviewResolveCommand("deny", false),
		},
	}
}

func reviewListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List releases waiting for a verdict",
		Run: func(args []string) error {
			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			tickets, err := client.ListReviews(ctx, token)
			if err != nil {
				return err
			}
			if len(tickets) == 0 {
				fmt.Fprintln(os.Stderr, "No pending reviews")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "TICKET\tDATASET\tREQUESTER\tSUBMITTED\tPLAN")
			for _, ticket := range tickets {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					ticket.ID,
					ticket.Dataset,
					ticket.RequesterID,
					ticket.Submitted.Format(time.RFC3339),
					ticket.PlanID,
				)
			}
			tw.Flush()

			for _, ticket := range tickets {
				fmt.Printf("\n%s:\n", ticket.ID)
				for _, failure := range ticket.Failures {
					fmt.Printf("  %s\n", failure)
				}
			}
			return nil
		},
	}
}

func reviewResolveCommand(name string, accept bool) *cli.Command {
	verdict := "denied"
	if accept {
		verdict = "approved"
	}

	return &cli.Command{
		Name:    name,
		Summary: fmt.Sprintf("Rule a pending release %s", verdict),
		Usage:   fmt.Sprintf("cloister review %s <ticket-id>", name),
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one ticket ID is required\n\nUsage: cloister review %s <ticket-id>", name)
			}

			client, token, err := cli.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			if err := client.ResolveReview(ctx, token, args[0], accept); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Ticket %s %s\n", args[0], verdict)
			return nil
		},
	}
}
