// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

// cloister is the client CLI: key generation, authentication, dataset
// upload, plan submission, and release review.
package main

import (
	"fmt"
	"os"

	"github.com/cloister-systems/cloister/cmd/cloister/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
