// Copyright 2026 The Cloister Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesSubcommand(t *testing.T) {
	ran := false
	root := &Command{
		Name: "cloister",
		Subcommands: []*Command{
			{
				Name: "whoami",
				Run: func(args []string) error {
					ran = true
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"whoami"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ran {
		t.Error("subcommand did not run")
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	var socket string
	var got []string
	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flags.StringVar(&socket, "socket", "/run/cloister/cloister.sock", "")
			return flags
		},
		Run: func(args []string) error {
			got = args
			return nil
		},
	}

	if err := command.Execute([]string{"alice.key", "--socket", "/tmp/c.sock"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if socket != "/tmp/c.sock" {
		t.Errorf("socket = %q", socket)
	}
	if len(got) != 1 || got[0] != "alice.key" {
		t.Errorf("positional args = %v", got)
	}
}

func TestExecuteSuggestsCloseCommand(t *testing.T) {
	root := &Command{
		Name: "cloister",
		Subcommands: []*Command{
			{Name: "release", Run: func([]string) error { return nil }},
			{Name: "review", Run: func([]string) error { return nil }},
		},
	}

	err := root.Execute([]string{"relese"})
	if err == nil {
		t.Fatal("unknown command accepted")
	}
	if !strings.Contains(err.Error(), `did you mean "release"`) {
		t.Errorf("error = %v, want release suggestion", err)
	}
}

func TestExecuteSuggestsCloseFlag(t *testing.T) {
	command := &Command{
		Name: "upload",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("upload", pflag.ContinueOnError)
			flags.String("policy", "", "")
			return flags
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--polcy", "x"})
	if err == nil {
		t.Fatal("unknown flag accepted")
	}
	if !strings.Contains(err.Error(), "--policy") {
		t.Errorf("error = %v, want --policy suggestion", err)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"release", "release", 0},
		{"relese", "release", 1},
		{"reveiw", "review", 2},
		{"keygen", "logout", 6},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
