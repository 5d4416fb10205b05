// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/hashicorp/cli"

	"github.com/arbiterhq/arbiter/command"
	"github.com/arbiterhq/arbiter/version"
)

func main() {
	os.Exit(Run(os.Args[1:]))
}

func Run(args []string) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := cli.NewCLI("arbiter", version.GetVersion().VersionNumber())
	c.Args = args
	c.Commands = command.Commands(ui)
	c.HelpFunc = cli.BasicHelpFunc("arbiter")

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing CLI: %s\n", err)
		return 1
	}
	return exitCode
}
