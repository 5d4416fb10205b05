// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package command holds the CLI commands of the arbiter binary.
package command

import (
	"github.com/hashicorp/cli"
)

// Commands returns the mapping of CLI commands. The meta parameters are
// shared across all commands.
func Commands(ui cli.Ui) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"agent": func() (cli.Command, error) {
			return &AgentCommand{Ui: ui}, nil
		},
		"version": func() (cli.Command, error) {
			return &VersionCommand{Ui: ui}, nil
		},
	}
}
