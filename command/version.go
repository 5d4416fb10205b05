// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"github.com/hashicorp/cli"

	"github.com/arbiterhq/arbiter/version"
)

// VersionCommand prints the binary version.
type VersionCommand struct {
	Ui cli.Ui
}

func (c *VersionCommand) Help() string {
	return ""
}

func (c *VersionCommand) Synopsis() string {
	return "Prints the version"
}

func (c *VersionCommand) Run(_ []string) int {
	c.Ui.Output(version.GetVersion().FullVersionNumber(true))
	return 0
}
