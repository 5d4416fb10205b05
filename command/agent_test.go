// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"testing"

	"github.com/hashicorp/cli"
	"github.com/shoenig/test/must"

	"github.com/arbiterhq/arbiter/command/agent"
)

func TestAgentCommand_ParseFlags(t *testing.T) {
	cmd := &AgentCommand{Ui: cli.NewMockUi()}

	// The documented surface: --storage turns persistence on,
	// --reset-storage clears it, --flush-data is accepted and inert.
	path, opts, ok := cmd.parseFlags([]string{
		"--config", "judge.json", "--storage", "--reset-storage", "--flush-data",
	})
	must.True(t, ok)
	must.Eq(t, "judge.json", path)
	must.True(t, opts.Persist)
	must.True(t, opts.ResetStorage)
	must.Eq(t, agent.DefaultDataPath, opts.DataPath)

	// Single-dash spellings parse the same way.
	path, opts, ok = cmd.parseFlags([]string{
		"-config", "judge.json", "-storage", "-data", "state.db",
	})
	must.True(t, ok)
	must.Eq(t, "judge.json", path)
	must.True(t, opts.Persist)
	must.Eq(t, "state.db", opts.DataPath)
	must.False(t, opts.ResetStorage)
}

func TestAgentCommand_ParseFlags_FlushDataInert(t *testing.T) {
	cmd := &AgentCommand{Ui: cli.NewMockUi()}

	// --flush-data must not enable persistence or reset anything.
	_, opts, ok := cmd.parseFlags([]string{"--config", "judge.json", "--flush-data"})
	must.True(t, ok)
	must.False(t, opts.Persist)
	must.False(t, opts.ResetStorage)
}

func TestAgentCommand_ParseFlags_Errors(t *testing.T) {
	ui := cli.NewMockUi()
	cmd := &AgentCommand{Ui: ui}

	_, _, ok := cmd.parseFlags(nil)
	must.False(t, ok)
	must.StrContains(t, ui.ErrorWriter.String(), "configuration file")

	_, _, ok = cmd.parseFlags([]string{"--config", "judge.json", "--bogus"})
	must.False(t, ok)
}
