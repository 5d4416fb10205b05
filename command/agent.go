// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package command

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hashicorp/cli"
	hclog "github.com/hashicorp/go-hclog"

	"github.com/arbiterhq/arbiter/command/agent"
)

// AgentCommand runs the judge service until it is interrupted.
type AgentCommand struct {
	Ui cli.Ui
}

func (c *AgentCommand) Help() string {
	helpText := `
Usage: arbiter agent [options]

  Starts the judge service: loads the configuration, restores or seeds the
  state store, and serves the HTTP API until interrupted.

Agent Options:

  -config=<path>
    Path to the JSON configuration file. Required.

  -storage
    Mirror all state onto a boltdb file so it survives restarts.

  -data=<path>
    Location of the boltdb file used with -storage. Defaults to "data.db".

  -reset-storage
    Discard any persisted state and start from the built-in defaults.

  -flush-data
    Accepted for compatibility; currently has no effect.
`
	return strings.TrimSpace(helpText)
}

func (c *AgentCommand) Synopsis() string {
	return "Run the judge service"
}

// parseFlags parses the agent's startup flags into the agent options.
func (c *AgentCommand) parseFlags(args []string) (string, agent.Options, bool) {
	var configPath string
	var flushData bool
	opts := agent.Options{DataPath: agent.DefaultDataPath}

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Output(c.Help()) }
	flags.StringVar(&configPath, "config", "", "")
	flags.BoolVar(&opts.Persist, "storage", false, "")
	flags.StringVar(&opts.DataPath, "data", agent.DefaultDataPath, "")
	flags.BoolVar(&opts.ResetStorage, "reset-storage", false, "")
	// Accepted but inert, reserved for compatibility.
	flags.BoolVar(&flushData, "flush-data", false, "")
	if err := flags.Parse(args); err != nil {
		return "", agent.Options{}, false
	}
	if configPath == "" {
		c.Ui.Error("Must specify a configuration file with -config")
		return "", agent.Options{}, false
	}
	return configPath, opts, true
}

func (c *AgentCommand) Run(args []string) int {
	configPath, opts, ok := c.parseFlags(args)
	if !ok {
		return 1
	}

	config, err := agent.LoadConfig(configPath)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error loading configuration: %s", err))
		return 1
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "arbiter",
		Level: hclog.Info,
	})

	a, err := agent.NewAgent(config, opts, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting agent: %s", err))
		return 1
	}
	defer a.Shutdown()

	srv, err := agent.NewHTTPServer(a, config)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting http server: %s", err))
		return 1
	}
	defer srv.Shutdown()

	c.Ui.Output(fmt.Sprintf("Judge service listening on %s", srv.Addr()))

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	sig := <-signalCh
	c.Ui.Output(fmt.Sprintf("Caught signal: %v", sig))
	return 0
}
