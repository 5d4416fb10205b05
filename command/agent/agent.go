// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package agent wires the state store, the job executor, and the HTTP API
// into one process.
package agent

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/arbiterhq/arbiter/judge/executor"
	"github.com/arbiterhq/arbiter/judge/state"
)

// DefaultDataPath is where the durable store lives when persistence is on
// and no path is given.
const DefaultDataPath = "data.db"

// Options control agent startup behavior beyond the configuration file.
type Options struct {
	// Persist mirrors all registries onto a boltdb file.
	Persist bool

	// DataPath overrides the boltdb file location.
	DataPath string

	// ResetStorage discards persisted state and starts from the seeded
	// defaults.
	ResetStorage bool
}

// Agent owns the long-lived components of the judge service.
type Agent struct {
	logger    hclog.Logger
	config    *Config
	persister state.Persister
	state     *state.StateStore
	executor  *executor.Executor
}

// NewAgent builds the component graph: persister, state store seeded or
// loaded from it, and the executor on top.
func NewAgent(config *Config, opts Options, logger hclog.Logger) (*Agent, error) {
	logger = logger.Named("agent")

	var persister state.Persister = state.NewNoopPersister()
	if opts.Persist {
		path := opts.DataPath
		if path == "" {
			path = DefaultDataPath
		}
		db, err := state.NewBoltDB(path, logger.Named("state"))
		if err != nil {
			return nil, err
		}
		persister = db
	}

	st, err := state.New(&state.Config{
		Logger:       logger,
		DB:           persister,
		Problems:     config.Problems,
		ResetStorage: opts.ResetStorage,
	})
	if err != nil {
		persister.Close()
		return nil, fmt.Errorf("failed to initialize state store: %w", err)
	}

	return &Agent{
		logger:    logger,
		config:    config,
		persister: persister,
		state:     st,
		executor:  executor.New(logger, st, config.Languages),
	}, nil
}

// Shutdown releases the agent's resources. The HTTP server is shut down
// separately by its owner.
func (a *Agent) Shutdown() error {
	a.logger.Info("requesting shutdown")
	err := a.persister.Close()
	a.logger.Info("shutdown complete")
	return err
}
