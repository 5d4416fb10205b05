// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-set/v3"

	"github.com/arbiterhq/arbiter/judge/structs"
)

const (
	// DefaultBindAddress and DefaultBindPort are used when the server
	// section omits them.
	DefaultBindAddress = "127.0.0.1"
	DefaultBindPort    = 12345

	// maxCasesPerProblem bounds the case list of one problem.
	maxCasesPerProblem = 20

	// problemScoreSum is what every problem's case scores must add up to.
	problemScoreSum = 100.0
)

// ServerConfig is the listener part of the configuration file.
type ServerConfig struct {
	BindAddress string `json:"bind_address"`
	BindPort    uint16 `json:"bind_port"`
}

// Config is the service configuration loaded at startup. Problems and
// languages are immutable for the lifetime of the process.
type Config struct {
	Server    ServerConfig       `json:"server"`
	Problems  []structs.Problem  `json:"problems"`
	Languages []structs.Language `json:"languages"`
}

// DefaultConfig has the default listener and nothing else. It does not pass
// Validate on its own; a usable configuration comes from a file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress: DefaultBindAddress,
			BindPort:    DefaultBindPort,
		},
	}
}

// LoadConfig reads, parses, and validates the JSON configuration at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	config := DefaultConfig()
	if err := json.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if config.Server.BindAddress == "" {
		config.Server.BindAddress = DefaultBindAddress
	}
	if config.Server.BindPort == 0 {
		config.Server.BindPort = DefaultBindPort
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the problem and language registries and reports every
// defect at once.
func (c *Config) Validate() error {
	var mErr multierror.Error

	if len(c.Problems) == 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("no problems defined"))
	}
	if len(c.Languages) == 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("no languages defined"))
	}

	problemIDs := set.New[uint32](len(c.Problems))
	for i := range c.Problems {
		p := &c.Problems[i]
		if !problemIDs.Insert(p.ID) {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("duplicate problem id %d", p.ID))
		}
		if err := validateProblem(p); err != nil {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("problem %d: %w", p.ID, err))
		}
	}

	languageNames := set.New[string](len(c.Languages))
	for i := range c.Languages {
		l := &c.Languages[i]
		if l.Name == "" {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("language %d has no name", i))
			continue
		}
		if !languageNames.Insert(l.Name) {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("duplicate language %q", l.Name))
		}
		if l.FileName == "" {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("language %q has no file name", l.Name))
		}
		if len(l.Command) == 0 {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("language %q has no command", l.Name))
		}
	}

	return mErr.ErrorOrNil()
}

func validateProblem(p *structs.Problem) error {
	var mErr multierror.Error

	switch p.Type {
	case structs.ProblemStandard, structs.ProblemStrict,
		structs.ProblemSPJ, structs.ProblemDynamicRanking:
	default:
		mErr.Errors = append(mErr.Errors, fmt.Errorf("unknown problem type %q", p.Type))
	}

	if n := len(p.Cases); n == 0 || n > maxCasesPerProblem {
		mErr.Errors = append(mErr.Errors,
			fmt.Errorf("has %d cases, want between 1 and %d", n, maxCasesPerProblem))
	}

	var scoreSum float64
	for j, tc := range p.Cases {
		if tc.Score < 0 {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("case %d has negative score", j+1))
		}
		scoreSum += float64(tc.Score)
	}
	if len(p.Cases) > 0 && math.Abs(scoreSum-problemScoreSum) > 1e-4 {
		mErr.Errors = append(mErr.Errors,
			fmt.Errorf("case scores sum to %v, want %v", scoreSum, problemScoreSum))
	}

	if p.Type == structs.ProblemSPJ && len(p.Misc.SpecialJudge) == 0 {
		mErr.Errors = append(mErr.Errors, fmt.Errorf("spj problem without special judge command"))
	}
	if p.Type == structs.ProblemDynamicRanking {
		r := p.Misc.DynamicRankingRatio
		if r == nil || *r <= 0 || *r >= 1 {
			mErr.Errors = append(mErr.Errors,
				fmt.Errorf("dynamic_ranking problem needs a ratio in (0, 1)"))
		}
	}

	packed := set.New[uint32](len(p.Cases))
	for i, pack := range p.Misc.Packing {
		if len(pack) == 0 {
			mErr.Errors = append(mErr.Errors, fmt.Errorf("pack %d is empty", i))
		}
		for _, caseID := range pack {
			if caseID < 1 || int(caseID) > len(p.Cases) {
				mErr.Errors = append(mErr.Errors, fmt.Errorf("packing references unknown case %d", caseID))
				continue
			}
			if !packed.Insert(caseID) {
				mErr.Errors = append(mErr.Errors, fmt.Errorf("case %d appears in more than one pack", caseID))
			}
		}
	}

	return mErr.ErrorOrNil()
}
