// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"

	"github.com/arbiterhq/arbiter/judge/structs"
)

func f32(v float32) *float32 { return &v }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	must.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `{
  "problems": [
    {"id": 0, "name": "aplusb", "type": "standard",
     "cases": [{"score": 100, "input_file": "in.txt", "answer_file": "ans.txt"}]}
  ],
  "languages": [
    {"name": "c", "file_name": "main.c", "command": ["gcc", "%INPUT%", "-o", "%OUTPUT%"]}
  ]
}`

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, minimalConfig))
	must.NoError(t, err)
	must.Eq(t, DefaultBindAddress, config.Server.BindAddress)
	must.Eq(t, uint16(DefaultBindPort), config.Server.BindPort)
	must.Len(t, 1, config.Problems)
	must.Len(t, 1, config.Languages)
}

func TestLoadConfig_ServerSection(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, `{
  "server": {"bind_address": "0.0.0.0", "bind_port": 8080},
  "problems": [
    {"id": 0, "name": "p", "type": "strict", "cases": [{"score": 100}]}
  ],
  "languages": [{"name": "c", "file_name": "main.c", "command": ["gcc"]}]
}`))
	must.NoError(t, err)
	must.Eq(t, "0.0.0.0", config.Server.BindAddress)
	must.Eq(t, uint16(8080), config.Server.BindPort)
}

func TestLoadConfig_Errors(t *testing.T) {
	// Missing file.
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	must.Error(t, err)

	// Not JSON.
	_, err = LoadConfig(writeConfig(t, "problems:\n  - 1\n"))
	must.Error(t, err)

	// Parses but defines nothing.
	_, err = LoadConfig(writeConfig(t, "{}"))
	must.Error(t, err)
	must.StrContains(t, err.Error(), "no problems defined")
	must.StrContains(t, err.Error(), "no languages defined")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Problems: []structs.Problem{{
				ID:    0,
				Name:  "p",
				Type:  structs.ProblemStandard,
				Cases: []structs.Case{{Score: 60}, {Score: 40}},
			}},
			Languages: []structs.Language{{
				Name: "c", FileName: "main.c", Command: []string{"gcc"},
			}},
		}
	}
	must.NoError(t, valid().Validate())

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"duplicate problem id",
			func(c *Config) { c.Problems = append(c.Problems, c.Problems[0]) },
			"duplicate problem id 0",
		},
		{
			"unknown type",
			func(c *Config) { c.Problems[0].Type = "fuzzy" },
			`unknown problem type "fuzzy"`,
		},
		{
			"no cases",
			func(c *Config) { c.Problems[0].Cases = nil },
			"between 1 and",
		},
		{
			"too many cases",
			func(c *Config) {
				c.Problems[0].Cases = make([]structs.Case, maxCasesPerProblem+1)
			},
			"between 1 and",
		},
		{
			"score sum off",
			func(c *Config) { c.Problems[0].Cases[0].Score = 70 },
			"sum to 110",
		},
		{
			"spj without judge",
			func(c *Config) { c.Problems[0].Type = structs.ProblemSPJ },
			"without special judge command",
		},
		{
			"dynamic without ratio",
			func(c *Config) { c.Problems[0].Type = structs.ProblemDynamicRanking },
			"ratio in (0, 1)",
		},
		{
			"dynamic ratio out of range",
			func(c *Config) {
				c.Problems[0].Type = structs.ProblemDynamicRanking
				c.Problems[0].Misc.DynamicRankingRatio = f32(1.5)
			},
			"ratio in (0, 1)",
		},
		{
			"packing unknown case",
			func(c *Config) { c.Problems[0].Misc.Packing = [][]uint32{{1, 3}} },
			"unknown case 3",
		},
		{
			"empty pack",
			func(c *Config) { c.Problems[0].Misc.Packing = [][]uint32{{1}, {}} },
			"pack 1 is empty",
		},
		{
			"packing duplicate case",
			func(c *Config) { c.Problems[0].Misc.Packing = [][]uint32{{1}, {1, 2}} },
			"more than one pack",
		},
		{
			"duplicate language",
			func(c *Config) { c.Languages = append(c.Languages, c.Languages[0]) },
			`duplicate language "c"`,
		},
		{
			"language without file name",
			func(c *Config) { c.Languages[0].FileName = "" },
			"no file name",
		},
		{
			"language without command",
			func(c *Config) { c.Languages[0].Command = nil },
			"no command",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			config := valid()
			tc.mutate(config)
			err := config.Validate()
			must.Error(t, err)
			must.StrContains(t, err.Error(), tc.wantErr)
		})
	}
}
