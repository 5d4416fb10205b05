// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

// ProblemType selects the output comparison mode for a problem.
type ProblemType string

const (
	// ProblemStandard compares outputs line by line, ignoring blank lines
	// and trailing whitespace differences introduced by line endings.
	ProblemStandard ProblemType = "standard"

	// ProblemStrict compares output and answer byte for byte.
	ProblemStrict ProblemType = "strict"

	// ProblemSPJ delegates the comparison to an external special judge.
	ProblemSPJ ProblemType = "spj"

	// ProblemDynamicRanking is the standard comparison plus a
	// time-competitive score component awarded at ranklist time.
	ProblemDynamicRanking ProblemType = "dynamic_ranking"
)

// Case is a single test case of a problem. TimeLimit is in microseconds;
// zero means no limit. MemoryLimit is accepted but not enforced.
type Case struct {
	Score       float32 `json:"score"`
	InputFile   string  `json:"input_file"`
	AnswerFile  string  `json:"answer_file"`
	TimeLimit   uint64  `json:"time_limit"`
	MemoryLimit uint64  `json:"memory_limit"`
}

// ProblemMisc carries the per-type extras of a problem definition.
type ProblemMisc struct {
	// Packing groups 1-based case ids; within a group evaluation
	// short-circuits on the first non-accepted case.
	Packing [][]uint32 `json:"packing,omitempty"`

	// SpecialJudge is the argv of the external judge for spj problems,
	// with %OUTPUT% and %ANSWER% placeholders.
	SpecialJudge []string `json:"special_judge,omitempty"`

	// DynamicRankingRatio is the share of the score that is
	// time-competitive, in (0,1). Required for dynamic_ranking problems.
	DynamicRankingRatio *float32 `json:"dynamic_ranking_ratio,omitempty"`
}

// Problem is a judging problem from the configuration. Per problem the case
// scores sum to 100.
type Problem struct {
	ID    uint32      `json:"id"`
	Name  string      `json:"name"`
	Type  ProblemType `json:"type"`
	Misc  ProblemMisc `json:"misc"`
	Cases []Case      `json:"cases"`
}

// Language describes how submissions in one language are materialized and
// compiled. Command is an argv template with %INPUT% (source path) and
// %OUTPUT% (executable path) placeholders.
type Language struct {
	Name     string   `json:"name"`
	FileName string   `json:"file_name"`
	Command  []string `json:"command"`
}
