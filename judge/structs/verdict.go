// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"encoding/json"
	"fmt"
)

// Verdict is the classification of a judged test case or of a whole job.
// The zero value is VerdictWaiting.
type Verdict uint8

const (
	VerdictWaiting Verdict = iota
	VerdictRunning
	VerdictAccepted
	VerdictCompilationError
	VerdictCompilationSuccess
	VerdictWrongAnswer
	VerdictRuntimeError
	VerdictTimeLimitExceeded
	VerdictMemoryLimitExceeded
	VerdictSystemError
	VerdictSPJError
	VerdictSkipped
)

// verdictNames maps each verdict to its wire form. Multi-word verdicts are
// spelled with spaces on the wire ("Compilation Error"), so the mapping is
// explicit rather than derived from the identifier.
var verdictNames = map[Verdict]string{
	VerdictWaiting:             "Waiting",
	VerdictRunning:             "Running",
	VerdictAccepted:            "Accepted",
	VerdictCompilationError:    "Compilation Error",
	VerdictCompilationSuccess:  "Compilation Success",
	VerdictWrongAnswer:         "Wrong Answer",
	VerdictRuntimeError:        "Runtime Error",
	VerdictTimeLimitExceeded:   "Time Limit Exceeded",
	VerdictMemoryLimitExceeded: "Memory Limit Exceeded",
	VerdictSystemError:         "System Error",
	VerdictSPJError:            "SPJ Error",
	VerdictSkipped:             "Skipped",
}

var verdictValues = func() map[string]Verdict {
	m := make(map[string]Verdict, len(verdictNames))
	for v, name := range verdictNames {
		m[name] = v
	}
	return m
}()

func (v Verdict) String() string {
	if name, ok := verdictNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Verdict(%d)", uint8(v))
}

// ParseVerdict resolves a display string ("Wrong Answer") to its Verdict.
func ParseVerdict(s string) (Verdict, bool) {
	v, ok := verdictValues[s]
	return v, ok
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	name, ok := verdictNames[v]
	if !ok {
		return nil, fmt.Errorf("unknown verdict %d", uint8(v))
	}
	return json.Marshal(name)
}

func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := verdictValues[s]
	if !ok {
		return fmt.Errorf("unknown verdict %q", s)
	}
	*v = parsed
	return nil
}
