// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package executor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const spjOutName = "spj.out"

// runSPJ hands the program output and the answer file to the problem's
// special judge and interprets its stdout: the first non-empty line is the
// verdict ("Accepted" or anything else for a rejection), the second is the
// info string carried into the case result. A judge that cannot be spawned,
// exits non-zero, or prints fewer than two non-empty lines fails the case
// with the SPJ Error verdict.
func (e *Executor) runSPJ(outPath, ansPath, scratch string, argv []string) (accepted bool, info string, failed bool) {
	if len(argv) == 0 {
		return false, "", true
	}

	spjDir, err := os.MkdirTemp(scratch, "spj-")
	if err != nil {
		e.logger.Error("failed to create special judge directory", "error", err)
		return false, "", true
	}
	defer func() {
		if err := os.RemoveAll(spjDir); err != nil {
			e.logger.Warn("failed to remove special judge directory", "dir", spjDir, "error", err)
		}
	}()

	spjOutPath := filepath.Join(spjDir, spjOutName)
	spjOut, err := os.Create(spjOutPath)
	if err != nil {
		e.logger.Error("failed to create special judge output", "error", err)
		return false, "", true
	}

	repl := strings.NewReplacer("%OUTPUT%", outPath, "%ANSWER%", ansPath)
	args := make([]string, 0, len(argv)-1)
	for _, a := range argv[1:] {
		args = append(args, repl.Replace(a))
	}
	cmd := exec.Command(argv[0], args...)
	cmd.Stdout = spjOut
	runErr := cmd.Run()
	spjOut.Close()
	if runErr != nil {
		e.logger.Debug("special judge failed", "command", argv[0], "error", runErr)
		return false, "", true
	}

	lines, err := significantLines(spjOutPath)
	if err != nil || len(lines) < 2 {
		return false, "", true
	}
	return lines[0] == "Accepted", lines[1], false
}
