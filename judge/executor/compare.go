// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package executor

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"slices"
	"strings"
)

// compareStandard checks the program output against the answer file line by
// line. Lines that are blank after trimming are dropped on both sides; the
// remaining lines must match exactly, including interior whitespace.
func compareStandard(outPath, ansPath string) (bool, error) {
	outLines, err := significantLines(outPath)
	if err != nil {
		return false, err
	}
	ansLines, err := significantLines(ansPath)
	if err != nil {
		return false, err
	}
	return slices.Equal(outLines, ansLines), nil
}

// compareStrict requires the two files to be byte-identical.
func compareStrict(outPath, ansPath string) (bool, error) {
	outData, err := os.ReadFile(outPath)
	if err != nil {
		return false, err
	}
	ansData, err := os.ReadFile(ansPath)
	if err != nil {
		return false, err
	}
	return bytes.Equal(outData, ansData), nil
}

// significantLines returns the file's lines with blank-after-trim lines
// removed. The kept lines are untrimmed.
func significantLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Lines are read without a length cap: program output is untrusted and
	// an overlong line must compare as wrong, not fail the comparator.
	var lines []string
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
