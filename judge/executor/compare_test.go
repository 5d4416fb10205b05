// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCompareStandard(t *testing.T) {
	cases := []struct {
		name  string
		out   string
		ans   string
		match bool
	}{
		{"identical", "1 2\n3\n", "1 2\n3\n", true},
		{"missing trailing newline", "1 2\n3", "1 2\n3\n", true},
		{"blank lines ignored", "1 2\n\n\n3\n", "1 2\n3\n\n", true},
		{"whitespace-only lines ignored", "1 2\n \t\n3\n", "1 2\n3\n", true},
		{"crlf endings", "1 2\r\n3\r\n", "1 2\n3\n", true},
		{"interior spacing differs", "1  2\n3\n", "1 2\n3\n", false},
		{"different content", "1 2\n4\n", "1 2\n3\n", false},
		{"extra line", "1 2\n3\n4\n", "1 2\n3\n", false},
		{"both empty", "", "\n\n", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := writeTemp(t, "test.out", tc.out)
			ans := writeTemp(t, "answer.txt", tc.ans)
			got, err := compareStandard(out, ans)
			require.NoError(t, err)
			require.Equal(t, tc.match, got)
		})
	}
}

func TestCompareStandard_LongLines(t *testing.T) {
	// A single line well past any internal buffer size must still compare,
	// and a mismatch on such a line is a plain mismatch, not an error.
	long := strings.Repeat("a", 4*1024*1024)
	out := writeTemp(t, "test.out", long+"\n")

	match, err := compareStandard(out, writeTemp(t, "same.txt", long+"\n"))
	require.NoError(t, err)
	require.True(t, match)

	match, err = compareStandard(out, writeTemp(t, "diff.txt", long+"b\n"))
	require.NoError(t, err)
	require.False(t, match)
}

func TestCompareStandard_MissingAnswer(t *testing.T) {
	out := writeTemp(t, "test.out", "1\n")
	_, err := compareStandard(out, filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
}

func TestCompareStrict(t *testing.T) {
	cases := []struct {
		name  string
		out   string
		ans   string
		match bool
	}{
		{"identical", "1 2\n3\n", "1 2\n3\n", true},
		{"missing trailing newline", "1 2\n3", "1 2\n3\n", false},
		{"blank line differs", "1 2\n\n3\n", "1 2\n3\n", false},
		{"crlf differs", "1 2\r\n3\r\n", "1 2\n3\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := writeTemp(t, "test.out", tc.out)
			ans := writeTemp(t, "answer.txt", tc.ans)
			got, err := compareStrict(out, ans)
			require.NoError(t, err)
			require.Equal(t, tc.match, got)
		})
	}
}
