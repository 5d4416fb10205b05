// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package testlog creates a *log.Logger backed by testing.T to ease logging
// in tests.
package testlog

import (
	"log"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// LogPrinter is the methods of testing.T (or testing.B) needed by the test
// logger.
type LogPrinter interface {
	Logf(format string, args ...interface{})
}

// writer implements io.Writer on top of a LogPrinter.
type writer struct {
	t LogPrinter
}

// Write to an underlying LogPrinter. Never returns an error.
func (w *writer) Write(p []byte) (n int, err error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// New returns a new test logger. See https://golang.org/pkg/log/#New
func New(t LogPrinter, prefix string, flag int) *log.Logger {
	return log.New(&writer{t}, prefix, flag)
}

// HCLogger returns an hclog.Logger that writes through t.Logf, at trace
// level so tests capture everything. Set ARBITER_TEST_STDERR=1 to divert the
// output to stderr when a test deadlocks and buffered logs would be lost.
func HCLogger(t LogPrinter) hclog.Logger {
	opts := &hclog.LoggerOptions{
		Level:           hclog.Trace,
		Output:          &writer{t},
		IncludeLocation: true,
	}
	if os.Getenv("ARBITER_TEST_STDERR") == "1" {
		opts.Output = os.Stderr
	}
	return hclog.New(opts)
}
