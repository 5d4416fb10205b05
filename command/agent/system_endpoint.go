// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/arbiterhq/arbiter/judge/structs"
)

// HelloRequest is the liveness probe.
func (s *HTTPServer) HelloRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, structs.NewMethodNotAllowed()
	}
	resp.Write([]byte("Hello World!"))
	return nil, nil
}

// HelloNameRequest greets the caller by the path segment.
func (s *HTTPServer) HelloNameRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, structs.NewMethodNotAllowed()
	}
	name := strings.TrimPrefix(req.URL.Path, "/hello/")
	if name == "" || strings.Contains(name, "/") {
		return nil, structs.NewNotFound("HTTP 404 Not Found")
	}
	s.logger.Info("greeting", "name", name)
	fmt.Fprintf(resp, "Hello %s!", name)
	return nil, nil
}

// ExitRequest terminates the process. Used by the test harness to cycle the
// service between persistence runs.
func (s *HTTPServer) ExitRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodPost {
		return nil, structs.NewMethodNotAllowed()
	}
	s.logger.Info("shutdown as requested")
	// Give the response a moment to flush before the process dies.
	time.AfterFunc(100*time.Millisecond, func() { os.Exit(0) })
	resp.Write([]byte("Exited"))
	return nil, nil
}
