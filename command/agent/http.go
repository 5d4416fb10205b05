// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/rs/cors"

	"github.com/arbiterhq/arbiter/judge/structs"
)

// HTTPServer serves the judge API over plain HTTP.
type HTTPServer struct {
	agent      *Agent
	mux        *http.ServeMux
	listener   net.Listener
	listenerCh chan struct{}
	logger     hclog.Logger
}

// NewHTTPServer binds the configured address and starts serving in the
// background.
func NewHTTPServer(agent *Agent, config *Config) (*HTTPServer, error) {
	addr := net.JoinHostPort(config.Server.BindAddress,
		strconv.Itoa(int(config.Server.BindPort)))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &HTTPServer{
		agent:      agent,
		mux:        http.NewServeMux(),
		listener:   ln,
		listenerCh: make(chan struct{}),
		logger:     agent.logger.Named("http"),
	}
	srv.registerHandlers()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: wrapCORS(srv.mux),
	}
	go func() {
		defer close(srv.listenerCh)
		httpServer.Serve(ln)
	}()

	srv.logger.Info("http server started", "address", ln.Addr().String())
	return srv, nil
}

// Shutdown closes the listener and waits for the serve loop to exit.
func (s *HTTPServer) Shutdown() {
	if s != nil {
		s.logger.Debug("shutting down http server")
		s.listener.Close()
		<-s.listenerCh
	}
}

// Addr is the bound listener address, useful when the port was 0.
func (s *HTTPServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *HTTPServer) registerHandlers() {
	s.mux.HandleFunc("/hello", s.wrap(s.HelloRequest))
	s.mux.HandleFunc("/hello/", s.wrap(s.HelloNameRequest))
	s.mux.HandleFunc("/internal/exit", s.wrap(s.ExitRequest))

	s.mux.HandleFunc("/users", s.wrap(s.UsersRequest))
	s.mux.HandleFunc("/contests", s.wrap(s.ContestsRequest))
	s.mux.HandleFunc("/contests/", s.wrap(s.ContestSpecificRequest))
	s.mux.HandleFunc("/jobs", s.wrap(s.JobsRequest))
	s.mux.HandleFunc("/jobs/", s.wrap(s.JobSpecificRequest))
}

// wrapCORS adds CORS headers to the API.
func wrapCORS(handler http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"HEAD", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"*"},
	}).Handler(handler)
}

// wrap adapts an endpoint returning (object, error) into an http.HandlerFunc:
// the object is encoded as the JSON response body, errors become the uniform
// {code, reason, message} error body. A nil object with a nil error means the
// endpoint wrote the response itself.
func (s *HTTPServer) wrap(handler func(resp http.ResponseWriter, req *http.Request) (interface{}, error)) func(resp http.ResponseWriter, req *http.Request) {
	return func(resp http.ResponseWriter, req *http.Request) {
		start := time.Now()
		defer func() {
			s.logger.Debug("request complete", "method", req.Method,
				"path", req.URL.Path, "duration", time.Since(start))
		}()

		obj, err := handler(resp, req)
		if err != nil {
			s.writeError(resp, req, err)
			return
		}
		if obj == nil {
			return
		}
		buf, err := json.Marshal(obj)
		if err != nil {
			s.writeError(resp, req, err)
			return
		}
		resp.Header().Set("Content-Type", "application/json")
		resp.Write(buf)
	}
}

func (s *HTTPServer) writeError(resp http.ResponseWriter, req *http.Request, err error) {
	apiErr, ok := err.(*structs.APIError)
	if !ok {
		apiErr = structs.NewInternal(err.Error())
	}
	s.logger.Error("request failed", "method", req.Method, "path", req.URL.Path,
		"code", apiErr.Code, "error", apiErr.Message)

	buf, merr := json.Marshal(apiErr)
	if merr != nil {
		http.Error(resp, apiErr.Message, apiErr.HTTPStatus())
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(apiErr.HTTPStatus())
	resp.Write(buf)
}

// decodeBody parses the request body as JSON into out.
func decodeBody(req *http.Request, out interface{}) error {
	if req.Body == nil {
		return structs.NewInvalidArgument("Invalid argument")
	}
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		return structs.NewInvalidArgument("Invalid argument")
	}
	return nil
}

// parseID parses the numeric id segment of a path. Anything that is not a
// u32 cannot name a resource.
func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, structs.NewNotFound("HTTP 404 Not Found")
	}
	return uint32(v), nil
}
