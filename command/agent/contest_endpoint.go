// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"strings"

	"github.com/arbiterhq/arbiter/judge/state"
	"github.com/arbiterhq/arbiter/judge/structs"
)

// ContestsRequest serves GET /contests (all explicit contests sorted by id)
// and POST /contests (create or replace).
func (s *HTTPServer) ContestsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		contests, err := s.agent.state.Contests()
		if err != nil {
			return nil, err
		}
		return contests, nil
	case http.MethodPost:
		var upsert structs.ContestUpsert
		if err := decodeBody(req, &upsert); err != nil {
			return nil, err
		}
		contest, err := s.agent.state.UpsertContest(&upsert)
		if err != nil {
			return nil, err
		}
		return contest, nil
	default:
		return nil, structs.NewMethodNotAllowed()
	}
}

// ContestSpecificRequest serves GET /contests/{id} and
// GET /contests/{id}/ranklist.
func (s *HTTPServer) ContestSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	if req.Method != http.MethodGet {
		return nil, structs.NewMethodNotAllowed()
	}
	path := strings.TrimPrefix(req.URL.Path, "/contests/")
	if idStr, ok := strings.CutSuffix(path, "/ranklist"); ok {
		return s.contestRanklist(req, idStr)
	}

	id, err := parseID(path)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		// The implicit contest has no retrievable definition.
		return nil, structs.NewInvalidArgument("Invalid contest id")
	}
	contest, err := s.agent.state.ContestByID(id)
	if err != nil {
		return nil, err
	}
	return contest, nil
}

func (s *HTTPServer) contestRanklist(req *http.Request, idStr string) (interface{}, error) {
	id, err := parseID(idStr)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	rule, err := state.ParseScoringRule(query.Get("scoring_rule"))
	if err != nil {
		return nil, err
	}
	tie, err := state.ParseTieBreaker(query.Get("tie_breaker"))
	if err != nil {
		return nil, err
	}
	ranklist, err := s.agent.state.Ranklist(id, rule, tie)
	if err != nil {
		return nil, err
	}
	return ranklist, nil
}
