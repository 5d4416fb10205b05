// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"

	"github.com/arbiterhq/arbiter/judge/structs"
)

// UsersRequest serves GET /users (the roster sorted by id) and POST /users
// (create or rename).
func (s *HTTPServer) UsersRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		users, err := s.agent.state.Users()
		if err != nil {
			return nil, err
		}
		return users, nil
	case http.MethodPost:
		var upsert structs.UserUpsert
		if err := decodeBody(req, &upsert); err != nil {
			return nil, err
		}
		user, err := s.agent.state.UpsertUser(&upsert)
		if err != nil {
			return nil, err
		}
		return user, nil
	default:
		return nil, structs.NewMethodNotAllowed()
	}
}
