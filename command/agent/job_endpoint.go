// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/arbiterhq/arbiter/judge/structs"
)

// JobsRequest serves POST /jobs (submit and evaluate synchronously) and
// GET /jobs (list with filters).
func (s *HTTPServer) JobsRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	switch req.Method {
	case http.MethodGet:
		return s.jobList(req)
	case http.MethodPost:
		var sub structs.Submission
		if err := decodeBody(req, &sub); err != nil {
			return nil, err
		}
		if err := s.agent.state.GateSubmission(&sub); err != nil {
			return nil, err
		}
		rec, err := s.agent.executor.Execute(&sub, false)
		if err != nil {
			return nil, err
		}
		s.logger.Info("job finished", "job_id", rec.ID, "result", rec.Result.String())
		return rec, nil
	default:
		return nil, structs.NewMethodNotAllowed()
	}
}

// jobFilter is the parsed query of GET /jobs. Nil fields are absent; all
// present fields must match, with the from/to window inclusive on both ends.
type jobFilter struct {
	userID    *uint32
	contestID *uint32
	problemID *uint32
	language  *string
	from      *structs.Timestamp
	to        *structs.Timestamp
	state     *string
	result    *structs.Verdict

	// noMatch short-circuits the scan, set when user_name names nobody.
	noMatch bool
}

func (f *jobFilter) matches(job *structs.JobRecord) bool {
	sub := &job.Submission
	switch {
	case f.userID != nil && sub.UserID != *f.userID,
		f.contestID != nil && sub.ContestID != *f.contestID,
		f.problemID != nil && sub.ProblemID != *f.problemID,
		f.language != nil && sub.Language != *f.language,
		f.from != nil && job.CreatedTime.Before(f.from.Time),
		f.to != nil && job.CreatedTime.After(f.to.Time),
		f.state != nil && job.State != *f.state,
		f.result != nil && job.Result != *f.result:
		return false
	}
	return true
}

func (s *HTTPServer) jobList(req *http.Request) (interface{}, error) {
	filter, err := s.parseJobFilter(req.URL.Query())
	if err != nil {
		return nil, err
	}

	out := []*structs.JobRecord{}
	if filter.noMatch {
		return out, nil
	}

	jobs, err := s.agent.state.Jobs()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if filter.matches(job) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *HTTPServer) parseJobFilter(query url.Values) (*jobFilter, error) {
	filter := &jobFilter{}
	var err error

	if filter.userID, err = queryU32(query, "user_id"); err != nil {
		return nil, err
	}
	if filter.contestID, err = queryU32(query, "contest_id"); err != nil {
		return nil, err
	}
	if filter.problemID, err = queryU32(query, "problem_id"); err != nil {
		return nil, err
	}
	if v := query.Get("language"); v != "" {
		filter.language = &v
	}
	if filter.from, err = queryTime(query, "from"); err != nil {
		return nil, err
	}
	if filter.to, err = queryTime(query, "to"); err != nil {
		return nil, err
	}
	if v := query.Get("state"); v != "" {
		filter.state = &v
	}
	if v := query.Get("result"); v != "" {
		verdict, ok := structs.ParseVerdict(v)
		if !ok {
			return nil, structs.NewInvalidArgument("Invalid argument")
		}
		filter.result = &verdict
	}

	// user_name resolves to a user id filter; an unknown name matches no
	// jobs rather than erroring.
	if name := query.Get("user_name"); name != "" {
		id, ok, err := s.agent.state.UserIDByName(name)
		switch {
		case err != nil:
			return nil, err
		case !ok, filter.userID != nil && *filter.userID != id:
			filter.noMatch = true
		default:
			filter.userID = &id
		}
	}
	return filter, nil
}

func queryU32(query url.Values, key string) (*uint32, error) {
	v := query.Get(key)
	if v == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, structs.NewInvalidArgument("Invalid argument")
	}
	u := uint32(parsed)
	return &u, nil
}

func queryTime(query url.Values, key string) (*structs.Timestamp, error) {
	v := query.Get(key)
	if v == "" {
		return nil, nil
	}
	ts, err := structs.ParseTimestamp(v)
	if err != nil {
		return nil, structs.NewInvalidArgument("Invalid argument")
	}
	return &ts, nil
}

// JobSpecificRequest serves GET /jobs/{id} and PUT /jobs/{id}. PUT
// re-evaluates the stored submission and replaces the record under the same
// id.
func (s *HTTPServer) JobSpecificRequest(resp http.ResponseWriter, req *http.Request) (interface{}, error) {
	idStr := strings.TrimPrefix(req.URL.Path, "/jobs/")
	id, err := parseID(idStr)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case http.MethodGet:
		job, err := s.agent.state.JobByID(id)
		if err != nil {
			return nil, err
		}
		return job, nil
	case http.MethodPut:
		job, err := s.agent.state.JobByID(id)
		if err != nil {
			return nil, err
		}
		sub := job.Submission
		rec, err := s.agent.executor.Execute(&sub, true)
		if err != nil {
			return nil, err
		}
		rec.ID = id
		if err := s.agent.state.ReplaceJob(rec); err != nil {
			return nil, err
		}
		s.logger.Info("job re-evaluated", "job_id", id, "result", rec.Result.String())
		return rec, nil
	default:
		return nil, structs.NewMethodNotAllowed()
	}
}
