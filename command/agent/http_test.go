// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/shoenig/test/must"

	"github.com/arbiterhq/arbiter/helper/testlog"
	"github.com/arbiterhq/arbiter/judge/structs"
)

const testEchoScript = "#!/bin/sh\ncat\n"

// testServer starts a full agent on an ephemeral port and returns its base
// URL. Submissions are shell scripts: the "compiler" copies them into place.
func testServer(t *testing.T, problems []structs.Problem) string {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	config := &Config{
		Server:   ServerConfig{BindAddress: "127.0.0.1", BindPort: 0},
		Problems: problems,
		Languages: []structs.Language{{
			Name:     "shell",
			FileName: "main.sh",
			Command:  []string{"/bin/sh", "-c", "cp %INPUT% %OUTPUT% && chmod +x %OUTPUT%"},
		}},
	}
	a, err := NewAgent(config, Options{}, testlog.HCLogger(t))
	must.NoError(t, err)
	t.Cleanup(func() { a.Shutdown() })

	srv, err := NewHTTPServer(a, config)
	must.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	return "http://" + srv.Addr()
}

func testProblem(t *testing.T, id uint32) structs.Problem {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "input.txt")
	ans := filepath.Join(dir, "answer.txt")
	must.NoError(t, os.WriteFile(in, []byte("alpha\n"), 0o644))
	must.NoError(t, os.WriteFile(ans, []byte("alpha\n"), 0o644))
	return structs.Problem{
		ID:    id,
		Name:  "echo",
		Type:  structs.ProblemStandard,
		Cases: []structs.Case{{Score: 100, InputFile: in, AnswerFile: ans}},
	}
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	must.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	must.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	must.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func decodeError(t *testing.T, resp *http.Response) *structs.APIError {
	t.Helper()
	var apiErr structs.APIError
	decodeJSON(t, resp, &apiErr)
	return &apiErr
}

func TestHTTP_Hello(t *testing.T) {
	base := testServer(t, []structs.Problem{testProblem(t, 0)})

	resp, err := http.Get(base + "/hello")
	must.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	must.NoError(t, err)
	must.Eq(t, "Hello World!", string(body))

	resp, err = http.Get(base + "/hello/judge")
	must.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	must.NoError(t, err)
	must.Eq(t, "Hello judge!", string(body))

	// Wrong method.
	resp = postJSON(t, base+"/hello", nil)
	must.Eq(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_Users(t *testing.T) {
	base := testServer(t, []structs.Problem{testProblem(t, 0)})

	resp := postJSON(t, base+"/users", structs.UserUpsert{Name: "alice"})
	must.Eq(t, http.StatusOK, resp.StatusCode)
	var user structs.User
	decodeJSON(t, resp, &user)
	must.Eq(t, structs.User{ID: 1, Name: "alice"}, user)

	// Duplicate name.
	resp = postJSON(t, base+"/users", structs.UserUpsert{Name: "alice"})
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
	apiErr := decodeError(t, resp)
	must.Eq(t, uint32(1), apiErr.Code)
	must.Eq(t, structs.ReasonInvalidArgument, apiErr.Reason)
	must.Eq(t, "User name 'alice' already exists.", apiErr.Message)

	resp, err := http.Get(base + "/users")
	must.NoError(t, err)
	var users []structs.User
	decodeJSON(t, resp, &users)
	must.Eq(t, []structs.User{{ID: 0, Name: "root"}, {ID: 1, Name: "alice"}}, users)

	// Malformed body.
	resp, err = http.Post(base+"/users", "application/json", bytes.NewReader([]byte("{")))
	must.NoError(t, err)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_Contests(t *testing.T) {
	base := testServer(t, []structs.Problem{testProblem(t, 0)})

	resp := postJSON(t, base+"/contests", structs.ContestUpsert{
		Name:       "weekly",
		From:       structs.Timestamp{Time: time.Now().UTC().Add(-time.Hour)},
		To:         structs.Timestamp{Time: time.Now().UTC().Add(time.Hour)},
		ProblemIDs: []uint32{0},
		UserIDs:    []uint32{0},
	})
	must.Eq(t, http.StatusOK, resp.StatusCode)
	var contest structs.Contest
	decodeJSON(t, resp, &contest)
	must.Eq(t, uint32(1), contest.ID)

	resp, err := http.Get(base + "/contests")
	must.NoError(t, err)
	var contests []*structs.Contest
	decodeJSON(t, resp, &contests)
	must.Len(t, 1, contests)

	resp, err = http.Get(base + "/contests/1")
	must.NoError(t, err)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &contest)
	must.Eq(t, "weekly", contest.Name)

	// The implicit contest cannot be fetched by id.
	resp, err = http.Get(base + "/contests/0")
	must.NoError(t, err)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
	must.Eq(t, "Invalid contest id", decodeError(t, resp).Message)

	resp, err = http.Get(base + "/contests/99")
	must.NoError(t, err)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
	must.Eq(t, "Contest 99 not found.", decodeError(t, resp).Message)

	resp, err = http.Get(base + "/contests/weekly")
	must.NoError(t, err)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// The ranklist endpoint works for contest 0 as well.
	resp, err = http.Get(base + "/contests/0/ranklist")
	must.NoError(t, err)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	var rank []*structs.RankInfo
	decodeJSON(t, resp, &rank)
	must.Len(t, 1, rank)
	must.Eq(t, uint32(1), rank[0].Rank)

	resp, err = http.Get(base + "/contests/1/ranklist?scoring_rule=banana")
	must.NoError(t, err)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
	must.Eq(t, "Invalid argument", decodeError(t, resp).Message)
}

func TestHTTP_Jobs(t *testing.T) {
	base := testServer(t, []structs.Problem{testProblem(t, 0)})

	sub := structs.Submission{
		SourceCode: testEchoScript,
		Language:   "shell",
		UserID:     0,
		ContestID:  0,
		ProblemID:  0,
	}
	resp := postJSON(t, base+"/jobs", sub)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	var job structs.JobRecord
	decodeJSON(t, resp, &job)
	must.Eq(t, uint32(0), job.ID)
	must.Eq(t, structs.JobStateFinished, job.State)
	must.Eq(t, structs.VerdictAccepted, job.Result)
	must.Eq(t, float32(100), job.Score)
	must.Len(t, 2, job.Cases)

	// Unknown user gates before evaluation.
	bad := sub
	bad.UserID = 9
	resp = postJSON(t, base+"/jobs", bad)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
	must.Eq(t, "HTTP 404 Not Found", decodeError(t, resp).Message)

	// Unknown language is a 404 from the evaluator.
	bad = sub
	bad.Language = "cobol"
	resp = postJSON(t, base+"/jobs", bad)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
	must.Eq(t, "Language cobol not found.", decodeError(t, resp).Message)

	var jobs []*structs.JobRecord
	get := func(query string) []*structs.JobRecord {
		t.Helper()
		resp, err := http.Get(base + "/jobs" + query)
		must.NoError(t, err)
		must.Eq(t, http.StatusOK, resp.StatusCode)
		jobs = nil
		decodeJSON(t, resp, &jobs)
		return jobs
	}

	must.Len(t, 1, get(""))
	must.Len(t, 1, get("?user_id=0&problem_id=0&language=shell"))
	must.Len(t, 1, get("?user_name=root&result=Accepted"))
	must.Len(t, 0, get("?language=rust"))
	must.Len(t, 0, get("?user_name=ghost"))
	must.Len(t, 0, get(fmt.Sprintf("?to=%s", "2000-01-01T00:00:00Z")))

	// Bad filter values are rejected.
	resp, err := http.Get(base + "/jobs?result=Perfect")
	must.NoError(t, err)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	resp, err = http.Get(base + "/jobs?user_id=banana")
	must.NoError(t, err)
	must.Eq(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Single job fetch.
	resp, err = http.Get(base + "/jobs/0")
	must.NoError(t, err)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &job)
	must.Eq(t, uint32(0), job.ID)

	resp, err = http.Get(base + "/jobs/9")
	must.NoError(t, err)
	must.Eq(t, http.StatusNotFound, resp.StatusCode)
	must.Eq(t, "Job 9 not found.", decodeError(t, resp).Message)

	// Re-evaluation keeps the id and does not add a record.
	putReq, err := http.NewRequest(http.MethodPut, base+"/jobs/0", nil)
	must.NoError(t, err)
	resp, err = http.DefaultClient.Do(putReq)
	must.NoError(t, err)
	must.Eq(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &job)
	must.Eq(t, uint32(0), job.ID)
	must.Eq(t, structs.VerdictAccepted, job.Result)
	must.Len(t, 1, get(""))
}
