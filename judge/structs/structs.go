// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package structs holds the data model shared by the state store, the job
// executor, and the HTTP agent: users, contests, rank records, submissions,
// and job records, together with their wire encodings.
package structs

// User is a registered participant. IDs are dense and monotone; id 0 is the
// predefined root user. Names are globally unique.
type User struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// UserUpsert is the body of POST /users. A nil ID creates a user; a non-nil
// ID renames the user with that id.
type UserUpsert struct {
	ID   *uint32 `json:"id,omitempty"`
	Name string  `json:"name"`
}

// RankInfo is the per-user scoring state inside one contest. The slices
// indexed by contest problem position all have length len(Contest.ProblemIDs).
type RankInfo struct {
	User User   `json:"user"`
	Rank uint32 `json:"rank"`

	// Scores is the per-problem score under the requested scoring rule,
	// including the competitive component. Recomputed on every ranklist
	// request.
	Scores []float32 `json:"scores"`

	HighestScores []float32 `json:"highest_scores"`
	LatestScores  []float32 `json:"latest_scores"`

	CompetitiveScoreSum float32 `json:"competitive_score_sum"`

	// ShortestTimes[k][j] is the user's best observed runtime in
	// microseconds on case j of the contest's k-th problem, MaxInt64
	// until first observed.
	ShortestTimes [][]int64 `json:"shortest_times"`

	// LatestSubmission advances only when a submission's score is not
	// lower than the highest score so far, so the submission_time tie
	// breaker ranks by "most recent best submission".
	LatestSubmission Timestamp `json:"latest_submission"`

	Score           uint32 `json:"score"`
	SubmissionCount uint32 `json:"submission_count"`
}

// Contest is a roster of users and problems with a submission window.
// Contest 0 is implicit: every problem, every user, no window, no limit.
type Contest struct {
	ID              uint32    `json:"id"`
	Name            string    `json:"name"`
	From            Timestamp `json:"from"`
	To              Timestamp `json:"to"`
	ProblemIDs      []uint32  `json:"problem_ids"`
	UserIDs         []uint32  `json:"user_ids"`
	SubmissionLimit uint32    `json:"submission_limit"`

	// Users holds one RankInfo per entry of UserIDs, in the same order.
	Users []*RankInfo `json:"users"`
}

// ContestUpsert is the body of POST /contests. A nil ID creates a contest;
// a non-nil ID replaces the contest with that id (id 0 is not updatable).
type ContestUpsert struct {
	ID              *uint32   `json:"id,omitempty"`
	Name            string    `json:"name"`
	From            Timestamp `json:"from"`
	To              Timestamp `json:"to"`
	ProblemIDs      []uint32  `json:"problem_ids"`
	UserIDs         []uint32  `json:"user_ids"`
	SubmissionLimit uint32    `json:"submission_limit"`
}

// Submission is the body of POST /jobs.
type Submission struct {
	SourceCode string `json:"source_code"`
	Language   string `json:"language"`
	UserID     uint32 `json:"user_id"`
	ContestID  uint32 `json:"contest_id"`
	ProblemID  uint32 `json:"problem_id"`
}

// CaseResult is the outcome of one test case. Case id 0 is reserved for the
// compile step. Time is the measured runtime in microseconds.
type CaseResult struct {
	ID     uint32  `json:"id"`
	Result Verdict `json:"result"`
	Info   string  `json:"info"`
	Time   int64   `json:"time"`
}

// JobStateFinished is the only job state: evaluation is synchronous.
const JobStateFinished = "Finished"

// JobRecord is a completed evaluation of a submission.
type JobRecord struct {
	ID          uint32       `json:"id"`
	CreatedTime Timestamp    `json:"created_time"`
	UpdatedTime Timestamp    `json:"updated_time"`
	Submission  Submission   `json:"submission"`
	State       string       `json:"state"`
	Result      Verdict      `json:"result"`
	Score       float32      `json:"score"`
	Cases       []CaseResult `json:"cases"`
}
