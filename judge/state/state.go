// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package state owns the shared registries of the judge: users, contests,
// jobs, their monotone id counters, and the global case-time table. Each
// registry is guarded by its own mutex; the fixed acquisition order is
// users -> contests -> jobs -> case-times. When persistence is enabled every
// read reloads the backing table and every mutation writes it back before
// returning, so the in-memory state is always a cached reflection of the
// store.
package state

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"
	"github.com/mitchellh/copystructure"

	"github.com/arbiterhq/arbiter/judge/structs"
)

func init() {
	// Timestamp wraps time.Time whose fields are unexported; it is a value
	// type, so a shallow copy is a deep copy.
	copystructure.Copiers[reflect.TypeOf(structs.Timestamp{})] = func(v interface{}) (interface{}, error) {
		return v, nil
	}
}

// RootUserName is the name of the predefined user with id 0.
const RootUserName = "root"

// unsuccessfulRetrieve is the message surfaced when the durable store cannot
// be read or written; such failures are fatal to the request.
const unsuccessfulRetrieve = "unsuccessful retrieve"

// Config parameterizes a StateStore.
type Config struct {
	Logger hclog.Logger

	// DB is the persistence backend; use NewNoopPersister to disable
	// persistence.
	DB Persister

	// Problems is the immutable problem registry from the configuration.
	Problems []structs.Problem

	// ResetStorage clears the durable tables and seeds them with the
	// default records.
	ResetStorage bool
}

// StateStore is the process-wide mutable world state shared by all request
// handlers.
type StateStore struct {
	logger   hclog.Logger
	db       Persister
	problems []structs.Problem

	// problemIdx maps a problem id to its position in config order, which
	// is also its row in the case-time table.
	problemIdx map[uint32]int

	userMu     sync.Mutex
	users      []structs.User
	nextUserID uint32

	contestMu     sync.Mutex
	contests      []*structs.Contest
	nextContestID uint32

	jobMu     sync.Mutex
	jobs      []*structs.JobRecord
	nextJobID uint32

	// caseTimes[i][j] is the best observed runtime in microseconds on
	// case j of the i-th configured problem, MaxInt64 until observed.
	// Rebuilt from config on startup; never persisted.
	caseTimeMu sync.Mutex
	caseTimes  [][]int64
}

// New builds the store, seeds the default records (root user, contest 0),
// and when persistence is enabled either resets the tables or loads the
// existing ones.
func New(cfg *Config) (*StateStore, error) {
	s := &StateStore{
		logger:     cfg.Logger.Named("state"),
		db:         cfg.DB,
		problems:   cfg.Problems,
		problemIdx: make(map[uint32]int, len(cfg.Problems)),
	}
	for i, p := range cfg.Problems {
		s.problemIdx[p.ID] = i
		times := make([]int64, len(p.Cases))
		for j := range times {
			times[j] = math.MaxInt64
		}
		s.caseTimes = append(s.caseTimes, times)
	}

	s.seed()

	if !s.db.Enabled() {
		return s, nil
	}
	if cfg.ResetStorage {
		if err := s.db.Reset(); err != nil {
			return nil, fmt.Errorf("failed to reset storage: %w", err)
		}
		if err := s.persistAll(); err != nil {
			return nil, fmt.Errorf("failed to seed storage: %w", err)
		}
		return s, nil
	}

	// A store that has never been written gets the seed records; an
	// existing one replaces the in-memory seeds wholesale.
	if _, err := s.db.LoadUserCount(); err == ErrNotInitialized {
		if err := s.persistAll(); err != nil {
			return nil, fmt.Errorf("failed to seed storage: %w", err)
		}
		return s, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to probe storage: %w", err)
	}
	if err := s.loadAll(); err != nil {
		return nil, fmt.Errorf("failed to load storage: %w", err)
	}
	return s, nil
}

// seed installs the in-memory defaults: the root user and contest 0 holding
// every configured problem.
func (s *StateStore) seed() {
	root := structs.User{ID: 0, Name: RootUserName}
	s.users = []structs.User{root}
	s.nextUserID = 1

	problemIDs := make([]uint32, 0, len(s.problems))
	for _, p := range s.problems {
		problemIDs = append(problemIDs, p.ID)
	}
	contest0 := &structs.Contest{
		ID:         0,
		Name:       RootUserName,
		From:       structs.MaxTime,
		To:         structs.MinTime,
		ProblemIDs: problemIDs,
		UserIDs:    []uint32{0},
		Users:      []*structs.RankInfo{s.newRankInfo(root, problemIDs)},
	}
	s.contests = []*structs.Contest{contest0}
	s.nextContestID = 1

	s.jobs = []*structs.JobRecord{}
	s.nextJobID = 0
}

func (s *StateStore) persistAll() error {
	if err := s.db.SaveUsers(s.users); err != nil {
		return err
	}
	if err := s.db.SaveUserCount(s.nextUserID); err != nil {
		return err
	}
	if err := s.db.SaveContests(s.contests); err != nil {
		return err
	}
	if err := s.db.SaveContestCount(s.nextContestID); err != nil {
		return err
	}
	if err := s.db.SaveJobs(s.jobs); err != nil {
		return err
	}
	return s.db.SaveJobCount(s.nextJobID)
}

func (s *StateStore) loadAll() error {
	if err := s.reloadUsersLocked(); err != nil {
		return err
	}
	if err := s.reloadContestsLocked(); err != nil {
		return err
	}
	return s.reloadJobsLocked()
}

// newRankInfo builds the zeroed scoring state of one user for a contest with
// the given problem list. ShortestTimes rows are dimensioned from each
// problem's case count.
func (s *StateStore) newRankInfo(user structs.User, problemIDs []uint32) *structs.RankInfo {
	shortest := make([][]int64, len(problemIDs))
	for k, pid := range problemIDs {
		n := 0
		if idx, ok := s.problemIdx[pid]; ok {
			n = len(s.problems[idx].Cases)
		}
		row := make([]int64, n)
		for j := range row {
			row[j] = math.MaxInt64
		}
		shortest[k] = row
	}
	return &structs.RankInfo{
		User:             user,
		Scores:           make([]float32, len(problemIDs)),
		HighestScores:    make([]float32, len(problemIDs)),
		LatestScores:     make([]float32, len(problemIDs)),
		ShortestTimes:    shortest,
		LatestSubmission: structs.MaxTime,
	}
}

// internalError wraps a storage failure into the 500-class API error all
// handlers surface for it.
func (s *StateStore) internalError(op string, err error) error {
	s.logger.Error("storage operation failed", "op", op, "error", err)
	return structs.NewInternal(unsuccessfulRetrieve)
}

func (s *StateStore) reloadUsersLocked() error {
	if !s.db.Enabled() {
		return nil
	}
	users, err := s.db.LoadUsers()
	if err != nil {
		return s.internalError("load users", err)
	}
	count, err := s.db.LoadUserCount()
	if err != nil {
		return s.internalError("load user count", err)
	}
	s.users, s.nextUserID = users, count
	return nil
}

func (s *StateStore) reloadContestsLocked() error {
	if !s.db.Enabled() {
		return nil
	}
	contests, err := s.db.LoadContests()
	if err != nil {
		return s.internalError("load contests", err)
	}
	count, err := s.db.LoadContestCount()
	if err != nil {
		return s.internalError("load contest count", err)
	}
	s.contests, s.nextContestID = contests, count
	return nil
}

func (s *StateStore) reloadJobsLocked() error {
	if !s.db.Enabled() {
		return nil
	}
	jobs, err := s.db.LoadJobs()
	if err != nil {
		return s.internalError("load jobs", err)
	}
	count, err := s.db.LoadJobCount()
	if err != nil {
		return s.internalError("load job count", err)
	}
	s.jobs, s.nextJobID = jobs, count
	return nil
}

// deepCopy clones a registry record so callers never alias locked state.
func deepCopy[T any](v T) T {
	copied, err := copystructure.Copy(v)
	if err != nil {
		// Registry records are plain data; a copy failure is a
		// programming error.
		panic(fmt.Sprintf("state: failed to copy %T: %v", v, err))
	}
	return copied.(T)
}

// Problems returns the immutable problem registry in config order.
func (s *StateStore) Problems() []structs.Problem { return s.problems }

// ProblemIndex resolves a problem id to its position in config order.
func (s *StateStore) ProblemIndex(problemID uint32) (int, bool) {
	idx, ok := s.problemIdx[problemID]
	return idx, ok
}

// ---- users ----

// Users returns a snapshot of the user registry.
func (s *StateStore) Users() ([]structs.User, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if err := s.reloadUsersLocked(); err != nil {
		return nil, err
	}
	out := make([]structs.User, len(s.users))
	copy(out, s.users)
	return out, nil
}

// UpsertUser creates a user (nil id) or renames an existing one. A created
// user is also enrolled into contest 0.
func (s *StateStore) UpsertUser(req *structs.UserUpsert) (*structs.User, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if err := s.reloadUsersLocked(); err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if u.Name == req.Name {
			return nil, structs.NewInvalidArgument(fmt.Sprintf("User name '%s' already exists.", req.Name))
		}
	}

	if req.ID != nil {
		for i := range s.users {
			if s.users[i].ID == *req.ID {
				s.users[i].Name = req.Name
				if err := s.db.SaveUsers(s.users); err != nil {
					return nil, s.internalError("save users", err)
				}
				out := s.users[i]
				return &out, nil
			}
		}
		return nil, structs.NewNotFound(fmt.Sprintf("User %d not found.", *req.ID))
	}

	user := structs.User{ID: s.nextUserID, Name: req.Name}
	s.users = append(s.users, user)
	s.nextUserID++

	// Contest 0 tracks every user; its roster grows in lockstep.
	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return nil, err
	}
	contest0 := s.contests[0]
	contest0.UserIDs = append(contest0.UserIDs, user.ID)
	contest0.Users = append(contest0.Users, s.newRankInfo(user, contest0.ProblemIDs))

	if err := s.db.SaveUsers(s.users); err != nil {
		return nil, s.internalError("save users", err)
	}
	if err := s.db.SaveUserCount(s.nextUserID); err != nil {
		return nil, s.internalError("save user count", err)
	}
	if err := s.db.SaveContests(s.contests); err != nil {
		return nil, s.internalError("save contests", err)
	}
	return &user, nil
}

func (s *StateStore) userByIDLocked(id uint32) (structs.User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return structs.User{}, false
}

// UserIDByName resolves a user name; used by the job list filter.
func (s *StateStore) UserIDByName(name string) (uint32, bool, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if err := s.reloadUsersLocked(); err != nil {
		return 0, false, err
	}
	for _, u := range s.users {
		if u.Name == name {
			return u.ID, true, nil
		}
	}
	return 0, false, nil
}

// ---- contests ----

func (s *StateStore) contestByIDLocked(id uint32) *structs.Contest {
	for _, c := range s.contests {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Contests returns snapshots of every contest except contest 0, in id order.
func (s *StateStore) Contests() ([]*structs.Contest, error) {
	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return nil, err
	}
	out := make([]*structs.Contest, 0, len(s.contests))
	for _, c := range s.contests {
		if c.ID == 0 {
			continue
		}
		out = append(out, deepCopy(c))
	}
	return out, nil
}

// ContestByID returns a snapshot of one contest, including contest 0.
func (s *StateStore) ContestByID(id uint32) (*structs.Contest, error) {
	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return nil, err
	}
	c := s.contestByIDLocked(id)
	if c == nil {
		return nil, structs.NewNotFound(fmt.Sprintf("Contest %d not found.", id))
	}
	return deepCopy(c), nil
}

// UpsertContest creates a contest (nil id) or replaces an existing one.
// Validation order: unknown user id, unknown problem id, duplicated ids.
// On replacement, users present in both the old and the new roster keep
// their scoring state as long as the problem list is unchanged.
func (s *StateStore) UpsertContest(req *structs.ContestUpsert) (*structs.Contest, error) {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	if err := s.reloadUsersLocked(); err != nil {
		return nil, err
	}
	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return nil, err
	}

	for _, id := range req.UserIDs {
		if id >= s.nextUserID {
			return nil, structs.NewNotFound("Problem or user not found")
		}
	}
	for _, id := range req.ProblemIDs {
		if id >= uint32(len(s.problems)) {
			return nil, structs.NewNotFound("Problem or user not found")
		}
	}
	if set.From(req.ProblemIDs).Size() != len(req.ProblemIDs) ||
		set.From(req.UserIDs).Size() != len(req.UserIDs) {
		return nil, structs.NewInvalidArgument("Invalid argument")
	}

	if req.ID != nil {
		if *req.ID == 0 {
			return nil, structs.NewInvalidArgument("Invalid contest id")
		}
		old := s.contestByIDLocked(*req.ID)
		if old == nil {
			return nil, structs.NewNotFound(fmt.Sprintf("Contest %d not found.", *req.ID))
		}

		// Scoring state survives the update for retained users when the
		// problem list is identical; otherwise the vectors no longer
		// line up and are rebuilt.
		retained := map[uint32]*structs.RankInfo{}
		if slices.Equal(old.ProblemIDs, req.ProblemIDs) {
			for _, ri := range old.Users {
				retained[ri.User.ID] = ri
			}
		}

		old.Name = req.Name
		old.From = req.From
		old.To = req.To
		old.ProblemIDs = slices.Clone(req.ProblemIDs)
		old.UserIDs = slices.Clone(req.UserIDs)
		old.SubmissionLimit = req.SubmissionLimit
		old.Users = old.Users[:0]
		for _, uid := range old.UserIDs {
			if ri, ok := retained[uid]; ok {
				old.Users = append(old.Users, ri)
				continue
			}
			user, _ := s.userByIDLocked(uid)
			old.Users = append(old.Users, s.newRankInfo(user, old.ProblemIDs))
		}

		if err := s.db.SaveContests(s.contests); err != nil {
			return nil, s.internalError("save contests", err)
		}
		return deepCopy(old), nil
	}

	contest := &structs.Contest{
		ID:              s.nextContestID,
		Name:            req.Name,
		From:            req.From,
		To:              req.To,
		ProblemIDs:      slices.Clone(req.ProblemIDs),
		UserIDs:         slices.Clone(req.UserIDs),
		SubmissionLimit: req.SubmissionLimit,
	}
	for _, uid := range contest.UserIDs {
		user, _ := s.userByIDLocked(uid)
		contest.Users = append(contest.Users, s.newRankInfo(user, contest.ProblemIDs))
	}
	s.contests = append(s.contests, contest)
	s.nextContestID++

	if err := s.db.SaveContests(s.contests); err != nil {
		return nil, s.internalError("save contests", err)
	}
	if err := s.db.SaveContestCount(s.nextContestID); err != nil {
		return nil, s.internalError("save contest count", err)
	}
	return deepCopy(contest), nil
}

// ---- submission gates ----

// GateSubmission runs the validity gates of POST /jobs, in order: the user
// must exist; for a real contest the user and problem must be enrolled and
// the clock inside the window; then the per-user submission limit.
func (s *StateStore) GateSubmission(sub *structs.Submission) error {
	s.userMu.Lock()
	if err := s.reloadUsersLocked(); err != nil {
		s.userMu.Unlock()
		return err
	}
	_, ok := s.userByIDLocked(sub.UserID)
	s.userMu.Unlock()
	if !ok {
		return structs.NewNotFound("HTTP 404 Not Found")
	}

	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return err
	}
	contest := s.contestByIDLocked(sub.ContestID)
	if contest == nil {
		return structs.NewNotFound(fmt.Sprintf("Contest %d not found.", sub.ContestID))
	}
	if sub.ContestID == 0 {
		return nil
	}

	now := structs.Now()
	if !slices.Contains(contest.UserIDs, sub.UserID) ||
		!slices.Contains(contest.ProblemIDs, sub.ProblemID) ||
		now.Before(contest.From.Time) || now.After(contest.To.Time) {
		return structs.NewInvalidArgument("HTTP 400 Bad Request")
	}

	if contest.SubmissionLimit > 0 {
		limited := true
		for _, ri := range contest.Users {
			if ri.User.ID == sub.UserID {
				limited = ri.SubmissionCount >= contest.SubmissionLimit
				break
			}
		}
		if limited {
			return structs.NewRateLimit("HTTP 400 Bad Request")
		}
	}
	return nil
}

// ---- jobs ----

// Jobs returns a snapshot of every job record in id order.
func (s *StateStore) Jobs() ([]*structs.JobRecord, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if err := s.reloadJobsLocked(); err != nil {
		return nil, err
	}
	out := make([]*structs.JobRecord, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, deepCopy(j))
	}
	return out, nil
}

// JobByID returns a snapshot of one job record.
func (s *StateStore) JobByID(id uint32) (*structs.JobRecord, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if err := s.reloadJobsLocked(); err != nil {
		return nil, err
	}
	for _, j := range s.jobs {
		if j.ID == id {
			return deepCopy(j), nil
		}
	}
	return nil, structs.NewNotFound(fmt.Sprintf("Job %d not found.", id))
}

// AppendJob assigns the next job id to rec, appends it, and advances the
// counter atomically with the insertion.
func (s *StateStore) AppendJob(rec *structs.JobRecord) (uint32, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if err := s.reloadJobsLocked(); err != nil {
		return 0, err
	}
	rec.ID = s.nextJobID
	s.jobs = append(s.jobs, rec)
	s.nextJobID++
	if err := s.db.SaveJobs(s.jobs); err != nil {
		return 0, s.internalError("save jobs", err)
	}
	if err := s.db.SaveJobCount(s.nextJobID); err != nil {
		return 0, s.internalError("save job count", err)
	}
	return rec.ID, nil
}

// ReplaceJob overwrites the record with rec.ID in place; the counter is
// untouched.
func (s *StateStore) ReplaceJob(rec *structs.JobRecord) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if err := s.reloadJobsLocked(); err != nil {
		return err
	}
	for i, j := range s.jobs {
		if j.ID == rec.ID {
			s.jobs[i] = rec
			if err := s.db.SaveJobs(s.jobs); err != nil {
				return s.internalError("save jobs", err)
			}
			return nil
		}
	}
	return structs.NewNotFound(fmt.Sprintf("Job %d not found.", rec.ID))
}

// ---- contest updater ----

// ApplyContestUpdate records a completed job into the submission's contest:
// latest score, highest score, the best-submission instant, and (for fresh
// submissions) the submission counter. Contest 0 is updated like any other
// so its ranklist reflects default-contest submissions.
func (s *StateStore) ApplyContestUpdate(sub *structs.Submission, scoreSum float32, created structs.Timestamp, isPut bool) error {
	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return err
	}
	contest := s.contestByIDLocked(sub.ContestID)
	if contest == nil {
		return nil
	}
	p := slices.Index(contest.ProblemIDs, sub.ProblemID)
	if p < 0 {
		return nil
	}
	for _, ri := range contest.Users {
		if ri.User.ID != sub.UserID {
			continue
		}
		ri.LatestScores[p] = scoreSum
		if scoreSum >= ri.HighestScores[p] {
			ri.HighestScores[p] = scoreSum
			ri.LatestSubmission = created
		}
		if !isPut {
			ri.SubmissionCount++
		}
	}
	if err := s.db.SaveContests(s.contests); err != nil {
		return s.internalError("save contests", err)
	}
	return nil
}

// ---- case-time table ----

// ObserveCaseTime folds one measured runtime into the global best-time
// table. problemIdx is the problem's position in config order.
func (s *StateStore) ObserveCaseTime(problemIdx, caseIdx int, micros int64) {
	s.caseTimeMu.Lock()
	defer s.caseTimeMu.Unlock()
	if micros < s.caseTimes[problemIdx][caseIdx] {
		s.caseTimes[problemIdx][caseIdx] = micros
	}
}

// ObserveUserCaseTime folds one measured runtime into the submitting user's
// personal best within the contest.
func (s *StateStore) ObserveUserCaseTime(contestID, userID, problemID uint32, caseIdx int, micros int64) error {
	s.contestMu.Lock()
	defer s.contestMu.Unlock()
	if err := s.reloadContestsLocked(); err != nil {
		return err
	}
	contest := s.contestByIDLocked(contestID)
	if contest == nil {
		return nil
	}
	k := slices.Index(contest.ProblemIDs, problemID)
	if k < 0 {
		return nil
	}
	for _, ri := range contest.Users {
		if ri.User.ID != userID {
			continue
		}
		if micros < ri.ShortestTimes[k][caseIdx] {
			ri.ShortestTimes[k][caseIdx] = micros
		}
	}
	if err := s.db.SaveContests(s.contests); err != nil {
		return s.internalError("save contests", err)
	}
	return nil
}

// caseTimesSnapshot copies the global best-time table for ranklist reads.
func (s *StateStore) caseTimesSnapshot() [][]int64 {
	s.caseTimeMu.Lock()
	defer s.caseTimeMu.Unlock()
	out := make([][]int64, len(s.caseTimes))
	for i, row := range s.caseTimes {
		out[i] = slices.Clone(row)
	}
	return out
}
