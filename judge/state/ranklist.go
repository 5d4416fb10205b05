// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"math"
	"sort"

	"github.com/arbiterhq/arbiter/judge/structs"
)

// ScoringRule selects which per-problem score vector feeds the ranklist.
type ScoringRule string

const (
	ScoringLatest  ScoringRule = "latest"
	ScoringHighest ScoringRule = "highest"
)

// ParseScoringRule maps the query parameter to a rule; empty means latest.
func ParseScoringRule(s string) (ScoringRule, error) {
	switch s {
	case "":
		return ScoringLatest, nil
	case string(ScoringLatest), string(ScoringHighest):
		return ScoringRule(s), nil
	}
	return "", structs.NewInvalidArgument("Invalid argument")
}

// TieBreaker selects the secondary sort key and the tie condition for rank
// sharing.
type TieBreaker string

const (
	TieNone            TieBreaker = "none"
	TieSubmissionTime  TieBreaker = "submission_time"
	TieSubmissionCount TieBreaker = "submission_count"
	TieUserID          TieBreaker = "user_id"
)

// ParseTieBreaker maps the query parameter to a tie breaker; empty means
// none.
func ParseTieBreaker(s string) (TieBreaker, error) {
	switch s {
	case "":
		return TieNone, nil
	case string(TieNone), string(TieSubmissionTime), string(TieSubmissionCount), string(TieUserID):
		return TieBreaker(s), nil
	}
	return "", structs.NewInvalidArgument("Invalid argument")
}

// Ranklist computes the ordered standings of one contest. Scores, the
// competitive bonus for dynamic-ranking problems, the sort order, and the
// rank numbers are all recomputed per request on a snapshot; stored state is
// not mutated.
func (s *StateStore) Ranklist(contestID uint32, rule ScoringRule, tie TieBreaker) ([]*structs.RankInfo, error) {
	s.contestMu.Lock()
	if err := s.reloadContestsLocked(); err != nil {
		s.contestMu.Unlock()
		return nil, err
	}
	c := s.contestByIDLocked(contestID)
	if c == nil {
		s.contestMu.Unlock()
		return nil, structs.NewNotFound(fmt.Sprintf("Contest %d not found.", contestID))
	}
	contest := deepCopy(c)
	s.contestMu.Unlock()

	bestTimes := s.caseTimesSnapshot()

	for _, user := range contest.Users {
		base := user.LatestScores
		if rule == ScoringHighest {
			base = user.HighestScores
		}
		user.Scores = append([]float32(nil), base...)

		var baseSum float32
		for _, v := range base {
			baseSum += v
		}
		user.Score = uint32(baseSum)
		user.Score += s.competitiveBonus(contest, user, bestTimes)
	}

	users := contest.Users
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch tie {
		case TieSubmissionTime:
			if !a.LatestSubmission.Equal(b.LatestSubmission.Time) {
				return a.LatestSubmission.Before(b.LatestSubmission.Time)
			}
		case TieSubmissionCount:
			if a.SubmissionCount != b.SubmissionCount {
				return a.SubmissionCount < b.SubmissionCount
			}
		}
		return a.User.ID < b.User.ID
	})

	for i, user := range users {
		if i == 0 {
			user.Rank = 1
			continue
		}
		prev := users[i-1]
		tied := user.Score == prev.Score
		switch tie {
		case TieSubmissionTime:
			tied = tied && user.LatestSubmission.Equal(prev.LatestSubmission.Time)
		case TieSubmissionCount:
			tied = tied && user.SubmissionCount == prev.SubmissionCount
		case TieUserID:
			tied = false
		}
		if tied {
			user.Rank = prev.Rank
		} else {
			user.Rank = uint32(i + 1)
		}
	}
	return users, nil
}

// competitiveBonus sums the time-competitive component over every
// dynamic-ranking problem of the contest: per case, score * ratio *
// (global best time / user's best time). A case the user never solved
// contributes nothing. The per-problem float sum also lands in
// user.Scores; the returned value truncates per case, matching the wire
// contract of the integral score field.
func (s *StateStore) competitiveBonus(contest *structs.Contest, user *structs.RankInfo, bestTimes [][]int64) uint32 {
	var total uint32
	for k, pid := range contest.ProblemIDs {
		idx, ok := s.problemIdx[pid]
		if !ok {
			continue
		}
		problem := s.problems[idx]
		if problem.Type != structs.ProblemDynamicRanking || problem.Misc.DynamicRankingRatio == nil {
			continue
		}
		r := *problem.Misc.DynamicRankingRatio

		var problemSum float32
		for j, c := range problem.Cases {
			personal := user.ShortestTimes[k][j]
			if personal == math.MaxInt64 {
				continue
			}
			ratio := float32(bestTimes[idx][j]) / float32(personal)
			bonus := c.Score * r * ratio
			problemSum += bonus
			total += uint32(bonus)
		}
		user.Scores[k] += problemSum
		user.CompetitiveScoreSum += problemSum
	}
	return total
}
