// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package executor evaluates one submission: it materializes the source in a
// per-job scratch directory, compiles it, runs every test case under the
// problem's time and ordering rules, compares outputs, and assembles the job
// record. No registry lock is ever held across a child process; results are
// applied to the state store as short deltas.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/armon/circbuf"
	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/arbiterhq/arbiter/judge/state"
	"github.com/arbiterhq/arbiter/judge/structs"
)

const (
	// exeName and outName are the fixed names of the compiled program and
	// the captured stdout inside the scratch directory.
	exeName = "test.exe"
	outName = "test.out"

	// stderrBufSize bounds how much child stderr is retained for logging.
	stderrBufSize = 64 * 1024

	// scoreEpsilon absorbs float32 accumulation error when deciding
	// whether the score sum reached the maximum.
	scoreEpsilon = 1e-3
)

// Executor runs submissions. It is safe for concurrent use: every job gets
// its own scratch directory.
type Executor struct {
	logger    hclog.Logger
	state     *state.StateStore
	languages []structs.Language
}

func New(logger hclog.Logger, st *state.StateStore, languages []structs.Language) *Executor {
	return &Executor{
		logger:    logger.Named("executor"),
		state:     st,
		languages: languages,
	}
}

// Execute evaluates sub and returns the finished job record. For fresh
// submissions (isPut false) the record is appended to the job registry under
// the next job id; for re-evaluations the caller owns id assignment and
// storage. The submission's contest is updated either way.
func (e *Executor) Execute(sub *structs.Submission, isPut bool) (*structs.JobRecord, error) {
	created := structs.Now()

	problemIdx, ok := e.state.ProblemIndex(sub.ProblemID)
	if !ok {
		return nil, structs.NewNotFound(fmt.Sprintf("Problem %d not found.", sub.ProblemID))
	}
	problem := &e.state.Problems()[problemIdx]

	lang, ok := e.languageByName(sub.Language)
	if !ok {
		return nil, structs.NewNotFound(fmt.Sprintf("Language %s not found.", sub.Language))
	}

	var cases []structs.CaseResult
	var scoreSum float32
	jobResult := structs.VerdictSystemError

	scratch, err := e.makeScratchDir()
	if err != nil {
		e.logger.Error("failed to create scratch directory", "error", err)
		// The record still carries the compile slot at case id 0.
		cases = []structs.CaseResult{{ID: 0, Result: structs.VerdictSystemError}}
	} else {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				e.logger.Error("failed to remove scratch directory", "dir", scratch, "error", err)
			}
		}()

		var runErr error
		jobResult, cases, scoreSum, runErr = e.runPipeline(problem, problemIdx, lang, sub, scratch)
		if runErr != nil {
			return nil, runErr
		}
	}

	rec := &structs.JobRecord{
		CreatedTime: created,
		UpdatedTime: structs.Now(),
		Submission:  *sub,
		State:       structs.JobStateFinished,
		Result:      jobResult,
		Score:       scoreSum,
		Cases:       cases,
	}
	if !isPut {
		if _, err := e.state.AppendJob(rec); err != nil {
			return nil, err
		}
	}
	if err := e.state.ApplyContestUpdate(sub, scoreSum, created, isPut); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Executor) languageByName(name string) (*structs.Language, bool) {
	for i := range e.languages {
		if e.languages[i].Name == name {
			return &e.languages[i], true
		}
	}
	return nil, false
}

// makeScratchDir creates the per-job unique working directory. Uniqueness is
// what allows concurrent evaluations.
func (e *Executor) makeScratchDir() (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(os.TempDir(), "arbiter-job-"+id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// runPipeline compiles the submission and walks the test cases in linear or
// packed order, returning the job-level verdict, the per-case results
// (case id 0 being the compile step), and the accumulated score.
func (e *Executor) runPipeline(problem *structs.Problem, problemIdx int, lang *structs.Language, sub *structs.Submission, scratch string) (structs.Verdict, []structs.CaseResult, float32, error) {
	srcPath := filepath.Join(scratch, lang.FileName)
	exePath := filepath.Join(scratch, exeName)

	if err := os.WriteFile(srcPath, []byte(sub.SourceCode), 0o644); err != nil {
		e.logger.Error("failed to write source file", "error", err)
		return structs.VerdictSystemError,
			[]structs.CaseResult{{ID: 0, Result: structs.VerdictSystemError}}, 0, nil
	}

	cases := make([]structs.CaseResult, 0, len(problem.Cases)+1)
	jobResult := structs.VerdictCompilationSuccess
	if err := e.compile(lang, srcPath, exePath); err != nil {
		jobResult = structs.VerdictCompilationError
	}
	cases = append(cases, structs.CaseResult{ID: 0, Result: jobResult})
	compileFailed := jobResult == structs.VerdictCompilationError

	var scoreSum float32

	run := func(caseID uint32) error {
		result, override, delta, err := e.runCase(problem, problemIdx, int(caseID-1), sub, scratch, exePath)
		if err != nil {
			return err
		}
		result.ID = caseID
		cases = append(cases, result)
		scoreSum += delta
		if override != structs.VerdictWaiting {
			jobResult = override
		}
		return nil
	}

	if packing := problem.Misc.Packing; len(packing) > 0 {
		for _, pack := range packing {
			packFailed := false
			for _, caseID := range pack {
				switch {
				case compileFailed:
					// Cases after a failed compile keep the
					// Waiting verdict.
					cases = append(cases, structs.CaseResult{ID: caseID, Result: structs.VerdictWaiting})
				case packFailed:
					cases = append(cases, structs.CaseResult{ID: caseID, Result: structs.VerdictSkipped})
				default:
					if err := run(caseID); err != nil {
						return 0, nil, 0, err
					}
					if cases[len(cases)-1].Result != structs.VerdictAccepted {
						packFailed = true
					}
				}
			}
		}
	} else {
		for i := range problem.Cases {
			caseID := uint32(i + 1)
			if compileFailed {
				cases = append(cases, structs.CaseResult{ID: caseID, Result: structs.VerdictWaiting})
				continue
			}
			if err := run(caseID); err != nil {
				return 0, nil, 0, err
			}
		}
	}

	return e.finalVerdict(problem, jobResult, scoreSum), cases, scoreSum, nil
}

// compile instantiates the language's command template and runs it with
// stderr discarded. Any failure to spawn or a non-zero exit is a
// compilation error.
func (e *Executor) compile(lang *structs.Language, srcPath, exePath string) error {
	repl := strings.NewReplacer("%INPUT%", srcPath, "%OUTPUT%", exePath)
	args := make([]string, 0, len(lang.Command)-1)
	for _, a := range lang.Command[1:] {
		args = append(args, repl.Replace(a))
	}
	cmd := exec.Command(lang.Command[0], args...)
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// runCase executes one test case and classifies the outcome. The returned
// override is the job-level verdict the case forces (Waiting when none).
// Only storage failures surface as errors; everything else becomes a
// verdict.
func (e *Executor) runCase(problem *structs.Problem, problemIdx, caseIdx int, sub *structs.Submission, scratch, exePath string) (structs.CaseResult, structs.Verdict, float32, error) {
	none := structs.VerdictWaiting
	c := problem.Cases[caseIdx]

	in, err := os.Open(c.InputFile)
	if err != nil {
		e.logger.Error("failed to open case input", "input", c.InputFile, "error", err)
		return structs.CaseResult{Result: structs.VerdictSystemError}, structs.VerdictSystemError, 0, nil
	}
	outPath := filepath.Join(scratch, outName)
	out, err := os.Create(outPath)
	if err != nil {
		in.Close()
		e.logger.Error("failed to create case output", "error", err)
		return structs.CaseResult{Result: structs.VerdictSystemError}, structs.VerdictSystemError, 0, nil
	}

	ctx := context.Background()
	if c.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.TimeLimit)*time.Microsecond)
		defer cancel()
	}

	stderr, _ := circbuf.NewBuffer(stderrBufSize)
	cmd := exec.CommandContext(ctx, exePath)
	cmd.Stdin = in
	cmd.Stdout = out
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Microseconds()

	var mErr *multierror.Error
	mErr = multierror.Append(mErr, in.Close(), out.Close())
	if err := mErr.ErrorOrNil(); err != nil {
		e.logger.Warn("failed to close case files", "error", err)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return structs.CaseResult{Result: structs.VerdictTimeLimitExceeded, Time: elapsed},
			structs.VerdictTimeLimitExceeded, 0, nil
	}
	if runErr != nil {
		e.logger.Debug("case runtime failure", "case", caseIdx+1,
			"error", runErr, "stderr", string(stderr.Bytes()))
		return structs.CaseResult{Result: structs.VerdictRuntimeError, Time: elapsed},
			structs.VerdictRuntimeError, 0, nil
	}

	var accepted bool
	var info string
	correctness := float32(1.0)

	switch problem.Type {
	case structs.ProblemStrict:
		accepted, err = compareStrict(outPath, c.AnswerFile)
	case structs.ProblemSPJ:
		var spjFailed bool
		accepted, info, spjFailed = e.runSPJ(outPath, c.AnswerFile, scratch, problem.Misc.SpecialJudge)
		if spjFailed {
			return structs.CaseResult{Result: structs.VerdictSPJError, Time: elapsed}, none, 0, nil
		}
	case structs.ProblemDynamicRanking:
		correctness = 1.0 - *problem.Misc.DynamicRankingRatio
		accepted, err = compareStandard(outPath, c.AnswerFile)
		if err == nil {
			e.state.ObserveCaseTime(problemIdx, caseIdx, elapsed)
			if serr := e.state.ObserveUserCaseTime(sub.ContestID, sub.UserID, problem.ID, caseIdx, elapsed); serr != nil {
				return structs.CaseResult{}, none, 0, serr
			}
		}
	default:
		accepted, err = compareStandard(outPath, c.AnswerFile)
	}
	if err != nil {
		e.logger.Error("failed to compare case output", "answer", c.AnswerFile, "error", err)
		return structs.CaseResult{Result: structs.VerdictSystemError, Time: elapsed},
			structs.VerdictSystemError, 0, nil
	}

	if !accepted {
		return structs.CaseResult{Result: structs.VerdictWrongAnswer, Info: info, Time: elapsed}, none, 0, nil
	}
	return structs.CaseResult{Result: structs.VerdictAccepted, Info: info, Time: elapsed},
		none, c.Score * correctness, nil
}

// finalVerdict aggregates the job verdict after all cases ran. Fatal
// verdicts stick; otherwise the score sum against the achievable maximum
// decides.
func (e *Executor) finalVerdict(problem *structs.Problem, jobResult structs.Verdict, scoreSum float32) structs.Verdict {
	switch jobResult {
	case structs.VerdictTimeLimitExceeded,
		structs.VerdictRuntimeError,
		structs.VerdictCompilationError,
		structs.VerdictSystemError:
		return jobResult
	}

	maxScore := float32(100.0)
	if problem.Type == structs.ProblemDynamicRanking {
		maxScore = 100.0 * (1.0 - *problem.Misc.DynamicRankingRatio)
	}
	switch {
	case scoreSum > maxScore+scoreEpsilon:
		// More points than the problem holds; something is off.
		return structs.VerdictSystemError
	case scoreSum >= maxScore-scoreEpsilon:
		return structs.VerdictAccepted
	default:
		return structs.VerdictWrongAnswer
	}
}
