// Package reporting derives historical views from suite-run records:
// run history, pass-rate and duration trends, full run reports, and
// run-to-run comparison.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// Config holds configuration for creating a Service.
type Config struct {
	Store store.Store
	Log   *slog.Logger
}

// Service answers read-only questions about suite runs.
type Service struct {
	store store.Store
	log   *slog.Logger
}

// NewService creates a reporting service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{store: cfg.Store, log: cfg.Log}, nil
}

// HistoryQuery filters and pages the run history.
type HistoryQuery struct {
	Limit  int
	Offset int
	Status types.RunStatus
}

// History returns a suite's runs ordered most-recent-first, each paired with
// executor identity and parent-run summary.
func (s *Service) History(ctx context.Context, suiteID string, q HistoryQuery) ([]types.HistoryEntry, error) {
	if _, err := s.store.GetSuite(ctx, suiteID); err != nil {
		return nil, err
	}
	rq := store.RunQuery{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		rq.Statuses = []types.RunStatus{q.Status}
	}
	runs, err := s.store.ListSuiteRuns(ctx, suiteID, rq)
	if err != nil {
		return nil, err
	}
	out := make([]types.HistoryEntry, 0, len(runs))
	for _, sr := range runs {
		run, err := s.store.GetRun(ctx, sr.RunID)
		if err != nil {
			return nil, err
		}
		out = append(out, types.HistoryEntry{
			SuiteRun:   sr,
			ExecutedBy: sr.ExecutedBy,
			Run: types.RunSummary{
				ID:        run.ID,
				Status:    run.Status,
				Total:     run.Total,
				Passed:    run.Passed,
				Failed:    run.Failed,
				Blocked:   run.Blocked,
				Skipped:   run.Skipped,
				StartedAt: run.StartedAt,
				EndedAt:   run.EndedAt,
			},
		})
	}
	return out, nil
}

// Trends computes per-run pass rate and duration over the suite's most
// recent terminal runs, returned in chronological order together with the
// mean pass rate and mean duration. The duration mean only covers runs that
// have both timestamps.
func (s *Service) Trends(ctx context.Context, suiteID string, limit int) (*types.TrendSummary, error) {
	if _, err := s.store.GetSuite(ctx, suiteID); err != nil {
		return nil, err
	}
	runs, err := s.store.ListSuiteRuns(ctx, suiteID, store.RunQuery{
		Statuses: types.TrendStatuses,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	points := make([]types.TrendPoint, 0, len(runs))
	for i := range runs {
		sr := &runs[i]
		points = append(points, types.TrendPoint{
			SuiteRunID:      sr.ID,
			Status:          sr.Status,
			PassRate:        sr.PassRate(),
			DurationSeconds: sr.DurationSeconds(),
			StartedAt:       sr.StartedAt,
		})
	}
	// The store returns most-recent-first; trends read oldest-first.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	summary := &types.TrendSummary{Points: points}
	if len(points) > 0 {
		var rateSum float64
		var durSum, durCount int64
		for _, p := range points {
			rateSum += p.PassRate
			if p.DurationSeconds != nil {
				durSum += *p.DurationSeconds
				durCount++
			}
		}
		summary.MeanPassRate = rateSum / float64(len(points))
		if durCount > 0 {
			mean := float64(durSum) / float64(durCount)
			summary.MeanDurationSeconds = &mean
		}
	}
	return summary, nil
}

// Report returns the full execution detail of one suite-run grouped by
// status, with pass rate, duration, and the de-duplicated defects linked to
// any of its executions.
func (s *Service) Report(ctx context.Context, suiteRunID string) (*types.RunReport, error) {
	suiteRun, err := s.store.GetSuiteRun(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}
	suite, err := s.store.GetSuite(ctx, suiteRun.SuiteID)
	if err != nil {
		return nil, err
	}
	executions, err := s.store.ListExecutions(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(executions))
	for _, e := range executions {
		ids = append(ids, e.TestCaseID)
	}
	cases, err := s.store.GetTestCases(ctx, ids)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(cases))
	for _, tc := range cases {
		titles[tc.ID] = tc.Title
	}

	byStatus := make(map[types.ExecutionStatus][]types.ExecutionDetail)
	for _, e := range executions {
		byStatus[e.Status] = append(byStatus[e.Status], types.ExecutionDetail{
			Execution:     e,
			TestCaseTitle: titles[e.TestCaseID],
		})
	}

	defects, err := s.store.ListSuiteRunDefects(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}

	return &types.RunReport{
		SuiteRun:        *suiteRun,
		SuiteName:       suite.Name,
		ByStatus:        byStatus,
		PassRate:        suiteRun.PassRate(),
		DurationSeconds: suiteRun.DurationSeconds(),
		Defects:         defects,
	}, nil
}

// Compare diffs two suite-runs of the same suite: pass-rate and duration
// deltas (target minus base) and the set difference of failed test cases in
// both directions.
func (s *Service) Compare(ctx context.Context, baseID, targetID string) (*types.RunComparison, error) {
	base, err := s.Report(ctx, baseID)
	if err != nil {
		return nil, err
	}
	target, err := s.Report(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if base.SuiteRun.SuiteID != target.SuiteRun.SuiteID {
		return nil, types.NewCrossEntityError("suite runs %s and %s belong to different suites", baseID, targetID)
	}

	cmp := &types.RunComparison{
		Base:          *base,
		Target:        *target,
		PassRateDelta: target.PassRate - base.PassRate,
	}
	if base.DurationSeconds != nil && target.DurationSeconds != nil {
		delta := *target.DurationSeconds - *base.DurationSeconds
		cmp.DurationDeltaSeconds = &delta
	}

	baseFailed := failedCaseSet(base)
	targetFailed := failedCaseSet(target)
	for id := range targetFailed {
		if !baseFailed[id] {
			cmp.NewFailures = append(cmp.NewFailures, id)
		}
	}
	for id := range baseFailed {
		if !targetFailed[id] {
			cmp.FixedTests = append(cmp.FixedTests, id)
		}
	}
	sort.Strings(cmp.NewFailures)
	sort.Strings(cmp.FixedTests)
	return cmp, nil
}

func failedCaseSet(report *types.RunReport) map[string]bool {
	out := make(map[string]bool)
	for _, d := range report.ByStatus[types.ExecutionStatusFailed] {
		if d.Executed() {
			out[d.TestCaseID] = true
		}
	}
	return out
}

// ListProjectRuns lists a project's suite-runs, most recent first.
func (s *Service) ListProjectRuns(ctx context.Context, projectID string, limit, offset int) ([]types.SuiteRun, error) {
	return s.store.ListProjectSuiteRuns(ctx, projectID, store.RunQuery{Limit: limit, Offset: offset})
}
