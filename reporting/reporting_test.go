package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

type repFixture struct {
	svc   *Service
	store *store.MemStore
	base  time.Time
	seq   int
}

func newRepFixture(t *testing.T) *repFixture {
	t.Helper()
	m := store.NewMemStore()
	svc, err := NewService(Config{Store: m})
	require.NoError(t, err)
	f := &repFixture{
		svc:   svc,
		store: m,
		base:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.CreateSuite(context.Background(), &types.Suite{
		ID: "s1", ProjectID: "p1", Name: "Login",
	}))
	return f
}

// addRun seeds one terminal suite-run with the given pass count out of total.
// Runs are spaced an hour apart, in call order, each lasting 10 minutes.
func (f *repFixture) addRun(t *testing.T, id string, passed, total int, status types.RunStatus) {
	t.Helper()
	ctx := context.Background()
	f.seq++
	started := f.base.Add(time.Duration(f.seq) * time.Hour)
	ended := started.Add(10 * time.Minute)
	runID := "run-" + id
	require.NoError(t, f.store.CreateRun(ctx, &types.Run{
		ID: runID, ProjectID: "p1", Total: total, Passed: passed,
		Status: status, StartedAt: started, EndedAt: &ended,
	}))
	require.NoError(t, f.store.CreateSuiteRun(ctx, &types.SuiteRun{
		ID: id, SuiteID: "s1", RunID: runID, Total: total, Passed: passed,
		ExecutedCount: total, Failed: total - passed,
		Status: status, StartedAt: started, EndedAt: &ended, ExecutedBy: "alice",
	}))
}

func TestHistoryOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.addRun(t, "sr1", 1, 2, types.RunStatusFailed)
	f.addRun(t, "sr2", 2, 2, types.RunStatusPassed)
	f.addRun(t, "sr3", 2, 2, types.RunStatusPassed)

	entries, err := f.svc.History(ctx, "s1", HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sr3", entries[0].SuiteRun.ID, "most recent first")
	assert.Equal(t, "alice", entries[0].ExecutedBy)
	assert.Equal(t, "run-sr3", entries[0].Run.ID)

	entries, err = f.svc.History(ctx, "s1", HistoryQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sr2", entries[0].SuiteRun.ID)

	entries, err = f.svc.History(ctx, "s1", HistoryQuery{Status: types.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sr1", entries[0].SuiteRun.ID)
}

func TestHistoryMissingSuite(t *testing.T) {
	f := newRepFixture(t)
	_, err := f.svc.History(context.Background(), "missing", HistoryQuery{})
	assert.True(t, types.IsNotFoundError(err))
}

func TestTrendsChronologicalWithMeans(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	// Pass rates in chronological order: 60, 100, 70, 90, 80.
	f.addRun(t, "sr1", 6, 10, types.RunStatusFailed)
	f.addRun(t, "sr2", 10, 10, types.RunStatusPassed)
	f.addRun(t, "sr3", 7, 10, types.RunStatusFailed)
	f.addRun(t, "sr4", 9, 10, types.RunStatusFailed)
	f.addRun(t, "sr5", 8, 10, types.RunStatusFailed)

	summary, err := f.svc.Trends(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, summary.Points, 5)

	expected := []float64{60, 100, 70, 90, 80}
	for i, p := range summary.Points {
		assert.InDelta(t, expected[i], p.PassRate, 0.001, "points must be oldest first")
	}
	assert.InDelta(t, 80.0, summary.MeanPassRate, 0.001)
	require.NotNil(t, summary.MeanDurationSeconds)
	assert.InDelta(t, 600.0, *summary.MeanDurationSeconds, 0.001)
}

func TestTrendsLimitKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.addRun(t, "sr1", 6, 10, types.RunStatusFailed)
	f.addRun(t, "sr2", 10, 10, types.RunStatusPassed)
	f.addRun(t, "sr3", 8, 10, types.RunStatusFailed)

	summary, err := f.svc.Trends(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, summary.Points, 2)
	assert.Equal(t, "sr2", summary.Points[0].SuiteRunID)
	assert.Equal(t, "sr3", summary.Points[1].SuiteRunID)
}

func TestTrendsExcludeCancelledAndOpenRuns(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.addRun(t, "sr1", 10, 10, types.RunStatusPassed)
	f.addRun(t, "sr2", 0, 10, types.RunStatusCancelled)
	f.addRun(t, "sr3", 0, 10, types.RunStatusInProgress)

	summary, err := f.svc.Trends(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, summary.Points, 1)
	assert.Equal(t, "sr1", summary.Points[0].SuiteRunID)
}

func TestTrendsEmpty(t *testing.T) {
	f := newRepFixture(t)
	summary, err := f.svc.Trends(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, summary.Points)
	assert.Zero(t, summary.MeanPassRate)
	assert.Nil(t, summary.MeanDurationSeconds)
}

// seedReportRun builds a suite-run with per-case recorded statuses.
func (f *repFixture) seedReportRun(t *testing.T, id string, statuses map[string]types.ExecutionStatus) {
	t.Helper()
	ctx := context.Background()
	f.addRun(t, id, 0, len(statuses), types.RunStatusFailed)
	now := time.Now()
	var rows []types.Execution
	for caseID, status := range statuses {
		if _, err := f.store.GetTestCase(ctx, caseID); err != nil {
			require.NoError(t, f.store.CreateTestCase(ctx, &types.TestCase{
				ID: caseID, ProjectID: "p1", Title: "Case " + caseID,
			}))
		}
		rows = append(rows, types.Execution{
			ID: id + "-" + caseID, RunID: "run-" + id, SuiteRunID: &id,
			TestCaseID: caseID, Status: status, ExecutedBy: "alice", ExecutedAt: &now,
		})
	}
	require.NoError(t, f.store.CreateExecutions(ctx, rows))
}

func TestReportGroupsByStatus(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.seedReportRun(t, "sr1", map[string]types.ExecutionStatus{
		"tc1": types.ExecutionStatusPassed,
		"tc2": types.ExecutionStatusPassed,
		"tc3": types.ExecutionStatusFailed,
	})

	report, err := f.svc.Report(ctx, "sr1")
	require.NoError(t, err)
	assert.Equal(t, "Login", report.SuiteName)
	assert.Len(t, report.ByStatus[types.ExecutionStatusPassed], 2)
	require.Len(t, report.ByStatus[types.ExecutionStatusFailed], 1)
	assert.Equal(t, "Case tc3", report.ByStatus[types.ExecutionStatusFailed][0].TestCaseTitle)
	require.NotNil(t, report.DurationSeconds)
	assert.Equal(t, int64(600), *report.DurationSeconds)
}

func TestReportIncludesDefects(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.seedReportRun(t, "sr1", map[string]types.ExecutionStatus{
		"tc1": types.ExecutionStatusFailed,
		"tc2": types.ExecutionStatusFailed,
	})
	require.NoError(t, f.store.CreateDefect(ctx, &types.Defect{ID: "d1", ProjectID: "p1", Title: "broken", Severity: "high"}))
	require.NoError(t, f.store.LinkDefect(ctx, "sr1-tc1", "d1"))
	require.NoError(t, f.store.LinkDefect(ctx, "sr1-tc2", "d1"))

	report, err := f.svc.Report(ctx, "sr1")
	require.NoError(t, err)
	require.Len(t, report.Defects, 1, "defects must be de-duplicated")
	assert.Equal(t, "d1", report.Defects[0].ID)
}

func TestCompare(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.seedReportRun(t, "sr1", map[string]types.ExecutionStatus{
		"tc1": types.ExecutionStatusFailed,
		"tc2": types.ExecutionStatusPassed,
		"tc3": types.ExecutionStatusFailed,
	})
	f.seedReportRun(t, "sr2", map[string]types.ExecutionStatus{
		"tc1": types.ExecutionStatusPassed,
		"tc2": types.ExecutionStatusFailed,
		"tc3": types.ExecutionStatusFailed,
	})

	cmp, err := f.svc.Compare(ctx, "sr1", "sr2")
	require.NoError(t, err)
	assert.Equal(t, []string{"tc2"}, cmp.NewFailures)
	assert.Equal(t, []string{"tc1"}, cmp.FixedTests)
	require.NotNil(t, cmp.DurationDeltaSeconds)
	assert.Equal(t, int64(0), *cmp.DurationDeltaSeconds)
}

func TestCompareDifferentSuitesRejected(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.seedReportRun(t, "sr1", map[string]types.ExecutionStatus{
		"tc1": types.ExecutionStatusPassed,
	})

	require.NoError(t, f.store.CreateSuite(ctx, &types.Suite{ID: "s2", ProjectID: "p1", Name: "Other"}))
	started := f.base
	require.NoError(t, f.store.CreateRun(ctx, &types.Run{ID: "run-x", ProjectID: "p1", StartedAt: started}))
	require.NoError(t, f.store.CreateSuiteRun(ctx, &types.SuiteRun{
		ID: "sr-x", SuiteID: "s2", RunID: "run-x", Status: types.RunStatusPassed, StartedAt: started,
	}))

	_, err := f.svc.Compare(ctx, "sr1", "sr-x")
	assert.True(t, types.IsCrossEntityError(err))
}

func TestListProjectRuns(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.addRun(t, "sr1", 1, 1, types.RunStatusPassed)
	f.addRun(t, "sr2", 1, 1, types.RunStatusPassed)

	runs, err := f.svc.ListProjectRuns(ctx, "p1", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "sr2", runs[0].ID)

	runs, err = f.svc.ListProjectRuns(ctx, "p-other", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFormatReport(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.seedReportRun(t, "sr1", map[string]types.ExecutionStatus{
		"tc1": types.ExecutionStatusPassed,
		"tc2": types.ExecutionStatusFailed,
	})

	report, err := f.svc.Report(ctx, "sr1")
	require.NoError(t, err)

	out := FormatReport(report)
	assert.Contains(t, out, "Login")
	assert.Contains(t, out, "Case tc1")
	assert.Contains(t, out, "Case tc2")
	// Failed rows render before passed ones.
	assert.Less(t, strings.Index(out, "Case tc2"), strings.Index(out, "Case tc1"))
}

func TestFormatTrends(t *testing.T) {
	ctx := context.Background()
	f := newRepFixture(t)
	f.addRun(t, "sr1", 8, 10, types.RunStatusFailed)
	f.addRun(t, "sr2", 10, 10, types.RunStatusPassed)

	summary, err := f.svc.Trends(ctx, "s1", 10)
	require.NoError(t, err)

	out := FormatTrends(summary)
	assert.Contains(t, out, "80.0%")
	assert.Contains(t, out, "100.0%")
	assert.Contains(t, out, "90.0%", "footer carries the mean")
}
