package testdeck

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/hierarchy"
	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemStore) {
	t.Helper()
	m := store.NewMemStore()
	cfg := &Config{
		DispatchQueueSize: 16,
		DispatchWorkers:   2,
		Log:               slog.Default(),
	}
	engine, err := New(cfg, m, Collaborators{})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	t.Cleanup(func() { _ = engine.Stop(context.Background()) })
	return engine, m
}

func seedSuite(t *testing.T, engine *Engine, m *store.MemStore, name string, parentID *string, caseIDs ...string) *types.Suite {
	t.Helper()
	ctx := context.Background()
	suite, err := engine.Hierarchy().Create(ctx, hierarchy.CreateInput{
		ProjectID: "p1",
		Name:      name,
		ParentID:  parentID,
		CreatedBy: "alice",
	})
	require.NoError(t, err)
	for _, id := range caseIDs {
		if _, err := m.GetTestCase(ctx, id); err != nil {
			require.NoError(t, m.CreateTestCase(ctx, &types.TestCase{
				ID: id, ProjectID: "p1", Title: "Case " + id,
			}))
		}
	}
	if len(caseIDs) > 0 {
		require.NoError(t, engine.Hierarchy().AddTestCases(ctx, suite.ID, caseIDs))
	}
	return suite
}

// A full run lifecycle: execute seeds blocked executions, external results
// arrive one by one, and the rollup converges to FAILED with the right
// counts.
func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	suite := seedSuite(t, engine, engineStore(t, engine), "Login", nil, "tc1", "tc2", "tc3")

	detail, err := engine.Runner().Execute(ctx, suite.ID, types.NewRunOptions(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, detail.SuiteRun.Total)
	require.Len(t, detail.Executions, 3)
	for _, e := range detail.Executions {
		assert.Equal(t, types.ExecutionStatusBlocked, e.Status)
	}

	sr, err := engine.RecordResult(ctx, detail.Executions[0].ID, types.ExecutionStatusPassed, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusInProgress, sr.Status)
	assert.Equal(t, 1, sr.ExecutedCount)

	sr, err = engine.RecordResult(ctx, detail.Executions[1].ID, types.ExecutionStatusPassed, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusInProgress, sr.Status)

	sr, err = engine.RecordResult(ctx, detail.Executions[2].ID, types.ExecutionStatusFailed, "bob")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, sr.Status)
	assert.Equal(t, 3, sr.ExecutedCount)
	assert.Equal(t, 2, sr.Passed)
	assert.Equal(t, 1, sr.Failed)

	// A terminal run no longer accepts results.
	_, err = engine.RecordResult(ctx, detail.Executions[0].ID, types.ExecutionStatusPassed, "bob")
	assert.True(t, types.IsStateError(err))
}

func TestRecordResultValidation(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	suite := seedSuite(t, engine, engineStore(t, engine), "Login", nil, "tc1")

	detail, err := engine.Runner().Execute(ctx, suite.ID, types.NewRunOptions(), "alice")
	require.NoError(t, err)

	_, err = engine.RecordResult(ctx, detail.Executions[0].ID, "MAYBE", "bob")
	assert.True(t, types.IsValidationError(err))

	_, err = engine.RecordResult(ctx, "missing", types.ExecutionStatusPassed, "bob")
	assert.True(t, types.IsNotFoundError(err))
}

// Cascading execution creates an independent suite-run per level and the
// parent's total only covers its own direct cases.
func TestCascadeKeepsLevelsIndependent(t *testing.T) {
	ctx := context.Background()
	engine, m := newTestEngine(t)
	parent := seedSuite(t, engine, m, "Parent", nil, "tc1", "tc2")
	seedSuite(t, engine, m, "Child", &parent.ID, "tc3")

	detail, err := engine.Runner().Execute(ctx, parent.ID, types.NewRunOptions(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, detail.SuiteRun.Total, "parent total covers only its direct cases")

	runs, err := engine.Reporting().ListProjectRuns(ctx, "p1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2, "one suite-run per level")
}

// Trends over a run history come back chronological with the mean pass rate.
func TestTrendsOverRecordedRuns(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	suite := seedSuite(t, engine, engineStore(t, engine), "Login", nil, "tc1", "tc2")

	// Two runs: first 50% pass, second 100% pass.
	for _, outcomes := range [][]types.ExecutionStatus{
		{types.ExecutionStatusPassed, types.ExecutionStatusFailed},
		{types.ExecutionStatusPassed, types.ExecutionStatusPassed},
	} {
		detail, err := engine.Runner().Execute(ctx, suite.ID, types.RunOptions{}, "alice")
		require.NoError(t, err)
		for i, status := range outcomes {
			_, err := engine.RecordResult(ctx, detail.Executions[i].ID, status, "alice")
			require.NoError(t, err)
		}
	}

	summary, err := engine.Reporting().Trends(ctx, suite.ID, 5)
	require.NoError(t, err)
	require.Len(t, summary.Points, 2)
	assert.InDelta(t, 50.0, summary.Points[0].PassRate, 0.001)
	assert.InDelta(t, 100.0, summary.Points[1].PassRate, 0.001)
	assert.InDelta(t, 75.0, summary.MeanPassRate, 0.001)
}

// Deleting a suite is blocked while any child row exists, archived or not.
func TestDeleteBlockedByArchivedChild(t *testing.T) {
	ctx := context.Background()
	engine, m := newTestEngine(t)
	parent := seedSuite(t, engine, m, "Parent", nil)
	child := seedSuite(t, engine, m, "Child", &parent.ID)

	assert.True(t, types.IsStateError(engine.Hierarchy().Delete(ctx, parent.ID)))

	_, err := engine.Hierarchy().Archive(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, types.IsStateError(engine.Hierarchy().Delete(ctx, parent.ID)),
		"archived child still blocks deletion")

	require.NoError(t, engine.Hierarchy().Delete(ctx, child.ID))
	require.NoError(t, engine.Hierarchy().Delete(ctx, parent.ID))
}

func TestCancelledRunRejectsResults(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)
	suite := seedSuite(t, engine, engineStore(t, engine), "Login", nil, "tc1")

	detail, err := engine.Runner().Execute(ctx, suite.ID, types.NewRunOptions(), "alice")
	require.NoError(t, err)

	_, err = engine.Runner().Cancel(ctx, detail.SuiteRun.ID)
	require.NoError(t, err)

	_, err = engine.RecordResult(ctx, detail.Executions[0].ID, types.ExecutionStatusPassed, "alice")
	assert.True(t, types.IsStateError(err))
}

func TestEngineStartStop(t *testing.T) {
	m := store.NewMemStore()
	cfg := &Config{DispatchQueueSize: 16, DispatchWorkers: 2}
	engine, err := New(cfg, m, Collaborators{})
	require.NoError(t, err)

	assert.True(t, engine.Stopped())
	require.NoError(t, engine.Start(context.Background()))
	assert.False(t, engine.Stopped())
	assert.Error(t, engine.Start(context.Background()), "double start must be rejected")
	require.NoError(t, engine.Stop(context.Background()))
	assert.True(t, engine.Stopped())
	require.NoError(t, engine.Stop(context.Background()), "stop is idempotent")
}

// engineStore digs the mem store back out for test seeding.
func engineStore(t *testing.T, engine *Engine) *store.MemStore {
	t.Helper()
	m, ok := engine.store.(*store.MemStore)
	require.True(t, ok)
	return m
}
