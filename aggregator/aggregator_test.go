package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/dispatch"
	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// capturePublisher records published events for assertions.
type capturePublisher struct {
	events []dispatch.RunCompletedEvent
}

func (c *capturePublisher) Publish(event dispatch.RunCompletedEvent) {
	c.events = append(c.events, event)
}

func TestDecideStatus(t *testing.T) {
	tests := []struct {
		name   string
		r      rollup
		total  int
		expect types.RunStatus
	}{
		{"nothing executed", rollup{}, 3, types.RunStatusInProgress},
		{"partially executed", rollup{executed: 2, passed: 2}, 3, types.RunStatusInProgress},
		{"all passed", rollup{executed: 3, passed: 3}, 3, types.RunStatusPassed},
		{"one failed", rollup{executed: 3, passed: 2, failed: 1}, 3, types.RunStatusFailed},
		{"one blocked", rollup{executed: 3, passed: 2, blocked: 1}, 3, types.RunStatusFailed},
		{"failed beats skipped", rollup{executed: 3, failed: 1, skipped: 2}, 3, types.RunStatusFailed},
		{"skips present", rollup{executed: 3, passed: 2, skipped: 1}, 3, types.RunStatusCompleted},
		{"inconclusive present", rollup{executed: 3, passed: 2, inconclusive: 1}, 3, types.RunStatusCompleted},
		{"all skipped", rollup{executed: 2, skipped: 2}, 2, types.RunStatusCompleted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, decideStatus(tc.r, tc.total))
		})
	}
}

func TestTallySkipsUnexecutedRows(t *testing.T) {
	now := time.Now()
	executions := []types.Execution{
		{ID: "e1", Status: types.ExecutionStatusPassed, ExecutedAt: &now},
		{ID: "e2", Status: types.ExecutionStatusFailed, ExecutedAt: &now},
		{ID: "e3", Status: types.ExecutionStatusBlocked, ExecutedAt: &now},
		{ID: "e4", Status: types.ExecutionStatusBlocked}, // seeded, never recorded
	}

	r := tally(executions)
	assert.Equal(t, 3, r.executed)
	assert.Equal(t, 1, r.passed)
	assert.Equal(t, 1, r.failed)
	assert.Equal(t, 1, r.blocked, "a recorded BLOCKED counts, a seeded one does not")
	assert.Equal(t, r.executed, r.passed+r.failed+r.blocked+r.skipped+r.inconclusive)
}

type aggFixture struct {
	agg    *Aggregator
	store  *store.MemStore
	pub    *capturePublisher
	execID map[string]string
}

// seedRun creates a suite, its run pair, and n blocked executions.
func seedRun(t *testing.T, n int) *aggFixture {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemStore()
	pub := &capturePublisher{}
	agg, err := NewAggregator(Config{Store: m, Events: pub})
	require.NoError(t, err)

	require.NoError(t, m.CreateSuite(ctx, &types.Suite{ID: "s1", ProjectID: "p1", Name: "Login"}))
	suiteRunID := "sr1"
	now := time.Now()
	require.NoError(t, m.CreateRun(ctx, &types.Run{
		ID: "r1", ProjectID: "p1", SuiteRunID: &suiteRunID, Total: n,
		Status: types.RunStatusInProgress, StartedAt: now,
	}))
	require.NoError(t, m.CreateSuiteRun(ctx, &types.SuiteRun{
		ID: suiteRunID, SuiteID: "s1", RunID: "r1", Total: n,
		Status: types.RunStatusInProgress, StartedAt: now,
	}))

	f := &aggFixture{agg: agg, store: m, pub: pub, execID: map[string]string{}}
	var rows []types.Execution
	for i := 0; i < n; i++ {
		id := "e" + string(rune('1'+i))
		f.execID["tc"+string(rune('1'+i))] = id
		rows = append(rows, types.Execution{
			ID: id, RunID: "r1", SuiteRunID: &suiteRunID,
			TestCaseID: "tc" + string(rune('1'+i)), Status: types.ExecutionStatusBlocked,
		})
	}
	require.NoError(t, m.CreateExecutions(ctx, rows))
	return f
}

func (f *aggFixture) record(t *testing.T, executionID string, status types.ExecutionStatus) {
	t.Helper()
	require.NoError(t, f.store.RecordExecution(context.Background(), executionID, status, "alice", time.Now()))
}

func TestRecomputePartialStaysInProgress(t *testing.T) {
	ctx := context.Background()
	f := seedRun(t, 3)
	f.record(t, "e1", types.ExecutionStatusPassed)

	sr, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusInProgress, sr.Status)
	assert.Equal(t, 1, sr.ExecutedCount)
	assert.Equal(t, 1, sr.Passed)
	assert.Nil(t, sr.EndedAt)
	assert.Empty(t, f.pub.events, "no event before the run is terminal")
}

func TestRecomputeAllPassed(t *testing.T) {
	ctx := context.Background()
	f := seedRun(t, 2)
	f.record(t, "e1", types.ExecutionStatusPassed)
	f.record(t, "e2", types.ExecutionStatusPassed)

	sr, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusPassed, sr.Status)
	assert.Equal(t, 2, sr.ExecutedCount)
	require.NotNil(t, sr.EndedAt)

	// Counts and status are mirrored onto the parent run.
	run, err := f.store.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusPassed, run.Status)
	assert.Equal(t, 2, run.Passed)
	assert.NotNil(t, run.EndedAt)

	require.Len(t, f.pub.events, 1)
	event := f.pub.events[0]
	assert.Equal(t, "sr1", event.SuiteRunID)
	assert.Equal(t, "Login", event.SuiteName)
	assert.Equal(t, types.RunStatusPassed, event.Status)
	assert.Len(t, event.ExecutionIDs, 2)
}

func TestRecomputeFailureWins(t *testing.T) {
	ctx := context.Background()
	f := seedRun(t, 3)
	f.record(t, "e1", types.ExecutionStatusPassed)
	f.record(t, "e2", types.ExecutionStatusFailed)
	f.record(t, "e3", types.ExecutionStatusSkipped)

	sr, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, sr.Status)
	assert.Equal(t, 1, sr.Failed)
	assert.Equal(t, 1, sr.Skipped)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, 1, f.pub.events[0].Failed)
}

func TestRecomputeIdempotent(t *testing.T) {
	ctx := context.Background()
	f := seedRun(t, 1)
	f.record(t, "e1", types.ExecutionStatusPassed)

	first, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)
	second, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.ExecutedCount, second.ExecutedCount)
	assert.Equal(t, first.EndedAt, second.EndedAt, "EndedAt must not move on re-aggregation")
}

func TestRecomputeCountIdentity(t *testing.T) {
	ctx := context.Background()
	f := seedRun(t, 5)
	f.record(t, "e1", types.ExecutionStatusPassed)
	f.record(t, "e2", types.ExecutionStatusFailed)
	f.record(t, "e3", types.ExecutionStatusBlocked)
	f.record(t, "e4", types.ExecutionStatusSkipped)
	f.record(t, "e5", types.ExecutionStatusInconclusive)

	sr, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)
	assert.Equal(t, sr.ExecutedCount, sr.Passed+sr.Failed+sr.Blocked+sr.Skipped+sr.Inconclusive)
	assert.Equal(t, types.RunStatusFailed, sr.Status)
}

func TestRecomputeCancelledRunUntouched(t *testing.T) {
	ctx := context.Background()
	f := seedRun(t, 2)

	sr, err := f.store.GetSuiteRun(ctx, "sr1")
	require.NoError(t, err)
	endedAt := time.Now()
	sr.Status = types.RunStatusCancelled
	sr.EndedAt = &endedAt
	require.NoError(t, f.store.UpdateSuiteRun(ctx, sr))

	// A result recorded after cancellation keeps its execution row but must
	// not reopen the run.
	f.record(t, "e1", types.ExecutionStatusPassed)

	got, err := f.agg.Recompute(ctx, "sr1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusCancelled, got.Status)
	assert.Equal(t, 0, got.ExecutedCount)
	require.NotNil(t, got.EndedAt)
	assert.Equal(t, endedAt.Unix(), got.EndedAt.Unix())
	assert.Empty(t, f.pub.events)
}

func TestRecomputeMissingRun(t *testing.T) {
	m := store.NewMemStore()
	agg, err := NewAggregator(Config{Store: m})
	require.NoError(t, err)

	_, err = agg.Recompute(context.Background(), "missing")
	assert.True(t, types.IsNotFoundError(err))
}
