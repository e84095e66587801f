package runner

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// materializeRun creates the full record set for one suite execution: a Run,
// a SuiteRun referencing it, one Execution per test case (status BLOCKED),
// and one ExecutionStep per test-case step (status SKIPPED). It must be
// called inside a storage transaction.
func materializeRun(
	ctx context.Context,
	tx store.Store,
	suite *types.Suite,
	cases []types.TestCase,
	opts types.RunOptions,
	executedBy string,
	now time.Time,
) (*types.SuiteRun, error) {
	runID := uuid.New().String()
	suiteRunID := uuid.New().String()

	name := opts.Name
	if name == "" {
		name = suite.Name
	}

	run := &types.Run{
		ID:         runID,
		ProjectID:  suite.ProjectID,
		SuiteRunID: &suiteRunID,
		Name:       name,
		Total:      len(cases),
		Status:     types.RunStatusInProgress,
		StartedAt:  now,
		ExecutedBy: executedBy,
		CreatedAt:  now,
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	suiteRun := &types.SuiteRun{
		ID:                suiteRunID,
		SuiteID:           suite.ID,
		RunID:             runID,
		Name:              name,
		Description:       opts.Description,
		Environment:       opts.Environment,
		BuildVersion:      opts.BuildVersion,
		Total:             len(cases),
		StopOnFailure:     opts.StopOnFailure,
		CascadeToChildren: opts.CascadeToChildren,
		Status:            types.RunStatusInProgress,
		StartedAt:         now,
		ExecutedBy:        executedBy,
		CreatedAt:         now,
	}
	if err := tx.CreateSuiteRun(ctx, suiteRun); err != nil {
		return nil, err
	}

	executions := make([]types.Execution, 0, len(cases))
	for _, tc := range cases {
		executions = append(executions, types.Execution{
			ID:         uuid.New().String(),
			RunID:      runID,
			SuiteRunID: &suiteRunID,
			TestCaseID: tc.ID,
			Status:     types.ExecutionStatusBlocked,
			CreatedAt:  now,
		})
	}
	if err := tx.CreateExecutions(ctx, executions); err != nil {
		return nil, err
	}

	// Mirror each test case's current step list onto its execution. The
	// snapshot is not kept in sync with later step edits.
	var steps []types.ExecutionStep
	for i, tc := range cases {
		caseSteps, err := tx.ListTestSteps(ctx, tc.ID)
		if err != nil {
			return nil, err
		}
		for _, cs := range caseSteps {
			steps = append(steps, types.ExecutionStep{
				ID:          uuid.New().String(),
				ExecutionID: executions[i].ID,
				TestStepID:  cs.ID,
				Status:      types.ExecutionStatusSkipped,
			})
		}
	}
	if err := tx.CreateExecutionSteps(ctx, steps); err != nil {
		return nil, err
	}

	return suiteRun, nil
}
