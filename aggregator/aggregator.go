// Package aggregator recomputes suite-run rollup counts and status from the
// current execution records, mirrors them onto the parent run, and publishes
// completion events for the side-effect dispatcher.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/testdeck/testdeck/dispatch"
	"github.com/testdeck/testdeck/metrics"
	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// Config holds configuration for creating an Aggregator.
type Config struct {
	Store  store.Store
	Events dispatch.Publisher
	Log    *slog.Logger
}

// Aggregator recomputes suite-run metrics. Recompute is idempotent and safe
// to call repeatedly or after partial external updates to execution status.
type Aggregator struct {
	store  store.Store
	events dispatch.Publisher
	log    *slog.Logger
}

// NewAggregator creates an aggregator. Events may be nil when no side
// effects are wanted (tests).
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Aggregator{store: cfg.Store, events: cfg.Events, log: cfg.Log}, nil
}

// rollup tallies execution outcomes. Only executions that have actually been
// recorded (ExecutedAt set) count; rows still carrying their seeded BLOCKED
// status stay pending until the recording path stamps them.
type rollup struct {
	executed     int
	passed       int
	failed       int
	blocked      int
	skipped      int
	inconclusive int
}

func tally(executions []types.Execution) rollup {
	var r rollup
	for i := range executions {
		e := &executions[i]
		if !e.Executed() {
			continue
		}
		r.executed++
		switch e.Status {
		case types.ExecutionStatusPassed:
			r.passed++
		case types.ExecutionStatusFailed:
			r.failed++
		case types.ExecutionStatusBlocked:
			r.blocked++
		case types.ExecutionStatusSkipped:
			r.skipped++
		case types.ExecutionStatusInconclusive:
			r.inconclusive++
		}
	}
	return r
}

// decideStatus applies the status rule: while executions are outstanding the
// run stays IN_PROGRESS; once all are recorded, any failure or block makes
// the run FAILED, a full pass makes it PASSED, and anything else (skips,
// inconclusives) makes it COMPLETED.
func decideStatus(r rollup, total int) types.RunStatus {
	if r.executed < total {
		return types.RunStatusInProgress
	}
	switch {
	case r.failed > 0 || r.blocked > 0:
		return types.RunStatusFailed
	case r.passed == total:
		return types.RunStatusPassed
	default:
		return types.RunStatusCompleted
	}
}

// Recompute reloads a suite-run's executions, recomputes its counts and
// status, and mirrors both onto the parent run. When the run reaches a
// terminal status it publishes a completion event; event handling is
// best-effort and never affects the metrics write.
func (a *Aggregator) Recompute(ctx context.Context, suiteRunID string) (*types.SuiteRun, error) {
	suiteRun, err := a.store.GetSuiteRun(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}
	// Cancellation is final. A recompute triggered after cancel must not
	// reopen the run or disturb its frozen counts.
	if suiteRun.Status == types.RunStatusCancelled {
		return suiteRun, nil
	}
	executions, err := a.store.ListExecutions(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}

	r := tally(executions)
	status := decideStatus(r, suiteRun.Total)

	suiteRun.ExecutedCount = r.executed
	suiteRun.Passed = r.passed
	suiteRun.Failed = r.failed
	suiteRun.Blocked = r.blocked
	suiteRun.Skipped = r.skipped
	suiteRun.Inconclusive = r.inconclusive
	wasInProgress := suiteRun.Status == types.RunStatusInProgress || suiteRun.Status == types.RunStatusPlanned
	suiteRun.Status = status
	if status != types.RunStatusInProgress && wasInProgress && suiteRun.EndedAt == nil {
		now := time.Now()
		suiteRun.EndedAt = &now
	}

	err = a.store.Atomically(ctx, func(tx store.Store) error {
		if err := tx.UpdateSuiteRun(ctx, suiteRun); err != nil {
			return err
		}
		run, err := tx.GetRun(ctx, suiteRun.RunID)
		if err != nil {
			return err
		}
		run.Passed = r.passed
		run.Failed = r.failed
		run.Blocked = r.blocked
		run.Skipped = r.skipped
		run.Status = status
		run.EndedAt = suiteRun.EndedAt
		return tx.UpdateRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}

	if status.Terminal() {
		var duration time.Duration
		if suiteRun.EndedAt != nil {
			duration = suiteRun.EndedAt.Sub(suiteRun.StartedAt)
		}
		run, err := a.store.GetRun(ctx, suiteRun.RunID)
		if err != nil {
			return nil, err
		}
		metrics.RecordSuiteRunStatus(run.ProjectID, suiteRun.SuiteID, string(status), suiteRun.PassRate(), duration)

		if a.events != nil {
			suite, err := a.store.GetSuite(ctx, suiteRun.SuiteID)
			if err != nil {
				// The metrics write already succeeded; losing the event is
				// the contract for degraded collaborators.
				a.log.Error("failed to load suite for completion event",
					"suiteRunID", suiteRunID, "err", err)
				return suiteRun, nil
			}
			executionIDs := make([]string, 0, len(executions))
			for _, e := range executions {
				executionIDs = append(executionIDs, e.ID)
			}
			a.events.Publish(dispatch.RunCompletedEvent{
				SuiteRunID:   suiteRun.ID,
				SuiteID:      suite.ID,
				SuiteName:    suite.Name,
				ProjectID:    suite.ProjectID,
				Status:       status,
				Executed:     r.executed,
				Failed:       r.failed,
				Blocked:      r.blocked,
				ExecutionIDs: executionIDs,
			})
		}
	}

	return suiteRun, nil
}
