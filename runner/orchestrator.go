// Package runner executes suites: it validates preconditions, materializes
// the run/suite-run/execution record set, and optionally cascades into child
// suites.
package runner

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

// Config holds configuration for creating an Orchestrator.
type Config struct {
	Store store.Store
	Audit dispatch.AuditLog
	Log   *slog.Logger
}

// Orchestrator coordinates suite execution.
type Orchestrator struct {
	store store.Store
	audit dispatch.AuditLog
	log   *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Audit == nil {
		cfg.Audit = dispatch.NopAuditLog{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Orchestrator{store: cfg.Store, audit: cfg.Audit, log: cfg.Log}, nil
}

// executeItem is one unit of cascade work: run the suite under the given
// display name.
type executeItem struct {
	suiteID string
	name    string
}

// Execute runs a suite: it creates a Run and SuiteRun, one BLOCKED Execution
// per member test case, and SKIPPED ExecutionStep rows mirroring each case's
// steps. With CascadeToChildren set it then executes every non-archived
// child suite depth-first and sequentially; each child produces its own
// independent Run/SuiteRun pair and is not folded into the parent's counts.
//
// The cascade walks an explicit worklist rather than recursing, so tree
// depth cannot grow the stack. There is no cancellation of an in-flight
// cascade; Cancel only marks rows after the fact.
func (o *Orchestrator) Execute(ctx context.Context, suiteID string, opts types.RunOptions, executedBy string) (*types.SuiteRunDetail, error) {
	root, err := o.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if root.Archived {
		return nil, types.NewStateError("suite %q is archived and cannot be executed", root.Name)
	}

	rootName := opts.Name
	if rootName == "" {
		rootName = root.Name
	}

	var rootRunID string
	work := []executeItem{{suiteID: suiteID, name: rootName}}
	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]

		suiteRun, err := o.executeOne(ctx, item, opts, executedBy)
		if err != nil {
			if rootRunID != "" {
				// The parent's records are already committed; surface the
				// child failure with enough context to find them.
				return nil, fmt.Errorf("cascade failed for suite %s after creating suite run %s: %w",
					item.suiteID, rootRunID, err)
			}
			return nil, err
		}
		if rootRunID == "" {
			rootRunID = suiteRun.ID
		}

		if opts.CascadeToChildren {
			children, err := o.store.ListChildSuites(ctx, item.suiteID)
			if err != nil {
				return nil, err
			}
			// Reverse push so the LIFO worklist pops children in list order.
			for i := len(children) - 1; i >= 0; i-- {
				child := children[i]
				if child.Archived {
					continue
				}
				work = append(work, executeItem{
					suiteID: child.ID,
					name:    item.name + " > " + child.Name,
				})
			}
		}
	}

	return o.GetSuiteRun(ctx, rootRunID)
}

// executeOne validates and materializes a single suite's record set inside
// one storage transaction.
func (o *Orchestrator) executeOne(ctx context.Context, item executeItem, opts types.RunOptions, executedBy string) (*types.SuiteRun, error) {
	suite, err := o.store.GetSuite(ctx, item.suiteID)
	if err != nil {
		return nil, err
	}
	if suite.Archived {
		return nil, types.NewStateError("suite %q is archived and cannot be executed", suite.Name)
	}

	members, err := o.store.ListMemberships(ctx, item.suiteID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.TestCaseID)
	}
	all, err := o.store.GetTestCases(ctx, ids)
	if err != nil {
		return nil, err
	}
	cases := make([]types.TestCase, 0, len(all))
	for _, tc := range all {
		if !tc.Deleted {
			cases = append(cases, tc)
		}
	}
	if len(cases) == 0 {
		return nil, types.NewValidationError("suite %q has no test cases to execute", suite.Name)
	}

	itemOpts := opts
	itemOpts.Name = item.name

	var suiteRun *types.SuiteRun
	now := time.Now()
	err = o.store.Atomically(ctx, func(tx store.Store) error {
		suiteRun, err = materializeRun(ctx, tx, suite, cases, itemOpts, executedBy, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSuiteRunStarted(suite.ProjectID, suite.ID, len(cases))
	o.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.execute",
		ResourceType: "suite_run",
		ResourceID:   suiteRun.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("executed suite %q with %d test cases", suite.Name, len(cases)),
	})
	o.log.Info("suite run created",
		"suiteID", suite.ID,
		"suiteRunID", suiteRun.ID,
		"testCases", len(cases))
	return suiteRun, nil
}

// GetSuiteRun returns a suite-run joined with its suite, parent run and
// executions.
func (o *Orchestrator) GetSuiteRun(ctx context.Context, suiteRunID string) (*types.SuiteRunDetail, error) {
	suiteRun, err := o.store.GetSuiteRun(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}
	suite, err := o.store.GetSuite(ctx, suiteRun.SuiteID)
	if err != nil {
		return nil, err
	}
	run, err := o.store.GetRun(ctx, suiteRun.RunID)
	if err != nil {
		return nil, err
	}
	executions, err := o.store.ListExecutions(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}
	return &types.SuiteRunDetail{
		SuiteRun:  *suiteRun,
		SuiteName: suite.Name,
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
		Executions: executions,
	}, nil
}

// Cancel marks an IN_PROGRESS or PLANNED suite-run (and its parent run) as
// CANCELLED. It does not halt record creation already in flight.
func (o *Orchestrator) Cancel(ctx context.Context, suiteRunID string) (*types.SuiteRun, error) {
	suiteRun, err := o.store.GetSuiteRun(ctx, suiteRunID)
	if err != nil {
		return nil, err
	}
	if suiteRun.Status != types.RunStatusInProgress && suiteRun.Status != types.RunStatusPlanned {
		return nil, types.NewStateError("suite run %s is %s and cannot be cancelled", suiteRun.ID, suiteRun.Status)
	}

	now := time.Now()
	err = o.store.Atomically(ctx, func(tx store.Store) error {
		suiteRun.Status = types.RunStatusCancelled
		suiteRun.EndedAt = &now
		if err := tx.UpdateSuiteRun(ctx, suiteRun); err != nil {
			return err
		}
		run, err := tx.GetRun(ctx, suiteRun.RunID)
		if err != nil {
			return err
		}
		run.Status = types.RunStatusCancelled
		run.EndedAt = &now
		return tx.UpdateRun(ctx, run)
	})
	if err != nil {
		return nil, err
	}

	o.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite_run.cancel",
		ResourceType: "suite_run",
		ResourceID:   suiteRun.ID,
		Description:  fmt.Sprintf("cancelled suite run %s", suiteRun.ID),
	})
	return suiteRun, nil
}

// recordAudit is best-effort: audit failures are logged, never propagated.
func (o *Orchestrator) recordAudit(ctx context.Context, entry dispatch.AuditEntry) {
	if err := o.audit.Record(ctx, entry); err != nil {
		o.log.Warn("failed to record audit entry", "action", entry.Action, "err", err)
	}
}
