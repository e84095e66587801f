// Package testdeck wires the test-management engine together: the suite
// hierarchy store, the execution orchestrator, the metrics aggregator, the
// reporting service, and the side-effect dispatcher.
package testdeck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/testdeck/testdeck/aggregator"
	"github.com/testdeck/testdeck/dispatch"
	"github.com/testdeck/testdeck/hierarchy"
	"github.com/testdeck/testdeck/reporting"
	"github.com/testdeck/testdeck/runner"
	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// Engine is the top-level facade over the platform services. All operations
// exposed to callers go through it.
type Engine struct {
	config     *Config
	store      store.Store
	hierarchy  *hierarchy.Service
	runner     *runner.Orchestrator
	aggregator *aggregator.Aggregator
	reporting  *reporting.Service
	dispatcher *dispatch.Dispatcher

	running atomic.Bool
}

// Collaborators are the optional external systems the dispatcher fans
// completion events out to. Nil fields default to no-ops.
type Collaborators struct {
	Audit      dispatch.AuditLog
	Notifier   dispatch.Notifier
	Indexer    dispatch.SearchIndexer
	Membership dispatch.ProjectMembership
}

// New creates an engine on top of the given store.
func New(config *Config, st store.Store, collab Collaborators) (*Engine, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if config.Log == nil {
		config.Log = slog.Default()
	}
	audit := collab.Audit
	if audit == nil {
		audit = dispatch.LogAuditLog{Log: config.Log}
	}

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Notifier:   collab.Notifier,
		Indexer:    collab.Indexer,
		Membership: collab.Membership,
		Log:        config.Log,
		QueueSize:  config.DispatchQueueSize,
		Workers:    config.DispatchWorkers,
	})

	hier, err := hierarchy.NewService(hierarchy.Config{
		Store: st,
		Audit: audit,
		Log:   config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create hierarchy service: %w", err)
	}
	orch, err := runner.NewOrchestrator(runner.Config{
		Store: st,
		Audit: audit,
		Log:   config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	agg, err := aggregator.NewAggregator(aggregator.Config{
		Store:  st,
		Events: dispatcher,
		Log:    config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}
	rep, err := reporting.NewService(reporting.Config{
		Store: st,
		Log:   config.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reporting service: %w", err)
	}

	return &Engine{
		config:     config,
		store:      st,
		hierarchy:  hier,
		runner:     orch,
		aggregator: agg,
		reporting:  rep,
		dispatcher: dispatcher,
	}, nil
}

// Start begins background event dispatch.
func (e *Engine) Start(ctx context.Context) error {
	if e.running.Swap(true) {
		return errors.New("engine already started")
	}
	e.dispatcher.Start(ctx)
	e.config.Log.Info("engine started")
	return nil
}

// Stop drains the dispatch queue and stops background work.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.running.Swap(false) {
		return nil
	}
	e.dispatcher.Stop()
	e.config.Log.Info("engine stopped")
	return nil
}

// Stopped returns true if the engine is not running.
func (e *Engine) Stopped() bool {
	return !e.running.Load()
}

// Hierarchy exposes suite CRUD, tree and membership operations.
func (e *Engine) Hierarchy() *hierarchy.Service { return e.hierarchy }

// Runner exposes suite execution and cancellation.
func (e *Engine) Runner() *runner.Orchestrator { return e.runner }

// Reporting exposes run history, trends, reports and comparison.
func (e *Engine) Reporting() *reporting.Service { return e.reporting }

// Recompute re-derives a suite-run's counts and status from its executions.
func (e *Engine) Recompute(ctx context.Context, suiteRunID string) (*types.SuiteRun, error) {
	return e.aggregator.Recompute(ctx, suiteRunID)
}

// RecordResult records the outcome of one execution and recomputes the
// owning suite-run. Status transitions are externally driven; the engine only
// validates the status value and that the run is still open.
func (e *Engine) RecordResult(ctx context.Context, executionID string, status types.ExecutionStatus, executedBy string) (*types.SuiteRun, error) {
	if !status.Valid() {
		return nil, types.NewValidationError("invalid execution status %q", status)
	}
	execution, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if execution.SuiteRunID == nil {
		return nil, types.NewValidationError("execution %s does not belong to a suite run", executionID)
	}
	suiteRun, err := e.store.GetSuiteRun(ctx, *execution.SuiteRunID)
	if err != nil {
		return nil, err
	}
	if suiteRun.Status.Terminal() {
		return nil, types.NewStateError("suite run %s is %s and no longer accepts results", suiteRun.ID, suiteRun.Status)
	}
	if err := e.store.RecordExecution(ctx, executionID, status, executedBy, time.Now()); err != nil {
		return nil, err
	}
	return e.aggregator.Recompute(ctx, *execution.SuiteRunID)
}
