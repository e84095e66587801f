// Package store defines the persistence boundary of the engine and its two
// implementations: an in-memory store used by tests and a Postgres store
// backed by gorm.
package store

import (
	"context"
	"time"

	"github.com/testdeck/testdeck/types"
)

// RunQuery filters and pages suite-run listings. Results are always ordered
// most-recent-first by start time.
type RunQuery struct {
	Statuses []types.RunStatus
	Limit    int
	Offset   int
}

// Matches reports whether a status passes the query's status filter.
func (q RunQuery) Matches(status types.RunStatus) bool {
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Store is the persistence interface the engine is written against.
// Get methods return *types.NotFoundError when the row is absent.
type Store interface {
	// Atomically runs fn against a transactional view of the store. If fn
	// returns an error none of its writes are kept. The callback must use
	// the Store it is handed, not the outer one, and must not start a
	// nested transaction on the in-memory implementation.
	Atomically(ctx context.Context, fn func(Store) error) error

	// Ping reports whether the backing storage is reachable. The readiness
	// probe uses it.
	Ping(ctx context.Context) error

	// Suites
	CreateSuite(ctx context.Context, suite *types.Suite) error
	GetSuite(ctx context.Context, id string) (*types.Suite, error)
	UpdateSuite(ctx context.Context, suite *types.Suite) error
	DeleteSuite(ctx context.Context, id string) error
	ListProjectSuites(ctx context.Context, projectID string, includeArchived bool) ([]types.Suite, error)
	ListChildSuites(ctx context.Context, parentID string) ([]types.Suite, error)
	ActiveSuiteNameExists(ctx context.Context, projectID, name, excludeID string) (bool, error)

	// Suite membership
	AddMemberships(ctx context.Context, rows []types.SuiteMembership) error
	RemoveMemberships(ctx context.Context, suiteID string, testCaseIDs []string) error
	ListMemberships(ctx context.Context, suiteID string) ([]types.SuiteMembership, error)
	UpdateMembershipOrders(ctx context.Context, suiteID string, orders map[string]int) error

	// Test cases
	CreateTestCase(ctx context.Context, tc *types.TestCase) error
	GetTestCase(ctx context.Context, id string) (*types.TestCase, error)
	GetTestCases(ctx context.Context, ids []string) ([]types.TestCase, error)
	CreateTestStep(ctx context.Context, step *types.TestStep) error
	ListTestSteps(ctx context.Context, testCaseID string) ([]types.TestStep, error)

	// Runs and suite-runs
	CreateRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	UpdateRun(ctx context.Context, run *types.Run) error
	CreateSuiteRun(ctx context.Context, sr *types.SuiteRun) error
	GetSuiteRun(ctx context.Context, id string) (*types.SuiteRun, error)
	UpdateSuiteRun(ctx context.Context, sr *types.SuiteRun) error
	ListSuiteRuns(ctx context.Context, suiteID string, q RunQuery) ([]types.SuiteRun, error)
	ListProjectSuiteRuns(ctx context.Context, projectID string, q RunQuery) ([]types.SuiteRun, error)

	// Executions
	CreateExecutions(ctx context.Context, rows []types.Execution) error
	GetExecution(ctx context.Context, id string) (*types.Execution, error)
	ListExecutions(ctx context.Context, suiteRunID string) ([]types.Execution, error)
	RecordExecution(ctx context.Context, id string, status types.ExecutionStatus, executedBy string, at time.Time) error
	CreateExecutionSteps(ctx context.Context, rows []types.ExecutionStep) error
	ListExecutionSteps(ctx context.Context, executionID string) ([]types.ExecutionStep, error)

	// Defects
	CreateDefect(ctx context.Context, d *types.Defect) error
	LinkDefect(ctx context.Context, executionID, defectID string) error
	ListSuiteRunDefects(ctx context.Context, suiteRunID string) ([]types.Defect, error)
}
