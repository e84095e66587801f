package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/testdeck/testdeck/types"
)

// Compile-time contract assertion.
var _ Store = (*MemStore)(nil)

// MemStore is an in-memory Store. It backs the test suites and is usable as
// a standalone store for local experimentation. Transactions are implemented
// by snapshotting the whole state and restoring it on error; concurrent
// transactions are serialized.
type MemStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	s    memState
}

type memState struct {
	suites           map[string]types.Suite
	memberships      map[string][]types.SuiteMembership
	testCases        map[string]types.TestCase
	testSteps        map[string][]types.TestStep
	runs             map[string]types.Run
	suiteRuns        map[string]types.SuiteRun
	executions       map[string]types.Execution
	executionsByRun  map[string][]string
	executionSteps   map[string][]types.ExecutionStep
	defects          map[string]types.Defect
	executionDefects map[string][]string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{s: newMemState()}
}

func newMemState() memState {
	return memState{
		suites:           make(map[string]types.Suite),
		memberships:      make(map[string][]types.SuiteMembership),
		testCases:        make(map[string]types.TestCase),
		testSteps:        make(map[string][]types.TestStep),
		runs:             make(map[string]types.Run),
		suiteRuns:        make(map[string]types.SuiteRun),
		executions:       make(map[string]types.Execution),
		executionsByRun:  make(map[string][]string),
		executionSteps:   make(map[string][]types.ExecutionStep),
		defects:          make(map[string]types.Defect),
		executionDefects: make(map[string][]string),
	}
}

func (s memState) clone() memState {
	c := newMemState()
	for k, v := range s.suites {
		c.suites[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = append([]types.SuiteMembership(nil), v...)
	}
	for k, v := range s.testCases {
		c.testCases[k] = v
	}
	for k, v := range s.testSteps {
		c.testSteps[k] = append([]types.TestStep(nil), v...)
	}
	for k, v := range s.runs {
		c.runs[k] = v
	}
	for k, v := range s.suiteRuns {
		c.suiteRuns[k] = v
	}
	for k, v := range s.executions {
		c.executions[k] = v
	}
	for k, v := range s.executionsByRun {
		c.executionsByRun[k] = append([]string(nil), v...)
	}
	for k, v := range s.executionSteps {
		c.executionSteps[k] = append([]types.ExecutionStep(nil), v...)
	}
	for k, v := range s.defects {
		c.defects[k] = v
	}
	for k, v := range s.executionDefects {
		c.executionDefects[k] = append([]string(nil), v...)
	}
	return c
}

// Atomically serializes the callback against all other transactions and
// rolls the whole state back if it fails.
func (m *MemStore) Atomically(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.s.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.s = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// Ping always succeeds; the in-memory store has no backing service.
func (m *MemStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemStore) CreateSuite(ctx context.Context, suite *types.Suite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.suites[suite.ID] = *suite
	return nil
}

func (m *MemStore) GetSuite(ctx context.Context, id string) (*types.Suite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	suite, ok := m.s.suites[id]
	if !ok {
		return nil, types.NewNotFoundError("suite", id)
	}
	return &suite, nil
}

func (m *MemStore) UpdateSuite(ctx context.Context, suite *types.Suite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.suites[suite.ID]; !ok {
		return types.NewNotFoundError("suite", suite.ID)
	}
	m.s.suites[suite.ID] = *suite
	return nil
}

func (m *MemStore) DeleteSuite(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.suites[id]; !ok {
		return types.NewNotFoundError("suite", id)
	}
	delete(m.s.suites, id)
	delete(m.s.memberships, id)
	return nil
}

func (m *MemStore) ListProjectSuites(ctx context.Context, projectID string, includeArchived bool) ([]types.Suite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Suite
	for _, suite := range m.s.suites {
		if suite.ProjectID != projectID {
			continue
		}
		if suite.Archived && !includeArchived {
			continue
		}
		out = append(out, suite)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) ListChildSuites(ctx context.Context, parentID string) ([]types.Suite, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.Suite
	for _, suite := range m.s.suites {
		if suite.ParentID != nil && *suite.ParentID == parentID {
			out = append(out, suite)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) ActiveSuiteNameExists(ctx context.Context, projectID, name, excludeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, suite := range m.s.suites {
		if suite.ProjectID == projectID && suite.Name == name && !suite.Archived && suite.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) AddMemberships(ctx context.Context, rows []types.SuiteMembership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.s.memberships[row.SuiteID] = append(m.s.memberships[row.SuiteID], row)
	}
	return nil
}

func (m *MemStore) RemoveMemberships(ctx context.Context, suiteID string, testCaseIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(testCaseIDs))
	for _, id := range testCaseIDs {
		drop[id] = true
	}
	kept := m.s.memberships[suiteID][:0]
	for _, row := range m.s.memberships[suiteID] {
		if !drop[row.TestCaseID] {
			kept = append(kept, row)
		}
	}
	m.s.memberships[suiteID] = kept
	return nil
}

func (m *MemStore) ListMemberships(ctx context.Context, suiteID string) ([]types.SuiteMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]types.SuiteMembership(nil), m.s.memberships[suiteID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (m *MemStore) UpdateMembershipOrders(ctx context.Context, suiteID string, orders map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.s.memberships[suiteID]
	for i, row := range rows {
		if order, ok := orders[row.TestCaseID]; ok {
			rows[i].OrderIndex = order
		}
	}
	return nil
}

func (m *MemStore) CreateTestCase(ctx context.Context, tc *types.TestCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.testCases[tc.ID] = *tc
	return nil
}

func (m *MemStore) GetTestCase(ctx context.Context, id string) (*types.TestCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tc, ok := m.s.testCases[id]
	if !ok {
		return nil, types.NewNotFoundError("test case", id)
	}
	return &tc, nil
}

func (m *MemStore) GetTestCases(ctx context.Context, ids []string) ([]types.TestCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.TestCase, 0, len(ids))
	for _, id := range ids {
		if tc, ok := m.s.testCases[id]; ok {
			out = append(out, tc)
		}
	}
	return out, nil
}

func (m *MemStore) CreateTestStep(ctx context.Context, step *types.TestStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.testSteps[step.TestCaseID] = append(m.s.testSteps[step.TestCaseID], *step)
	return nil
}

func (m *MemStore) ListTestSteps(ctx context.Context, testCaseID string) ([]types.TestStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]types.TestStep(nil), m.s.testSteps[testCaseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemStore) CreateRun(ctx context.Context, run *types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.runs[run.ID] = *run
	return nil
}

func (m *MemStore) GetRun(ctx context.Context, id string) (*types.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.s.runs[id]
	if !ok {
		return nil, types.NewNotFoundError("run", id)
	}
	return &run, nil
}

func (m *MemStore) UpdateRun(ctx context.Context, run *types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.runs[run.ID]; !ok {
		return types.NewNotFoundError("run", run.ID)
	}
	m.s.runs[run.ID] = *run
	return nil
}

func (m *MemStore) CreateSuiteRun(ctx context.Context, sr *types.SuiteRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.suiteRuns[sr.ID] = *sr
	return nil
}

func (m *MemStore) GetSuiteRun(ctx context.Context, id string) (*types.SuiteRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sr, ok := m.s.suiteRuns[id]
	if !ok {
		return nil, types.NewNotFoundError("suite run", id)
	}
	return &sr, nil
}

func (m *MemStore) UpdateSuiteRun(ctx context.Context, sr *types.SuiteRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.suiteRuns[sr.ID]; !ok {
		return types.NewNotFoundError("suite run", sr.ID)
	}
	m.s.suiteRuns[sr.ID] = *sr
	return nil
}

func (m *MemStore) ListSuiteRuns(ctx context.Context, suiteID string, q RunQuery) ([]types.SuiteRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.SuiteRun
	for _, sr := range m.s.suiteRuns {
		if sr.SuiteID == suiteID && q.Matches(sr.Status) {
			out = append(out, sr)
		}
	}
	return pageSuiteRuns(out, q), nil
}

func (m *MemStore) ListProjectSuiteRuns(ctx context.Context, projectID string, q RunQuery) ([]types.SuiteRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.SuiteRun
	for _, sr := range m.s.suiteRuns {
		run, ok := m.s.runs[sr.RunID]
		if !ok || run.ProjectID != projectID {
			continue
		}
		if q.Matches(sr.Status) {
			out = append(out, sr)
		}
	}
	return pageSuiteRuns(out, q), nil
}

// pageSuiteRuns orders most-recent-first and applies offset/limit.
func pageSuiteRuns(runs []types.SuiteRun, q RunQuery) []types.SuiteRun {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if q.Offset > 0 {
		if q.Offset >= len(runs) {
			return nil
		}
		runs = runs[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(runs) {
		runs = runs[:q.Limit]
	}
	return runs
}

func (m *MemStore) CreateExecutions(ctx context.Context, rows []types.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.s.executions[row.ID] = row
		if row.SuiteRunID != nil {
			m.s.executionsByRun[*row.SuiteRunID] = append(m.s.executionsByRun[*row.SuiteRunID], row.ID)
		}
	}
	return nil
}

func (m *MemStore) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.s.executions[id]
	if !ok {
		return nil, types.NewNotFoundError("execution", id)
	}
	return &e, nil
}

func (m *MemStore) ListExecutions(ctx context.Context, suiteRunID string) ([]types.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.s.executionsByRun[suiteRunID]
	out := make([]types.Execution, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.s.executions[id])
	}
	return out, nil
}

func (m *MemStore) RecordExecution(ctx context.Context, id string, status types.ExecutionStatus, executedBy string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.s.executions[id]
	if !ok {
		return types.NewNotFoundError("execution", id)
	}
	e.Status = status
	e.ExecutedBy = executedBy
	e.ExecutedAt = &at
	m.s.executions[id] = e
	return nil
}

func (m *MemStore) CreateExecutionSteps(ctx context.Context, rows []types.ExecutionStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.s.executionSteps[row.ExecutionID] = append(m.s.executionSteps[row.ExecutionID], row)
	}
	return nil
}

func (m *MemStore) ListExecutionSteps(ctx context.Context, executionID string) ([]types.ExecutionStep, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.ExecutionStep(nil), m.s.executionSteps[executionID]...), nil
}

func (m *MemStore) CreateDefect(ctx context.Context, d *types.Defect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.defects[d.ID] = *d
	return nil
}

func (m *MemStore) LinkDefect(ctx context.Context, executionID, defectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.executions[executionID]; !ok {
		return types.NewNotFoundError("execution", executionID)
	}
	if _, ok := m.s.defects[defectID]; !ok {
		return types.NewNotFoundError("defect", defectID)
	}
	m.s.executionDefects[executionID] = append(m.s.executionDefects[executionID], defectID)
	return nil
}

func (m *MemStore) ListSuiteRunDefects(ctx context.Context, suiteRunID string) ([]types.Defect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []types.Defect
	for _, execID := range m.s.executionsByRun[suiteRunID] {
		for _, defectID := range m.s.executionDefects[execID] {
			if seen[defectID] {
				continue
			}
			seen[defectID] = true
			if d, ok := m.s.defects[defectID]; ok {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
