package types

import "time"

// Run is the top-level execution aggregate a suite-run is nested inside.
// Its counts and status mirror the originating suite-run's.
type Run struct {
	ID         string
	ProjectID  string
	SuiteRunID *string
	Name       string
	Total      int
	Passed     int
	Failed     int
	Blocked    int
	Skipped    int
	Status     RunStatus
	StartedAt  time.Time
	EndedAt    *time.Time
	ExecutedBy string
	CreatedAt  time.Time
}

// SuiteRun is one execution attempt of a suite's test-case membership.
// Total is fixed at creation; the rollup counters and status are recomputed
// by the aggregator from the linked executions.
type SuiteRun struct {
	ID           string
	SuiteID      string
	RunID        string
	Name         string
	Description  string
	Environment  string
	BuildVersion string

	Total         int
	ExecutedCount int
	Passed        int
	Failed        int
	Blocked       int
	Skipped       int
	Inconclusive  int

	// Execution options snapshot, recorded at creation.
	StopOnFailure     bool
	CascadeToChildren bool

	Status     RunStatus
	StartedAt  time.Time
	EndedAt    *time.Time
	ExecutedBy string
	CreatedAt  time.Time
}

// PassRate returns passed/total as a percentage, 0 when the run is empty.
func (sr *SuiteRun) PassRate() float64 {
	if sr.Total == 0 {
		return 0
	}
	return float64(sr.Passed) / float64(sr.Total) * 100
}

// DurationSeconds returns the whole-second run duration, nil if the run has
// not ended.
func (sr *SuiteRun) DurationSeconds() *int64 {
	if sr.EndedAt == nil {
		return nil
	}
	secs := int64(sr.EndedAt.Sub(sr.StartedAt).Seconds())
	return &secs
}

// Execution records one test case being run once within a run. Rows are
// seeded with status BLOCKED and a nil ExecutedAt; the recording path sets
// both when a result arrives.
type Execution struct {
	ID         string
	RunID      string
	SuiteRunID *string
	TestCaseID string
	Status     ExecutionStatus
	ExecutedBy string
	ExecutedAt *time.Time
	CreatedAt  time.Time
}

// Executed reports whether a result has been recorded for this execution.
func (e *Execution) Executed() bool {
	return e.ExecutedAt != nil
}

// ExecutionStep mirrors one test step of the case at execution-creation
// time. Seeded SKIPPED; not kept in sync with later step edits.
type ExecutionStep struct {
	ID          string
	ExecutionID string
	TestStepID  string
	Status      ExecutionStatus
}

// RunOptions is the caller-supplied configuration for executing a suite.
type RunOptions struct {
	Name         string
	Description  string
	Environment  string
	BuildVersion string

	// StopOnFailure is recorded on the suite-run but not enforced by the
	// engine; result recording is externally driven.
	StopOnFailure     bool
	CascadeToChildren bool
}

// NewRunOptions returns run options with defaults applied: cascading into
// child suites is on unless explicitly disabled.
func NewRunOptions() RunOptions {
	return RunOptions{CascadeToChildren: true}
}

// Defect is a tracked failure linked to one or more executions.
type Defect struct {
	ID        string
	ProjectID string
	Title     string
	Severity  string
	CreatedBy string
	CreatedAt time.Time
}
