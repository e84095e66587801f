package types

// SuiteStatus represents the lifecycle state of a suite
type SuiteStatus string

const (
	SuiteStatusActive     SuiteStatus = "ACTIVE"
	SuiteStatusArchived   SuiteStatus = "ARCHIVED"
	SuiteStatusDeprecated SuiteStatus = "DEPRECATED"
)

// RunStatus represents the state of a run or suite-run
type RunStatus string

const (
	RunStatusPlanned    RunStatus = "PLANNED"
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusPassed     RunStatus = "PASSED"
	RunStatusFailed     RunStatus = "FAILED"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusCancelled  RunStatus = "CANCELLED"
)

// Terminal reports whether the run has reached a final state.
// Cancelled runs are terminal but are excluded from trend analysis,
// see TrendStatuses.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusPassed, RunStatusFailed, RunStatusCompleted, RunStatusCancelled:
		return true
	}
	return false
}

// TrendStatuses is the set of statuses considered by trend analysis.
var TrendStatuses = []RunStatus{RunStatusPassed, RunStatusFailed, RunStatusCompleted}

// ExecutionStatus represents the recorded outcome of a single execution
type ExecutionStatus string

const (
	ExecutionStatusBlocked      ExecutionStatus = "BLOCKED"
	ExecutionStatusPassed       ExecutionStatus = "PASSED"
	ExecutionStatusFailed       ExecutionStatus = "FAILED"
	ExecutionStatusSkipped      ExecutionStatus = "SKIPPED"
	ExecutionStatusInconclusive ExecutionStatus = "INCONCLUSIVE"
)

// Valid reports whether the status is one of the recordable outcomes.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusBlocked, ExecutionStatusPassed, ExecutionStatusFailed,
		ExecutionStatusSkipped, ExecutionStatusInconclusive:
		return true
	}
	return false
}
