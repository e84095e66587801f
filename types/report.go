package types

import "time"

// RunSummary is the condensed parent-run view attached to history entries
// and suite-run details.
type RunSummary struct {
	ID        string
	Status    RunStatus
	Total     int
	Passed    int
	Failed    int
	Blocked   int
	Skipped   int
	StartedAt time.Time
	EndedAt   *time.Time
}

// SuiteRunDetail is a suite-run joined with its suite, parent run and
// execution list, as returned by the execute and get-by-id read paths.
type SuiteRunDetail struct {
	SuiteRun   SuiteRun
	SuiteName  string
	Run        RunSummary
	Executions []Execution
}

// HistoryEntry pairs a historical suite-run with its executor and parent-run
// summary.
type HistoryEntry struct {
	SuiteRun   SuiteRun
	ExecutedBy string
	Run        RunSummary
}

// TrendPoint is one suite-run's contribution to the trend series.
type TrendPoint struct {
	SuiteRunID      string
	Status          RunStatus
	PassRate        float64
	DurationSeconds *int64
	StartedAt       time.Time
}

// TrendSummary is the chronological trend series plus its means. The
// duration mean only covers runs that have a duration.
type TrendSummary struct {
	Points              []TrendPoint
	MeanPassRate        float64
	MeanDurationSeconds *float64
}

// ExecutionDetail is an execution joined with its test-case title for
// report display.
type ExecutionDetail struct {
	Execution
	TestCaseTitle string
}

// RunReport is the full execution detail of one suite-run, grouped by
// status, with the de-duplicated set of linked defects.
type RunReport struct {
	SuiteRun        SuiteRun
	SuiteName       string
	ByStatus        map[ExecutionStatus][]ExecutionDetail
	PassRate        float64
	DurationSeconds *int64
	Defects         []Defect
}

// RunComparison is the diff of two suite-runs of the same suite. Deltas are
// target minus base; NewFailures and FixedTests are test-case IDs.
type RunComparison struct {
	Base                 RunReport
	Target               RunReport
	PassRateDelta        float64
	DurationDeltaSeconds *int64
	NewFailures          []string
	FixedTests           []string
}
