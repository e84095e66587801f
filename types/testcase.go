package types

import "time"

// TestCase is the unit of work a suite groups and a run executes.
// Deleted is a soft-delete marker; deleted cases are excluded from
// membership validation and from execution.
type TestCase struct {
	ID        string
	ProjectID string
	Title     string
	Deleted   bool
	CreatedBy string
	CreatedAt time.Time
}

// TestStep is one step of a test case, ordered by Position.
type TestStep struct {
	ID         string
	TestCaseID string
	Position   int
	Action     string
	Expected   string
}
