package types

import "time"

// Suite is a named, hierarchical grouping of test cases within a project.
// The parent chain is acyclic; a suite is never its own ancestor.
type Suite struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	Status      SuiteStatus
	ParentID    *string
	Archived    bool
	ArchivedAt  *time.Time
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SuiteMembership is the ordered association between a suite and a test case.
// OrderIndex values are unique within a suite.
type SuiteMembership struct {
	SuiteID    string
	TestCaseID string
	OrderIndex int
}

// SuitePatch describes a partial update to a suite. Nil fields are left
// untouched. ClearParent detaches the suite from its parent; it wins over
// ParentID when both are set.
type SuitePatch struct {
	Name        *string
	Description *string
	Status      *SuiteStatus
	ParentID    *string
	ClearParent bool
}

// CloneOptions controls how much of a suite a clone copies.
type CloneOptions struct {
	IncludeTestCases   bool
	IncludeChildSuites bool
}

// SuiteNode is a suite with its resolved children, as returned by the
// project hierarchy view.
type SuiteNode struct {
	Suite    Suite
	Children []*SuiteNode
}
