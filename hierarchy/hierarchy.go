// Package hierarchy implements CRUD and tree operations on suites: create,
// rename, reparent with cycle checks, archive/restore, clone, and test-case
// membership management.
package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/testdeck/testdeck/dispatch"
	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// cloneSuffix is appended to child suite names during a recursive clone so
// the copies do not collide with their sources.
const cloneSuffix = " (copy)"

// Config holds configuration for creating a Service.
type Config struct {
	Store store.Store
	Audit dispatch.AuditLog
	Log   *slog.Logger
}

// Service is the suite hierarchy store.
type Service struct {
	store store.Store
	audit dispatch.AuditLog
	log   *slog.Logger
}

// NewService creates a hierarchy service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Audit == nil {
		cfg.Audit = dispatch.NopAuditLog{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Service{store: cfg.Store, audit: cfg.Audit, log: cfg.Log}, nil
}

// CreateInput is the request to create a suite.
type CreateInput struct {
	ProjectID   string
	Name        string
	Description string
	Status      types.SuiteStatus
	ParentID    *string
	CreatedBy   string
}

// Create creates a suite. The name must be unique among the project's
// non-archived suites, and the parent (if any) must belong to the same
// project.
func (s *Service) Create(ctx context.Context, in CreateInput) (*types.Suite, error) {
	if in.Name == "" {
		return nil, types.NewValidationError("suite name is required")
	}
	if in.Status == "" {
		in.Status = types.SuiteStatusActive
	}
	taken, err := s.store.ActiveSuiteNameExists(ctx, in.ProjectID, in.Name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, types.NewValidationError("suite name %q already exists in project", in.Name)
	}
	if in.ParentID != nil {
		parent, err := s.store.GetSuite(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.ProjectID != in.ProjectID {
			return nil, types.NewValidationError("parent suite belongs to a different project")
		}
	}

	now := time.Now()
	suite := &types.Suite{
		ID:          uuid.New().String(),
		ProjectID:   in.ProjectID,
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		ParentID:    in.ParentID,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSuite(ctx, suite); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.create",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("created suite %q", suite.Name),
		NewValues:    map[string]any{"name": suite.Name, "parentId": in.ParentID},
	})
	return suite, nil
}

// Get returns one suite.
func (s *Service) Get(ctx context.Context, suiteID string) (*types.Suite, error) {
	return s.store.GetSuite(ctx, suiteID)
}

// Update applies a partial update. Archived suites reject mutation. A parent
// change is validated against project membership and the suite's own
// descendant chain.
func (s *Service) Update(ctx context.Context, suiteID string, patch types.SuitePatch) (*types.Suite, error) {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if suite.Archived {
		return nil, types.NewStateError("suite %q is archived and cannot be modified", suite.Name)
	}
	old := map[string]any{"name": suite.Name, "parentId": suite.ParentID}

	if patch.Name != nil && *patch.Name != suite.Name {
		taken, err := s.store.ActiveSuiteNameExists(ctx, suite.ProjectID, *patch.Name, suite.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, types.NewValidationError("suite name %q already exists in project", *patch.Name)
		}
		suite.Name = *patch.Name
	}
	if patch.Description != nil {
		suite.Description = *patch.Description
	}
	if patch.Status != nil {
		suite.Status = *patch.Status
	}
	switch {
	case patch.ClearParent:
		suite.ParentID = nil
	case patch.ParentID != nil:
		if err := s.validateReparent(ctx, suite, *patch.ParentID); err != nil {
			return nil, err
		}
		suite.ParentID = patch.ParentID
	}

	suite.UpdatedAt = time.Now()
	if err := s.store.UpdateSuite(ctx, suite); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.update",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("updated suite %q", suite.Name),
		OldValues:    old,
		NewValues:    map[string]any{"name": suite.Name, "parentId": suite.ParentID},
	})
	return suite, nil
}

// validateReparent checks that the candidate parent exists, belongs to the
// same project, and is neither the suite itself nor one of its descendants.
// The descendant check walks the parent chain upward from the candidate,
// O(depth), with a visited-set guard against already-corrupt chains.
func (s *Service) validateReparent(ctx context.Context, suite *types.Suite, newParentID string) error {
	if newParentID == suite.ID {
		return types.NewValidationError("suite cannot be its own parent")
	}
	parent, err := s.store.GetSuite(ctx, newParentID)
	if err != nil {
		return err
	}
	if parent.ProjectID != suite.ProjectID {
		return types.NewValidationError("parent suite belongs to a different project")
	}

	visited := map[string]bool{}
	cursor := parent
	for {
		if cursor.ID == suite.ID {
			return types.NewValidationError("cannot move suite %q under its own descendant", suite.Name)
		}
		if visited[cursor.ID] {
			return types.NewValidationError("suite parent chain contains a cycle at %q", cursor.Name)
		}
		visited[cursor.ID] = true
		if cursor.ParentID == nil {
			return nil
		}
		cursor, err = s.store.GetSuite(ctx, *cursor.ParentID)
		if err != nil {
			return err
		}
	}
}

// Delete hard-deletes a suite and its membership rows. It fails while any
// child suite row exists, archived or not, so no child is left with a
// dangling parent reference.
func (s *Service) Delete(ctx context.Context, suiteID string) error {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return err
	}
	children, err := s.store.ListChildSuites(ctx, suiteID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return types.NewStateError("suite %q has %d child suites and cannot be deleted", suite.Name, len(children))
	}
	if err := s.store.DeleteSuite(ctx, suiteID); err != nil {
		return err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.delete",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("deleted suite %q", suite.Name),
		OldValues:    map[string]any{"name": suite.Name},
	})
	return nil
}

// Archive soft-deletes a suite: mutation is blocked, reads still work.
func (s *Service) Archive(ctx context.Context, suiteID string) (*types.Suite, error) {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if suite.Archived {
		return nil, types.NewStateError("suite %q is already archived", suite.Name)
	}
	now := time.Now()
	suite.Archived = true
	suite.ArchivedAt = &now
	suite.Status = types.SuiteStatusArchived
	suite.UpdatedAt = now
	if err := s.store.UpdateSuite(ctx, suite); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.archive",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("archived suite %q", suite.Name),
	})
	return suite, nil
}

// Restore reverses an archive.
func (s *Service) Restore(ctx context.Context, suiteID string) (*types.Suite, error) {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if !suite.Archived {
		return nil, types.NewStateError("suite %q is not archived", suite.Name)
	}
	suite.Archived = false
	suite.ArchivedAt = nil
	suite.Status = types.SuiteStatusActive
	suite.UpdatedAt = time.Now()
	if err := s.store.UpdateSuite(ctx, suite); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.restore",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("restored suite %q", suite.Name),
	})
	return suite, nil
}

// cloneItem is one unit of clone work: copy the suite identified by src
// under newParentID with the given name.
type cloneItem struct {
	src         types.Suite
	name        string
	newParentID *string
}

// Clone deep-copies a suite under a new name. Membership rows are duplicated
// preserving order when IncludeTestCases is set; child suites are copied
// recursively (renamed with a deterministic suffix) when IncludeChildSuites
// is set. A name collision at any level fails the whole operation.
func (s *Service) Clone(ctx context.Context, suiteID, newName string, opts types.CloneOptions, actor string) (*types.Suite, error) {
	if newName == "" {
		return nil, types.NewValidationError("clone name is required")
	}
	src, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	var root *types.Suite
	err = s.store.Atomically(ctx, func(tx store.Store) error {
		// Depth-first over an explicit worklist rather than recursion, so a
		// deep tree cannot grow the stack.
		work := []cloneItem{{src: *src, name: newName, newParentID: src.ParentID}}
		for len(work) > 0 {
			item := work[len(work)-1]
			work = work[:len(work)-1]

			taken, err := tx.ActiveSuiteNameExists(ctx, item.src.ProjectID, item.name, "")
			if err != nil {
				return err
			}
			if taken {
				return types.NewValidationError("suite name %q already exists in project", item.name)
			}

			now := time.Now()
			dup := &types.Suite{
				ID:          uuid.New().String(),
				ProjectID:   item.src.ProjectID,
				Name:        item.name,
				Description: item.src.Description,
				Status:      types.SuiteStatusActive,
				ParentID:    item.newParentID,
				CreatedBy:   actor,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.CreateSuite(ctx, dup); err != nil {
				return err
			}
			if root == nil {
				root = dup
			}

			if opts.IncludeTestCases {
				members, err := tx.ListMemberships(ctx, item.src.ID)
				if err != nil {
					return err
				}
				rows := make([]types.SuiteMembership, 0, len(members))
				for _, m := range members {
					rows = append(rows, types.SuiteMembership{
						SuiteID:    dup.ID,
						TestCaseID: m.TestCaseID,
						OrderIndex: m.OrderIndex,
					})
				}
				if err := tx.AddMemberships(ctx, rows); err != nil {
					return err
				}
			}

			if opts.IncludeChildSuites {
				children, err := tx.ListChildSuites(ctx, item.src.ID)
				if err != nil {
					return err
				}
				for _, child := range children {
					work = append(work, cloneItem{
						src:         child,
						name:        child.Name + cloneSuffix,
						newParentID: &dup.ID,
					})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.clone",
		ResourceType: "suite",
		ResourceID:   root.ID,
		ProjectID:    root.ProjectID,
		Description:  fmt.Sprintf("cloned suite %q as %q", src.Name, root.Name),
		NewValues:    map[string]any{"sourceId": src.ID},
	})
	return root, nil
}

// AddTestCases appends test cases to a suite's membership. Already-present
// cases are silently skipped. All requested cases must exist, be
// non-deleted, and belong to the suite's project.
func (s *Service) AddTestCases(ctx context.Context, suiteID string, testCaseIDs []string) error {
	suite, err := s.mutableSuite(ctx, suiteID)
	if err != nil {
		return err
	}
	cases, err := s.store.GetTestCases(ctx, testCaseIDs)
	if err != nil {
		return err
	}
	byID := make(map[string]types.TestCase, len(cases))
	for _, tc := range cases {
		byID[tc.ID] = tc
	}
	for _, id := range testCaseIDs {
		tc, ok := byID[id]
		if !ok {
			return types.NewNotFoundError("test case", id)
		}
		if tc.Deleted {
			return types.NewValidationError("test case %s is deleted", id)
		}
		if tc.ProjectID != suite.ProjectID {
			return types.NewValidationError("test case %s belongs to a different project", id)
		}
	}

	members, err := s.store.ListMemberships(ctx, suiteID)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(members))
	nextOrder := 0
	for _, m := range members {
		present[m.TestCaseID] = true
		if m.OrderIndex >= nextOrder {
			nextOrder = m.OrderIndex + 1
		}
	}

	var rows []types.SuiteMembership
	for _, id := range testCaseIDs {
		if present[id] {
			continue
		}
		present[id] = true
		rows = append(rows, types.SuiteMembership{
			SuiteID:    suiteID,
			TestCaseID: id,
			OrderIndex: nextOrder,
		})
		nextOrder++
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.store.AddMemberships(ctx, rows); err != nil {
		return err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.add_test_cases",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("added %d test cases to suite %q", len(rows), suite.Name),
	})
	return nil
}

// RemoveTestCases removes the given test cases from a suite's membership.
func (s *Service) RemoveTestCases(ctx context.Context, suiteID string, testCaseIDs []string) error {
	suite, err := s.mutableSuite(ctx, suiteID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveMemberships(ctx, suiteID, testCaseIDs); err != nil {
		return err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.remove_test_cases",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("removed %d test cases from suite %q", len(testCaseIDs), suite.Name),
	})
	return nil
}

// ReorderTestCases applies a (testCaseID -> order) map atomically. Every key
// must be a current member of the suite.
func (s *Service) ReorderTestCases(ctx context.Context, suiteID string, orders map[string]int) error {
	suite, err := s.mutableSuite(ctx, suiteID)
	if err != nil {
		return err
	}
	members, err := s.store.ListMemberships(ctx, suiteID)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(members))
	for _, m := range members {
		present[m.TestCaseID] = true
	}
	for id := range orders {
		if !present[id] {
			return types.NewValidationError("test case %s is not a member of the suite", id)
		}
	}
	err = s.store.Atomically(ctx, func(tx store.Store) error {
		return tx.UpdateMembershipOrders(ctx, suiteID, orders)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, dispatch.AuditEntry{
		Action:       "suite.reorder_test_cases",
		ResourceType: "suite",
		ResourceID:   suite.ID,
		ProjectID:    suite.ProjectID,
		Description:  fmt.Sprintf("reordered %d test cases in suite %q", len(orders), suite.Name),
	})
	return nil
}

// mutableSuite loads a suite and rejects the mutation if it is archived.
func (s *Service) mutableSuite(ctx context.Context, suiteID string) (*types.Suite, error) {
	suite, err := s.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}
	if suite.Archived {
		return nil, types.NewStateError("suite %q is archived and cannot be modified", suite.Name)
	}
	return suite, nil
}

// Children returns a suite's direct children, or all descendants when
// recursive is set. The recursive walk is breadth-first over an explicit
// queue so deep trees cannot grow the stack; a seen-set guards against
// corrupt parent chains.
func (s *Service) Children(ctx context.Context, suiteID string, recursive bool) ([]types.Suite, error) {
	if _, err := s.store.GetSuite(ctx, suiteID); err != nil {
		return nil, err
	}
	if !recursive {
		return s.store.ListChildSuites(ctx, suiteID)
	}

	var out []types.Suite
	queue := []string{suiteID}
	seen := map[string]bool{suiteID: true}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := s.store.ListChildSuites(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out, nil
}

// Hierarchy loads all non-archived suites of a project and returns the root
// suites with their children attached. A suite whose parent is archived (or
// missing) surfaces as a root so it stays visible.
func (s *Service) Hierarchy(ctx context.Context, projectID string) ([]*types.SuiteNode, error) {
	suites, err := s.store.ListProjectSuites(ctx, projectID, false)
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*types.SuiteNode, len(suites))
	for _, suite := range suites {
		nodes[suite.ID] = &types.SuiteNode{Suite: suite}
	}
	var roots []*types.SuiteNode
	for _, suite := range suites {
		node := nodes[suite.ID]
		if suite.ParentID != nil {
			if parent, ok := nodes[*suite.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	return roots, nil
}

// recordAudit is best-effort: audit failures are logged, never propagated.
func (s *Service) recordAudit(ctx context.Context, entry dispatch.AuditEntry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("failed to record audit entry", "action", entry.Action, "err", err)
	}
}
