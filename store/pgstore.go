package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/testdeck/testdeck/types"
)

// Postgres error codes the store maps to domain errors.
const (
	pgErrUniqueViolation     = "23505" // unique_violation
	pgErrForeignKeyViolation = "23503" // foreign_key_violation
)

// Compile-time contract assertion.
var _ Store = (*PGStore)(nil)

// PGStore is the Postgres-backed Store.
type PGStore struct {
	db *gorm.DB
}

// OpenPG connects to Postgres and returns a store. Connection attempts are
// retried a few times since the database is often still starting when the
// service comes up.
func OpenPG(dsn string) (*PGStore, error) {
	var db *gorm.DB
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			return &PGStore{db: db}, nil
		}
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to postgres: %w", err)
}

// Migrate creates or updates the schema for every entity the engine stores.
func (p *PGStore) Migrate() error {
	return p.db.AutoMigrate(
		&suiteModel{},
		&membershipModel{},
		&testCaseModel{},
		&testStepModel{},
		&runModel{},
		&suiteRunModel{},
		&executionModel{},
		&executionStepModel{},
		&defectModel{},
		&executionDefectModel{},
	)
}

// Ping checks the underlying database connection.
func (p *PGStore) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Atomically runs fn inside a database transaction.
func (p *PGStore) Atomically(ctx context.Context, fn func(Store) error) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PGStore{db: tx})
	})
}

// wrapWriteErr maps constraint violations to domain errors.
func wrapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return types.NewValidationError("duplicate row: %s", pgErr.Detail)
		case pgErrForeignKeyViolation:
			return types.NewValidationError("missing referenced row: %s", pgErr.Detail)
		}
	}
	return err
}

func (p *PGStore) CreateSuite(ctx context.Context, suite *types.Suite) error {
	m := suiteToModel(suite)
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) GetSuite(ctx context.Context, id string) (*types.Suite, error) {
	var m suiteModel
	err := p.db.WithContext(ctx).First(&m, "suite_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("suite", id)
	}
	if err != nil {
		return nil, err
	}
	suite := suiteFromModel(m)
	return &suite, nil
}

func (p *PGStore) UpdateSuite(ctx context.Context, suite *types.Suite) error {
	m := suiteToModel(suite)
	res := p.db.WithContext(ctx).Model(&suiteModel{}).Where("suite_id = ?", suite.ID).
		Select("*").Omit("suite_id", "created_at").Updates(&m)
	if res.Error != nil {
		return wrapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("suite", suite.ID)
	}
	return nil
}

func (p *PGStore) DeleteSuite(ctx context.Context, id string) error {
	if err := p.db.WithContext(ctx).Delete(&membershipModel{}, "suite_id = ?", id).Error; err != nil {
		return err
	}
	res := p.db.WithContext(ctx).Delete(&suiteModel{}, "suite_id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("suite", id)
	}
	return nil
}

func (p *PGStore) ListProjectSuites(ctx context.Context, projectID string, includeArchived bool) ([]types.Suite, error) {
	q := p.db.WithContext(ctx).Where("project_id = ?", projectID)
	if !includeArchived {
		q = q.Where("archived = false")
	}
	var rows []suiteModel
	if err := q.Order("name asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Suite, 0, len(rows))
	for _, m := range rows {
		out = append(out, suiteFromModel(m))
	}
	return out, nil
}

func (p *PGStore) ListChildSuites(ctx context.Context, parentID string) ([]types.Suite, error) {
	var rows []suiteModel
	err := p.db.WithContext(ctx).Where("parent_id = ?", parentID).Order("name asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Suite, 0, len(rows))
	for _, m := range rows {
		out = append(out, suiteFromModel(m))
	}
	return out, nil
}

func (p *PGStore) ActiveSuiteNameExists(ctx context.Context, projectID, name, excludeID string) (bool, error) {
	var count int64
	q := p.db.WithContext(ctx).Model(&suiteModel{}).
		Where("project_id = ? AND name = ? AND archived = false", projectID, name)
	if excludeID != "" {
		q = q.Where("suite_id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *PGStore) AddMemberships(ctx context.Context, rows []types.SuiteMembership) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]membershipModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, membershipModel(row))
	}
	return wrapWriteErr(p.db.WithContext(ctx).Create(&models).Error)
}

func (p *PGStore) RemoveMemberships(ctx context.Context, suiteID string, testCaseIDs []string) error {
	if len(testCaseIDs) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).
		Delete(&membershipModel{}, "suite_id = ? AND test_case_id IN ?", suiteID, testCaseIDs).Error
}

func (p *PGStore) ListMemberships(ctx context.Context, suiteID string) ([]types.SuiteMembership, error) {
	var rows []membershipModel
	err := p.db.WithContext(ctx).Where("suite_id = ?", suiteID).Order("order_index asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.SuiteMembership, 0, len(rows))
	for _, m := range rows {
		out = append(out, types.SuiteMembership(m))
	}
	return out, nil
}

func (p *PGStore) UpdateMembershipOrders(ctx context.Context, suiteID string, orders map[string]int) error {
	for testCaseID, order := range orders {
		err := p.db.WithContext(ctx).Model(&membershipModel{}).
			Where("suite_id = ? AND test_case_id = ?", suiteID, testCaseID).
			Update("order_index", order).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *PGStore) CreateTestCase(ctx context.Context, tc *types.TestCase) error {
	m := testCaseModel{
		ID:        tc.ID,
		ProjectID: tc.ProjectID,
		Title:     tc.Title,
		Deleted:   tc.Deleted,
		CreatedBy: tc.CreatedBy,
		CreatedAt: tc.CreatedAt,
	}
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) GetTestCase(ctx context.Context, id string) (*types.TestCase, error) {
	var m testCaseModel
	err := p.db.WithContext(ctx).First(&m, "test_case_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("test case", id)
	}
	if err != nil {
		return nil, err
	}
	return &types.TestCase{
		ID: m.ID, ProjectID: m.ProjectID, Title: m.Title,
		Deleted: m.Deleted, CreatedBy: m.CreatedBy, CreatedAt: m.CreatedAt,
	}, nil
}

func (p *PGStore) GetTestCases(ctx context.Context, ids []string) ([]types.TestCase, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []testCaseModel
	if err := p.db.WithContext(ctx).Where("test_case_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]testCaseModel, len(rows))
	for _, m := range rows {
		byID[m.ID] = m
	}
	// Preserve the caller's ordering; absent IDs are simply omitted.
	out := make([]types.TestCase, 0, len(rows))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, types.TestCase{
				ID: m.ID, ProjectID: m.ProjectID, Title: m.Title,
				Deleted: m.Deleted, CreatedBy: m.CreatedBy, CreatedAt: m.CreatedAt,
			})
		}
	}
	return out, nil
}

func (p *PGStore) CreateTestStep(ctx context.Context, step *types.TestStep) error {
	m := testStepModel{
		ID:         step.ID,
		TestCaseID: step.TestCaseID,
		Position:   step.Position,
		Action:     step.Action,
		Expected:   step.Expected,
	}
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) ListTestSteps(ctx context.Context, testCaseID string) ([]types.TestStep, error) {
	var rows []testStepModel
	err := p.db.WithContext(ctx).Where("test_case_id = ?", testCaseID).Order("position asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.TestStep, 0, len(rows))
	for _, m := range rows {
		out = append(out, types.TestStep{
			ID: m.ID, TestCaseID: m.TestCaseID, Position: m.Position,
			Action: m.Action, Expected: m.Expected,
		})
	}
	return out, nil
}

func (p *PGStore) CreateRun(ctx context.Context, run *types.Run) error {
	m := runToModel(run)
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) GetRun(ctx context.Context, id string) (*types.Run, error) {
	var m runModel
	err := p.db.WithContext(ctx).First(&m, "run_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("run", id)
	}
	if err != nil {
		return nil, err
	}
	run := runFromModel(m)
	return &run, nil
}

func (p *PGStore) UpdateRun(ctx context.Context, run *types.Run) error {
	m := runToModel(run)
	res := p.db.WithContext(ctx).Model(&runModel{}).Where("run_id = ?", run.ID).
		Select("*").Omit("run_id", "created_at").Updates(&m)
	if res.Error != nil {
		return wrapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("run", run.ID)
	}
	return nil
}

func (p *PGStore) CreateSuiteRun(ctx context.Context, sr *types.SuiteRun) error {
	m := suiteRunToModel(sr)
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) GetSuiteRun(ctx context.Context, id string) (*types.SuiteRun, error) {
	var m suiteRunModel
	err := p.db.WithContext(ctx).First(&m, "suite_run_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("suite run", id)
	}
	if err != nil {
		return nil, err
	}
	sr := suiteRunFromModel(m)
	return &sr, nil
}

func (p *PGStore) UpdateSuiteRun(ctx context.Context, sr *types.SuiteRun) error {
	m := suiteRunToModel(sr)
	res := p.db.WithContext(ctx).Model(&suiteRunModel{}).Where("suite_run_id = ?", sr.ID).
		Select("*").Omit("suite_run_id", "created_at").Updates(&m)
	if res.Error != nil {
		return wrapWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("suite run", sr.ID)
	}
	return nil
}

func (p *PGStore) ListSuiteRuns(ctx context.Context, suiteID string, q RunQuery) ([]types.SuiteRun, error) {
	db := p.db.WithContext(ctx).Where("suite_id = ?", suiteID)
	return p.querySuiteRuns(db, q)
}

func (p *PGStore) ListProjectSuiteRuns(ctx context.Context, projectID string, q RunQuery) ([]types.SuiteRun, error) {
	db := p.db.WithContext(ctx).
		Joins("JOIN runs ON runs.run_id = suite_runs.run_id").
		Where("runs.project_id = ?", projectID)
	return p.querySuiteRuns(db, q)
}

func (p *PGStore) querySuiteRuns(db *gorm.DB, q RunQuery) ([]types.SuiteRun, error) {
	if len(q.Statuses) > 0 {
		statuses := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			statuses = append(statuses, string(s))
		}
		db = db.Where("suite_runs.status IN ?", statuses)
	}
	db = db.Order("suite_runs.started_at desc, suite_runs.suite_run_id desc")
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var rows []suiteRunModel
	if err := db.Model(&suiteRunModel{}).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.SuiteRun, 0, len(rows))
	for _, m := range rows {
		out = append(out, suiteRunFromModel(m))
	}
	return out, nil
}

func (p *PGStore) CreateExecutions(ctx context.Context, rows []types.Execution) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]executionModel, 0, len(rows))
	for i := range rows {
		models = append(models, executionToModel(&rows[i]))
	}
	return wrapWriteErr(p.db.WithContext(ctx).CreateInBatches(&models, 500).Error)
}

func (p *PGStore) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	var m executionModel
	err := p.db.WithContext(ctx).First(&m, "execution_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewNotFoundError("execution", id)
	}
	if err != nil {
		return nil, err
	}
	e := executionFromModel(m)
	return &e, nil
}

func (p *PGStore) ListExecutions(ctx context.Context, suiteRunID string) ([]types.Execution, error) {
	var rows []executionModel
	err := p.db.WithContext(ctx).Where("suite_run_id = ?", suiteRunID).Order("created_at asc, execution_id asc").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Execution, 0, len(rows))
	for _, m := range rows {
		out = append(out, executionFromModel(m))
	}
	return out, nil
}

func (p *PGStore) RecordExecution(ctx context.Context, id string, status types.ExecutionStatus, executedBy string, at time.Time) error {
	res := p.db.WithContext(ctx).Model(&executionModel{}).
		Where("execution_id = ?", id).
		Updates(map[string]any{
			"status":      string(status),
			"executed_by": executedBy,
			"executed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.NewNotFoundError("execution", id)
	}
	return nil
}

func (p *PGStore) CreateExecutionSteps(ctx context.Context, rows []types.ExecutionStep) error {
	if len(rows) == 0 {
		return nil
	}
	models := make([]executionStepModel, 0, len(rows))
	for _, row := range rows {
		models = append(models, executionStepModel{
			ID:          row.ID,
			ExecutionID: row.ExecutionID,
			TestStepID:  row.TestStepID,
			Status:      string(row.Status),
		})
	}
	return wrapWriteErr(p.db.WithContext(ctx).CreateInBatches(&models, 500).Error)
}

func (p *PGStore) ListExecutionSteps(ctx context.Context, executionID string) ([]types.ExecutionStep, error) {
	var rows []executionStepModel
	err := p.db.WithContext(ctx).Where("execution_id = ?", executionID).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.ExecutionStep, 0, len(rows))
	for _, m := range rows {
		out = append(out, types.ExecutionStep{
			ID:          m.ID,
			ExecutionID: m.ExecutionID,
			TestStepID:  m.TestStepID,
			Status:      types.ExecutionStatus(m.Status),
		})
	}
	return out, nil
}

func (p *PGStore) CreateDefect(ctx context.Context, d *types.Defect) error {
	m := defectModel{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		Title:     d.Title,
		Severity:  d.Severity,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
	}
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) LinkDefect(ctx context.Context, executionID, defectID string) error {
	m := executionDefectModel{ExecutionID: executionID, DefectID: defectID}
	return wrapWriteErr(p.db.WithContext(ctx).Create(&m).Error)
}

func (p *PGStore) ListSuiteRunDefects(ctx context.Context, suiteRunID string) ([]types.Defect, error) {
	var rows []defectModel
	err := p.db.WithContext(ctx).Model(&defectModel{}).
		Joins("JOIN execution_defects ON execution_defects.defect_id = defects.defect_id").
		Joins("JOIN executions ON executions.execution_id = execution_defects.execution_id").
		Where("executions.suite_run_id = ?", suiteRunID).
		Distinct().
		Order("defects.defect_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]types.Defect, 0, len(rows))
	for _, m := range rows {
		out = append(out, types.Defect{
			ID: m.ID, ProjectID: m.ProjectID, Title: m.Title,
			Severity: m.Severity, CreatedBy: m.CreatedBy, CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
