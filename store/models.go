package store

import (
	"time"

	"github.com/testdeck/testdeck/types"
)

// gorm row models. Kept separate from the domain types so the engine never
// sees gorm tags or association fields.

type suiteModel struct {
	ID          string     `gorm:"column:suite_id;primaryKey;type:varchar(36)"`
	ProjectID   string     `gorm:"column:project_id;type:varchar(36);not null;index"`
	Name        string     `gorm:"column:name;type:varchar(255);not null"`
	Description string     `gorm:"column:description;type:text"`
	Status      string     `gorm:"column:status;type:varchar(20);not null"`
	ParentID    *string    `gorm:"column:parent_id;type:varchar(36);index"`
	Archived    bool       `gorm:"column:archived;default:false"`
	ArchivedAt  *time.Time `gorm:"column:archived_at"`
	CreatedBy   string     `gorm:"column:created_by;type:varchar(36)"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (suiteModel) TableName() string { return "suites" }

type membershipModel struct {
	SuiteID    string `gorm:"column:suite_id;primaryKey;type:varchar(36)"`
	TestCaseID string `gorm:"column:test_case_id;primaryKey;type:varchar(36)"`
	OrderIndex int    `gorm:"column:order_index;not null"`
}

func (membershipModel) TableName() string { return "suite_memberships" }

type testCaseModel struct {
	ID        string    `gorm:"column:test_case_id;primaryKey;type:varchar(36)"`
	ProjectID string    `gorm:"column:project_id;type:varchar(36);not null;index"`
	Title     string    `gorm:"column:title;type:varchar(255);not null"`
	Deleted   bool      `gorm:"column:deleted;default:false"`
	CreatedBy string    `gorm:"column:created_by;type:varchar(36)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (testCaseModel) TableName() string { return "test_cases" }

type testStepModel struct {
	ID         string `gorm:"column:test_step_id;primaryKey;type:varchar(36)"`
	TestCaseID string `gorm:"column:test_case_id;type:varchar(36);not null;index"`
	Position   int    `gorm:"column:position;not null"`
	Action     string `gorm:"column:action;type:text"`
	Expected   string `gorm:"column:expected;type:text"`
}

func (testStepModel) TableName() string { return "test_steps" }

type runModel struct {
	ID         string     `gorm:"column:run_id;primaryKey;type:varchar(36)"`
	ProjectID  string     `gorm:"column:project_id;type:varchar(36);not null;index"`
	SuiteRunID *string    `gorm:"column:suite_run_id;type:varchar(36)"`
	Name       string     `gorm:"column:name;type:varchar(255)"`
	Total      int        `gorm:"column:total;not null"`
	Passed     int        `gorm:"column:passed;default:0"`
	Failed     int        `gorm:"column:failed;default:0"`
	Blocked    int        `gorm:"column:blocked;default:0"`
	Skipped    int        `gorm:"column:skipped;default:0"`
	Status     string     `gorm:"column:status;type:varchar(20);not null"`
	StartedAt  time.Time  `gorm:"column:started_at"`
	EndedAt    *time.Time `gorm:"column:ended_at"`
	ExecutedBy string     `gorm:"column:executed_by;type:varchar(36)"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (runModel) TableName() string { return "runs" }

type suiteRunModel struct {
	ID           string `gorm:"column:suite_run_id;primaryKey;type:varchar(36)"`
	SuiteID      string `gorm:"column:suite_id;type:varchar(36);not null;index"`
	RunID        string `gorm:"column:run_id;type:varchar(36);not null;index"`
	Name         string `gorm:"column:name;type:varchar(255)"`
	Description  string `gorm:"column:description;type:text"`
	Environment  string `gorm:"column:environment;type:varchar(100)"`
	BuildVersion string `gorm:"column:build_version;type:varchar(100)"`

	Total         int `gorm:"column:total;not null"`
	ExecutedCount int `gorm:"column:executed_count;default:0"`
	Passed        int `gorm:"column:passed;default:0"`
	Failed        int `gorm:"column:failed;default:0"`
	Blocked       int `gorm:"column:blocked;default:0"`
	Skipped       int `gorm:"column:skipped;default:0"`
	Inconclusive  int `gorm:"column:inconclusive;default:0"`

	StopOnFailure     bool `gorm:"column:stop_on_failure;default:false"`
	CascadeToChildren bool `gorm:"column:cascade_to_children;default:true"`

	Status     string     `gorm:"column:status;type:varchar(20);not null"`
	StartedAt  time.Time  `gorm:"column:started_at"`
	EndedAt    *time.Time `gorm:"column:ended_at"`
	ExecutedBy string     `gorm:"column:executed_by;type:varchar(36)"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (suiteRunModel) TableName() string { return "suite_runs" }

type executionModel struct {
	ID         string     `gorm:"column:execution_id;primaryKey;type:varchar(36)"`
	RunID      string     `gorm:"column:run_id;type:varchar(36);not null;index"`
	SuiteRunID *string    `gorm:"column:suite_run_id;type:varchar(36);index"`
	TestCaseID string     `gorm:"column:test_case_id;type:varchar(36);not null;index"`
	Status     string     `gorm:"column:status;type:varchar(20);not null"`
	ExecutedBy string     `gorm:"column:executed_by;type:varchar(36)"`
	ExecutedAt *time.Time `gorm:"column:executed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (executionModel) TableName() string { return "executions" }

type executionStepModel struct {
	ID          string `gorm:"column:execution_step_id;primaryKey;type:varchar(36)"`
	ExecutionID string `gorm:"column:execution_id;type:varchar(36);not null;index"`
	TestStepID  string `gorm:"column:test_step_id;type:varchar(36);not null"`
	Status      string `gorm:"column:status;type:varchar(20);not null"`
}

func (executionStepModel) TableName() string { return "execution_steps" }

type defectModel struct {
	ID        string    `gorm:"column:defect_id;primaryKey;type:varchar(36)"`
	ProjectID string    `gorm:"column:project_id;type:varchar(36);not null;index"`
	Title     string    `gorm:"column:title;type:varchar(255);not null"`
	Severity  string    `gorm:"column:severity;type:varchar(20)"`
	CreatedBy string    `gorm:"column:created_by;type:varchar(36)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (defectModel) TableName() string { return "defects" }

type executionDefectModel struct {
	ExecutionID string `gorm:"column:execution_id;primaryKey;type:varchar(36)"`
	DefectID    string `gorm:"column:defect_id;primaryKey;type:varchar(36)"`
}

func (executionDefectModel) TableName() string { return "execution_defects" }

func suiteToModel(s *types.Suite) suiteModel {
	return suiteModel{
		ID:          s.ID,
		ProjectID:   s.ProjectID,
		Name:        s.Name,
		Description: s.Description,
		Status:      string(s.Status),
		ParentID:    s.ParentID,
		Archived:    s.Archived,
		ArchivedAt:  s.ArchivedAt,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func suiteFromModel(m suiteModel) types.Suite {
	return types.Suite{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Description: m.Description,
		Status:      types.SuiteStatus(m.Status),
		ParentID:    m.ParentID,
		Archived:    m.Archived,
		ArchivedAt:  m.ArchivedAt,
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func runToModel(r *types.Run) runModel {
	return runModel{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		SuiteRunID: r.SuiteRunID,
		Name:       r.Name,
		Total:      r.Total,
		Passed:     r.Passed,
		Failed:     r.Failed,
		Blocked:    r.Blocked,
		Skipped:    r.Skipped,
		Status:     string(r.Status),
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		ExecutedBy: r.ExecutedBy,
		CreatedAt:  r.CreatedAt,
	}
}

func runFromModel(m runModel) types.Run {
	return types.Run{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		SuiteRunID: m.SuiteRunID,
		Name:       m.Name,
		Total:      m.Total,
		Passed:     m.Passed,
		Failed:     m.Failed,
		Blocked:    m.Blocked,
		Skipped:    m.Skipped,
		Status:     types.RunStatus(m.Status),
		StartedAt:  m.StartedAt,
		EndedAt:    m.EndedAt,
		ExecutedBy: m.ExecutedBy,
		CreatedAt:  m.CreatedAt,
	}
}

func suiteRunToModel(sr *types.SuiteRun) suiteRunModel {
	return suiteRunModel{
		ID:                sr.ID,
		SuiteID:           sr.SuiteID,
		RunID:             sr.RunID,
		Name:              sr.Name,
		Description:       sr.Description,
		Environment:       sr.Environment,
		BuildVersion:      sr.BuildVersion,
		Total:             sr.Total,
		ExecutedCount:     sr.ExecutedCount,
		Passed:            sr.Passed,
		Failed:            sr.Failed,
		Blocked:           sr.Blocked,
		Skipped:           sr.Skipped,
		Inconclusive:      sr.Inconclusive,
		StopOnFailure:     sr.StopOnFailure,
		CascadeToChildren: sr.CascadeToChildren,
		Status:            string(sr.Status),
		StartedAt:         sr.StartedAt,
		EndedAt:           sr.EndedAt,
		ExecutedBy:        sr.ExecutedBy,
		CreatedAt:         sr.CreatedAt,
	}
}

func suiteRunFromModel(m suiteRunModel) types.SuiteRun {
	return types.SuiteRun{
		ID:                m.ID,
		SuiteID:           m.SuiteID,
		RunID:             m.RunID,
		Name:              m.Name,
		Description:       m.Description,
		Environment:       m.Environment,
		BuildVersion:      m.BuildVersion,
		Total:             m.Total,
		ExecutedCount:     m.ExecutedCount,
		Passed:            m.Passed,
		Failed:            m.Failed,
		Blocked:           m.Blocked,
		Skipped:           m.Skipped,
		Inconclusive:      m.Inconclusive,
		StopOnFailure:     m.StopOnFailure,
		CascadeToChildren: m.CascadeToChildren,
		Status:            types.RunStatus(m.Status),
		StartedAt:         m.StartedAt,
		EndedAt:           m.EndedAt,
		ExecutedBy:        m.ExecutedBy,
		CreatedAt:         m.CreatedAt,
	}
}

func executionToModel(e *types.Execution) executionModel {
	return executionModel{
		ID:         e.ID,
		RunID:      e.RunID,
		SuiteRunID: e.SuiteRunID,
		TestCaseID: e.TestCaseID,
		Status:     string(e.Status),
		ExecutedBy: e.ExecutedBy,
		ExecutedAt: e.ExecutedAt,
		CreatedAt:  e.CreatedAt,
	}
}

func executionFromModel(m executionModel) types.Execution {
	return types.Execution{
		ID:         m.ID,
		RunID:      m.RunID,
		SuiteRunID: m.SuiteRunID,
		TestCaseID: m.TestCaseID,
		Status:     types.ExecutionStatus(m.Status),
		ExecutedBy: m.ExecutedBy,
		ExecutedAt: m.ExecutedAt,
		CreatedAt:  m.CreatedAt,
	}
}
