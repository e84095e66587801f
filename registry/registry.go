// Package registry loads suite definitions from a YAML seed file and
// materializes them through the hierarchy service. It gives a fresh
// deployment (or a test bench) a declarative way to set up projects, suites
// and test cases without driving the API call by call.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/testdeck/testdeck/hierarchy"
	"github.com/testdeck/testdeck/store"
	"github.com/testdeck/testdeck/types"
)

// Registry holds a parsed, validated seed definition.
type Registry struct {
	config Config
	seed   seedFile
}

// Config contains registry configuration
type Config struct {
	Log      *slog.Logger
	SeedFile string
}

type seedFile struct {
	Projects []ProjectSeed `yaml:"projects"`
}

// ProjectSeed declares one project's test cases and suite tree.
type ProjectSeed struct {
	ID        string         `yaml:"id"`
	TestCases []TestCaseSeed `yaml:"testCases"`
	Suites    []SuiteSeed    `yaml:"suites"`
}

// TestCaseSeed declares one test case with its ordered steps.
type TestCaseSeed struct {
	ID    string     `yaml:"id"`
	Title string     `yaml:"title"`
	Steps []StepSeed `yaml:"steps"`
}

// StepSeed declares one test step.
type StepSeed struct {
	Action   string `yaml:"action"`
	Expected string `yaml:"expected"`
}

// SuiteSeed declares one suite. Nesting in the file is the parent
// relationship, so a seed tree is cycle-free by construction.
type SuiteSeed struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	TestCases   []string    `yaml:"testCases"`
	Suites      []SuiteSeed `yaml:"suites"`
}

// NewRegistry creates a new registry instance
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SeedFile == "" {
		return nil, fmt.Errorf("seed file is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	r := &Registry{config: cfg}
	if err := r.load(cfg.SeedFile); err != nil {
		return nil, fmt.Errorf("failed to load seed file: %w", err)
	}

	cfg.Log.Debug("registry loaded", "projects", len(r.seed.Projects))
	return r, nil
}

func (r *Registry) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parsing seed file: %w", err)
	}
	if err := validateSeed(&seed); err != nil {
		return err
	}
	r.seed = seed
	return nil
}

// validateSeed rejects duplicate suite names within a project and suite
// references to undeclared test cases before anything is written.
func validateSeed(seed *seedFile) error {
	for _, project := range seed.Projects {
		if project.ID == "" {
			return fmt.Errorf("project id is required")
		}
		cases := make(map[string]bool, len(project.TestCases))
		for _, tc := range project.TestCases {
			if tc.ID == "" {
				return fmt.Errorf("project %s: test case id is required", project.ID)
			}
			if cases[tc.ID] {
				return fmt.Errorf("project %s: duplicate test case %s", project.ID, tc.ID)
			}
			cases[tc.ID] = true
		}

		names := make(map[string]bool)
		work := append([]SuiteSeed(nil), project.Suites...)
		for len(work) > 0 {
			suite := work[len(work)-1]
			work = work[:len(work)-1]
			if suite.Name == "" {
				return fmt.Errorf("project %s: suite name is required", project.ID)
			}
			if names[suite.Name] {
				return fmt.Errorf("project %s: duplicate suite name %q", project.ID, suite.Name)
			}
			names[suite.Name] = true
			for _, caseID := range suite.TestCases {
				if !cases[caseID] {
					return fmt.Errorf("project %s: suite %q references undeclared test case %s",
						project.ID, suite.Name, caseID)
				}
			}
			work = append(work, suite.Suites...)
		}
	}
	return nil
}

// Projects returns the declared project seeds.
func (r *Registry) Projects() []ProjectSeed {
	return r.seed.Projects
}

// applyItem is one unit of suite creation work.
type applyItem struct {
	seed     SuiteSeed
	parentID *string
}

// Apply creates the seeded test cases and suites. It is not idempotent;
// applying the same seed twice fails on the duplicate suite names.
func (r *Registry) Apply(ctx context.Context, st store.Store, suites *hierarchy.Service, actor string) error {
	for _, project := range r.seed.Projects {
		for _, tc := range project.TestCases {
			if err := r.applyTestCase(ctx, st, project.ID, tc, actor); err != nil {
				return err
			}
		}

		work := make([]applyItem, 0, len(project.Suites))
		for _, suite := range project.Suites {
			work = append(work, applyItem{seed: suite})
		}
		for len(work) > 0 {
			item := work[len(work)-1]
			work = work[:len(work)-1]

			created, err := suites.Create(ctx, hierarchy.CreateInput{
				ProjectID:   project.ID,
				Name:        item.seed.Name,
				Description: item.seed.Description,
				ParentID:    item.parentID,
				CreatedBy:   actor,
			})
			if err != nil {
				return fmt.Errorf("project %s: creating suite %q: %w", project.ID, item.seed.Name, err)
			}
			if len(item.seed.TestCases) > 0 {
				if err := suites.AddTestCases(ctx, created.ID, item.seed.TestCases); err != nil {
					return fmt.Errorf("project %s: populating suite %q: %w", project.ID, item.seed.Name, err)
				}
			}
			for _, child := range item.seed.Suites {
				work = append(work, applyItem{seed: child, parentID: &created.ID})
			}
		}
		r.config.Log.Info("seeded project", "projectID", project.ID,
			"testCases", len(project.TestCases), "suites", len(project.Suites))
	}
	return nil
}

func (r *Registry) applyTestCase(ctx context.Context, st store.Store, projectID string, tc TestCaseSeed, actor string) error {
	if err := st.CreateTestCase(ctx, &types.TestCase{
		ID:        tc.ID,
		ProjectID: projectID,
		Title:     tc.Title,
		CreatedBy: actor,
	}); err != nil {
		return fmt.Errorf("project %s: creating test case %s: %w", projectID, tc.ID, err)
	}
	for i, step := range tc.Steps {
		if err := st.CreateTestStep(ctx, &types.TestStep{
			ID:         uuid.New().String(),
			TestCaseID: tc.ID,
			Position:   i,
			Action:     step.Action,
			Expected:   step.Expected,
		}); err != nil {
			return fmt.Errorf("project %s: creating step for test case %s: %w", projectID, tc.ID, err)
		}
	}
	return nil
}
