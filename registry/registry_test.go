package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/hierarchy"
	"github.com/testdeck/testdeck/store"
)

func TestNewRegistryRequiresSeedFile(t *testing.T) {
	_, err := NewRegistry(Config{})
	assert.Error(t, err)
}

func TestNewRegistryLoadsSeed(t *testing.T) {
	r, err := NewRegistry(Config{SeedFile: filepath.Join("testdata", "seed.yaml")})
	require.NoError(t, err)

	projects := r.Projects()
	require.Len(t, projects, 1)
	assert.Equal(t, "demo", projects[0].ID)
	assert.Len(t, projects[0].TestCases, 3)
	assert.Len(t, projects[0].Suites, 2)
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewRegistryRejectsDuplicateSuiteNames(t *testing.T) {
	path := writeSeed(t, `
projects:
  - id: p1
    suites:
      - name: A
      - name: A
`)
	_, err := NewRegistry(Config{SeedFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate suite name")
}

func TestNewRegistryRejectsUndeclaredTestCase(t *testing.T) {
	path := writeSeed(t, `
projects:
  - id: p1
    suites:
      - name: A
        testCases: [missing]
`)
	_, err := NewRegistry(Config{SeedFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared test case")
}

func TestApplyMaterializesSeed(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistry(Config{SeedFile: filepath.Join("testdata", "seed.yaml")})
	require.NoError(t, err)

	m := store.NewMemStore()
	suites, err := hierarchy.NewService(hierarchy.Config{Store: m})
	require.NoError(t, err)

	require.NoError(t, r.Apply(ctx, m, suites, "seeder"))

	roots, err := suites.Hierarchy(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, roots, 2)

	byName := map[string]int{}
	for _, root := range roots {
		byName[root.Suite.Name] = len(root.Children)
	}
	assert.Equal(t, 1, byName["Authentication"], "Recovery nests under Authentication")
	assert.Equal(t, 0, byName["Smoke"])

	tc, err := m.GetTestCase(ctx, "tc-login-ok")
	require.NoError(t, err)
	assert.Equal(t, "Valid credentials log in", tc.Title)
	assert.Equal(t, "seeder", tc.CreatedBy)

	steps, err := m.ListTestSteps(ctx, "tc-login-ok")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "Open the login page", steps[0].Action)

	// Suite membership carries over in declaration order.
	auth := roots[0]
	if auth.Suite.Name != "Authentication" {
		auth = roots[1]
	}
	members, err := m.ListMemberships(ctx, auth.Suite.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "tc-login-ok", members[0].TestCaseID)
}

func TestApplyTwiceFailsOnDuplicates(t *testing.T) {
	ctx := context.Background()
	r, err := NewRegistry(Config{SeedFile: filepath.Join("testdata", "seed.yaml")})
	require.NoError(t, err)

	m := store.NewMemStore()
	suites, err := hierarchy.NewService(hierarchy.Config{Store: m})
	require.NoError(t, err)

	require.NoError(t, r.Apply(ctx, m, suites, "seeder"))
	assert.Error(t, r.Apply(ctx, m, suites, "seeder"))
}
