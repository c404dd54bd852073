package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/config"
)

func testWorkflow(name string) *schemas.Workflow {
	return &schemas.Workflow{
		Name:      name,
		CreatedAt: time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC),
		Variables: []string{"email"},
		Steps: []schemas.Action{
			{ID: 1, Kind: schemas.ActionNavigate, Parameters: map[string]string{schemas.ParamURL: "https://example.com"}, TimeoutMs: 30000},
			{
				ID:   2,
				Kind: schemas.ActionTypeText,
				Selector: &schemas.Selector{
					Candidates: []schemas.Candidate{{Strategy: schemas.StrategyCSS, Value: "#email", Priority: 0}},
				},
				Parameters: map[string]string{schemas.ParamText: "{{email}}"},
				TimeoutMs:  10000,
			},
		},
	}
}

func openTestLibrary(t *testing.T, format string) *Library {
	t.Helper()
	lib, err := Open(config.LibraryConfig{Dir: t.TempDir(), Format: format}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return lib
}

func TestSaveAndLoadJSON(t *testing.T) {
	lib := openTestLibrary(t, "json")
	wf := testWorkflow("checkout")

	entry, err := lib.Save(wf)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 2, entry.Steps)

	byID, err := lib.Load(entry.ID)
	require.NoError(t, err)
	byName, err := lib.Load("checkout")
	require.NoError(t, err)

	if diff := cmp.Diff(wf, byID); diff != "" {
		t.Fatalf("load by id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wf, byName); diff != "" {
		t.Fatalf("load by name mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveAndLoadYAML(t *testing.T) {
	lib := openTestLibrary(t, "yaml")
	wf := testWorkflow("checkout")

	entry, err := lib.Save(wf)
	require.NoError(t, err)
	assert.Equal(t, "yaml", entry.Format)

	got, err := lib.Load("checkout")
	require.NoError(t, err)
	if diff := cmp.Diff(wf, got); diff != "" {
		t.Fatalf("yaml round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveReplacesSameName(t *testing.T) {
	lib := openTestLibrary(t, "json")

	first, err := lib.Save(testWorkflow("login"))
	require.NoError(t, err)

	updated := testWorkflow("login")
	updated.Description = "second version"
	second, err := lib.Save(updated)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	entries, err := lib.List()
	require.NoError(t, err)
	require.Len(t, entries, 1, "same name must replace, not accumulate")
	assert.Equal(t, "second version", entries[0].Description)

	// The replaced file is gone.
	_, err = os.Stat(filepath.Join(lib.Dir(), first.File))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveRejectsInvalidWorkflow(t *testing.T) {
	lib := openTestLibrary(t, "json")
	_, err := lib.Save(&schemas.Workflow{Name: "empty"})
	require.Error(t, err)
}

func TestListSortedByName(t *testing.T) {
	lib := openTestLibrary(t, "json")
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := lib.Save(testWorkflow(name))
		require.NoError(t, err)
	}

	entries, err := lib.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, "mid", entries[1].Name)
	assert.Equal(t, "zeta", entries[2].Name)
}

func TestDelete(t *testing.T) {
	lib := openTestLibrary(t, "json")
	entry, err := lib.Save(testWorkflow("doomed"))
	require.NoError(t, err)

	require.NoError(t, lib.Delete("doomed"))

	_, err = lib.Load(entry.ID)
	require.ErrorIs(t, err, ErrNotFound)

	entries, err := lib.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(filepath.Join(lib.Dir(), entry.File))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteUnknown(t *testing.T) {
	lib := openTestLibrary(t, "json")
	err := lib.Delete("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadUnknown(t *testing.T) {
	lib := openTestLibrary(t, "json")
	_, err := lib.Load("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.LibraryConfig{Dir: dir, Format: "json"}

	lib, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = lib.Save(testWorkflow("persistent"))
	require.NoError(t, err)

	reopened, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	got, err := reopened.Load("persistent")
	require.NoError(t, err)
	assert.Equal(t, "persistent", got.Name)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "checkout-smoke-test", slugify("Checkout  Smoke/Test"))
	assert.Equal(t, "workflow", slugify("***"))
}
