package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
	"github.com/naytrik/naytrik/internal/config"
)

func testCfg() config.RecorderConfig {
	return config.RecorderConfig{MaxSteps: 5, DefaultStepTimeout: 10 * time.Second}
}

func navigateStep(url string) schemas.Action {
	return schemas.Action{
		Kind:       schemas.ActionNavigate,
		Parameters: map[string]string{schemas.ParamURL: url},
	}
}

func clickStep(css string) schemas.Action {
	return schemas.Action{
		Kind: schemas.ActionClick,
		Selector: &schemas.Selector{
			Candidates: []schemas.Candidate{{Strategy: schemas.StrategyCSS, Value: css, Priority: 0}},
		},
	}
}

func TestRecorderAssignsContiguousIDs(t *testing.T) {
	r := New("login", "", testCfg(), zaptest.NewLogger(t))

	id1, err := r.RecordAction(navigateStep("https://example.com"))
	require.NoError(t, err)
	id2, err := r.RecordAction(clickStep("#go"))
	require.NoError(t, err)

	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)
	assert.Equal(t, 2, r.StepCount())
}

func TestRecorderStampsDefaults(t *testing.T) {
	r := New("login", "", testCfg(), zaptest.NewLogger(t))

	_, err := r.RecordAction(navigateStep("https://example.com"))
	require.NoError(t, err)

	wf, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 10000, wf.Steps[0].TimeoutMs)
	assert.False(t, wf.Steps[0].CapturedAt.IsZero())
}

func TestRecorderAutoDeclaresVariables(t *testing.T) {
	r := New("login", "smoke test", testCfg(), zaptest.NewLogger(t))

	_, err := r.RecordAction(navigateStep("https://example.com/{{tenant}}"))
	require.NoError(t, err)

	typeStep := schemas.Action{
		Kind: schemas.ActionTypeText,
		Selector: &schemas.Selector{
			Candidates: []schemas.Candidate{{Strategy: schemas.StrategyCSS, Value: "#email", Priority: 0}},
		},
		Parameters: map[string]string{schemas.ParamText: "{{email}}"},
	}
	_, err = r.RecordAction(typeStep)
	require.NoError(t, err)

	wf, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "tenant"}, wf.Variables, "sorted and deduplicated")
	require.NoError(t, wf.Validate())
}

func TestRecorderEnforcesMaxSteps(t *testing.T) {
	cfg := config.RecorderConfig{MaxSteps: 2, DefaultStepTimeout: time.Second}
	r := New("long", "", cfg, zaptest.NewLogger(t))

	_, err := r.RecordAction(navigateStep("https://example.com/1"))
	require.NoError(t, err)
	_, err = r.RecordAction(navigateStep("https://example.com/2"))
	require.NoError(t, err)

	_, err = r.RecordAction(navigateStep("https://example.com/3"))
	require.ErrorIs(t, err, ErrTooManySteps)
}

func TestRecorderRejectsAfterFinalize(t *testing.T) {
	r := New("done", "", testCfg(), zaptest.NewLogger(t))
	_, err := r.RecordAction(navigateStep("https://example.com"))
	require.NoError(t, err)

	_, err = r.Finalize()
	require.NoError(t, err)

	_, err = r.RecordAction(clickStep("#late"))
	require.ErrorIs(t, err, ErrSessionClosed)

	_, err = r.Finalize()
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestRecorderEmptySessionCannotFinalize(t *testing.T) {
	r := New("empty", "", testCfg(), zaptest.NewLogger(t))
	_, err := r.Finalize()
	require.Error(t, err)
}

func TestFinalizeSnapshotIsImmutable(t *testing.T) {
	r := New("snap", "", testCfg(), zaptest.NewLogger(t))
	step := clickStep("#go")
	_, err := r.RecordAction(step)
	require.NoError(t, err)

	wf, err := r.Finalize()
	require.NoError(t, err)

	wf.Steps[0].Selector.Candidates[0].Value = "#mutated"
	// The recorder kept its own copy, so a second snapshot is unaffected.
	// (Finalize closes the session; we assert via the original input too.)
	assert.Equal(t, "#go", step.Selector.Candidates[0].Value)
}

// -- Selector capture --

func infoWith(tag, text string, attrs map[string]string) browser.ElementInfo {
	return browser.ElementInfo{
		Element: browser.Element{
			Ref: 1, Tag: tag, Text: text,
			Visible: true, Enabled: true,
			CenterX: 120, CenterY: 48,
		},
		Attributes: attrs,
	}
}

func strategies(sel schemas.Selector) []schemas.Strategy {
	out := make([]schemas.Strategy, len(sel.Candidates))
	for i, c := range sel.Candidates {
		out[i] = c.Strategy
	}
	return out
}

func TestBuildSelectorStableIDLeads(t *testing.T) {
	sel := BuildSelector(infoWith("button", "Log in", map[string]string{
		"id":   "login-btn",
		"name": "login",
	}))
	require.NoError(t, sel.Validate())

	assert.Equal(t, schemas.StrategyCSS, sel.Candidates[0].Strategy)
	assert.Equal(t, "#login-btn", sel.Candidates[0].Value)
	assert.Equal(t, "Log in", sel.TextHint)
	assert.Equal(t, "button", sel.Tag)
}

func TestBuildSelectorSkipsGeneratedID(t *testing.T) {
	sel := BuildSelector(infoWith("button", "Log in", map[string]string{
		"id": "ember12345",
	}))
	require.NoError(t, sel.Validate())

	for _, c := range sel.Candidates {
		assert.NotEqual(t, "#ember12345", c.Value, "generated-looking ids must not be captured")
	}
}

func TestBuildSelectorTestHookPreferred(t *testing.T) {
	sel := BuildSelector(infoWith("input", "", map[string]string{
		"data-testid": "email-field",
		"name":        "email",
		"placeholder": "you@example.com",
	}))
	require.NoError(t, sel.Validate())

	assert.Equal(t, `input[data-testid="email-field"]`, sel.Candidates[0].Value)
	assert.Contains(t, strategies(sel), schemas.StrategyAttribute)
	assert.Contains(t, strategies(sel), schemas.StrategyXPath)
}

func TestBuildSelectorCoordinatesAlwaysLast(t *testing.T) {
	sel := BuildSelector(infoWith("button", "Submit", map[string]string{
		"id":    "submit",
		"class": "btn primary",
	}))
	require.NoError(t, sel.Validate())

	last := sel.Candidates[len(sel.Candidates)-1]
	assert.Equal(t, schemas.StrategyCoordinates, last.Strategy)
	assert.Equal(t, "120,48", last.Value)
}

func TestBuildSelectorBareElementFallsBackToTextAndCoordinates(t *testing.T) {
	sel := BuildSelector(infoWith("a", "Terms of service", map[string]string{}))
	require.NoError(t, sel.Validate())

	kinds := strategies(sel)
	assert.Contains(t, kinds, schemas.StrategyText)
	assert.Equal(t, schemas.StrategyCoordinates, kinds[len(kinds)-1])
}

func TestBuildSelectorPrioritiesAreSequential(t *testing.T) {
	sel := BuildSelector(infoWith("input", "", map[string]string{
		"id":          "email",
		"name":        "email",
		"placeholder": "Email",
		"class":       "form-control",
	}))
	require.NoError(t, sel.Validate())

	for i, c := range sel.Candidates {
		assert.Equal(t, i, c.Priority)
	}
}
