package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// sampleWorkflow builds a workflow exercising every field the wire contract
// defines, so round-trip tests catch any dropped field.
func sampleWorkflow() Workflow {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return Workflow{
		Name:        "checkout-smoke",
		Description: "Log in and verify the cart badge.",
		CreatedAt:   created,
		Variables:   []string{"email", "password"},
		Steps: []Action{
			{
				ID:         1,
				Kind:       ActionNavigate,
				Parameters: map[string]string{ParamURL: "https://shop.example.com/login"},
				TimeoutMs:  30000,
				CapturedAt: created,
			},
			{
				ID:   2,
				Kind: ActionTypeText,
				Selector: &Selector{
					Candidates: []Candidate{
						{Strategy: StrategyCSS, Value: "#email", Priority: 0},
						{Strategy: StrategyXPath, Value: `//input[@name="email"]`, Priority: 1},
						{Strategy: StrategyAttribute, Value: `name=email`, Priority: 2},
						{Strategy: StrategyCoordinates, Value: "412,318", Priority: 3},
					},
					TextHint: "",
					Tag:      "input",
				},
				Parameters: map[string]string{ParamText: "{{email}}"},
				TimeoutMs:  10000,
				CapturedAt: created.Add(2 * time.Second),
				Note:       "fill the email field",
			},
			{
				ID:   3,
				Kind: ActionClick,
				Selector: &Selector{
					Candidates: []Candidate{
						{Strategy: StrategyCSS, Value: "button[type=submit]", Priority: 0},
						{Strategy: StrategyText, Value: "Sign in", Priority: 1},
					},
					TextHint: "Sign in",
					Tag:      "button",
				},
				TimeoutMs:  10000,
				CapturedAt: created.Add(4 * time.Second),
			},
			{
				ID:         4,
				Kind:       ActionExtractText,
				Selector:   &Selector{Candidates: []Candidate{{Strategy: StrategyCSS, Value: ".cart-badge", Priority: 0}}},
				TimeoutMs:  5000,
				CapturedAt: created.Add(6 * time.Second),
				Output:     "cart_count",
			},
		},
	}
}

func TestWorkflowRoundTripJSON(t *testing.T) {
	original := sampleWorkflow()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Workflow
	require.NoError(t, json.Unmarshal(data, &decoded))

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Fatalf("JSON round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkflowRoundTripYAML(t *testing.T) {
	original := sampleWorkflow()

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded Workflow
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Fatalf("YAML round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkflowValidate(t *testing.T) {
	t.Run("valid workflow passes", func(t *testing.T) {
		wf := sampleWorkflow()
		assert.NoError(t, wf.Validate())
	})

	t.Run("undeclared placeholder rejected", func(t *testing.T) {
		wf := sampleWorkflow()
		wf.Variables = []string{"password"} // email no longer declared
		err := wf.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `undeclared variable "email"`)
	})

	t.Run("non-contiguous step ids rejected", func(t *testing.T) {
		wf := sampleWorkflow()
		wf.Steps[2].ID = 7
		err := wf.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "has id 7, want 3")
	})

	t.Run("selector required for click", func(t *testing.T) {
		wf := sampleWorkflow()
		wf.Steps[2].Selector = nil
		err := wf.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selector is required")
	})

	t.Run("empty workflow rejected", func(t *testing.T) {
		wf := Workflow{Name: "empty"}
		assert.Error(t, wf.Validate())
	})
}

func TestSelectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		sel     Selector
		wantErr string
	}{
		{
			name:    "no candidates",
			sel:     Selector{},
			wantErr: "at least one candidate",
		},
		{
			name: "unknown strategy",
			sel: Selector{Candidates: []Candidate{
				{Strategy: "telepathy", Value: "x", Priority: 0},
			}},
			wantErr: "unknown strategy",
		},
		{
			name: "priorities out of order",
			sel: Selector{Candidates: []Candidate{
				{Strategy: StrategyCSS, Value: "#a", Priority: 2},
				{Strategy: StrategyText, Value: "A", Priority: 1},
			}},
			wantErr: "out of order",
		},
		{
			name: "coordinates not last",
			sel: Selector{Candidates: []Candidate{
				{Strategy: StrategyCoordinates, Value: "1,2", Priority: 0},
				{Strategy: StrategyCSS, Value: "#a", Priority: 1},
			}},
			wantErr: "must be last",
		},
		{
			name: "well formed chain",
			sel: Selector{Candidates: []Candidate{
				{Strategy: StrategyCSS, Value: "#a", Priority: 0},
				{Strategy: StrategyXPath, Value: "//a", Priority: 1},
				{Strategy: StrategyText, Value: "A", Priority: 2},
				{Strategy: StrategyCoordinates, Value: "1,2", Priority: 3},
			}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sel.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"email", "domain"}, Placeholders("{{email}}@{{domain}} and {{email}} again"))
	assert.Empty(t, Placeholders("no variables here"))
	assert.Empty(t, Placeholders("{{ spaced }} and {{0bad}} are not placeholders"))
}

func TestExpandPlaceholders(t *testing.T) {
	bindings := map[string]string{"email": "a@b.com", "loop": "{{loop}}"}
	lookup := func(name string) (string, bool) {
		v, ok := bindings[name]
		return v, ok
	}

	t.Run("substitutes bound names", func(t *testing.T) {
		out, err := ExpandPlaceholders("user: {{email}}", lookup)
		require.NoError(t, err)
		assert.Equal(t, "user: a@b.com", out)
	})

	t.Run("single pass, no re-expansion", func(t *testing.T) {
		out, err := ExpandPlaceholders("{{loop}}", lookup)
		require.NoError(t, err)
		assert.Equal(t, "{{loop}}", out)
	})

	t.Run("unbound name errors", func(t *testing.T) {
		_, err := ExpandPlaceholders("{{missing}}", lookup)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unbound variable "missing"`)
	})
}

func TestParseCoordinates(t *testing.T) {
	x, y, err := ParseCoordinates("120,40")
	require.NoError(t, err)
	assert.Equal(t, 120.0, x)
	assert.Equal(t, 40.0, y)

	x, y, err = ParseCoordinates(" 12.5 , 7 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, x)
	assert.Equal(t, 7.0, y)

	for _, bad := range []string{"", "12", "a,b", "-1,5"} {
		_, _, err := ParseCoordinates(bad)
		assert.Error(t, err, "value %q should not parse", bad)
	}

	assert.Equal(t, "120,40", FormatCoordinates(120, 40))
}

func TestActionClone(t *testing.T) {
	a := sampleWorkflow().Steps[1]
	clone := a.Clone()

	clone.Parameters[ParamText] = "changed"
	clone.Selector.Candidates[0].Value = "#other"

	assert.Equal(t, "{{email}}", a.Parameters[ParamText], "clone must not share the parameter map")
	assert.Equal(t, "#email", a.Selector.Candidates[0].Value, "clone must not share the candidate slice")
}

func TestReportCounts(t *testing.T) {
	r := &ExecutionReport{}
	r.Append(StepResult{StepID: 1, Outcome: OutcomeSuccess})
	r.Append(StepResult{StepID: 2, Outcome: OutcomeResolvedFallback, StrategyUsed: StrategyText})
	r.Append(StepResult{StepID: 3, Outcome: OutcomeFailed, Error: ErrKindResolutionFailure})
	r.Append(StepResult{StepID: 4, Outcome: OutcomeSkipped})

	succeeded, fallback, failed, skipped := r.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, fallback)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, skipped)
	assert.False(t, r.Passed())
}
