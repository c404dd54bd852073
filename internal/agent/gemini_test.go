package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
	"github.com/naytrik/naytrik/internal/config"
)

func plannerCfg(endpoint string) config.PlannerConfig {
	return config.PlannerConfig{
		APIKey:            "test-key",
		Model:             "gemini-2.5-flash",
		Endpoint:          endpoint,
		APITimeout:        10 * time.Second,
		Temperature:       0.2,
		MaxTokens:         1024,
		RequestsPerMinute: 6000,
	}
}

func newTestPlanner(t *testing.T, cfg config.PlannerConfig) *GeminiPlanner {
	t.Helper()
	p, err := NewGeminiPlanner(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(p.httpClient.CloseIdleConnections)
	return p
}

func geminiReply(t *testing.T, w http.ResponseWriter, text string) {
	t.Helper()
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content":      map[string]interface{}{"parts": []map[string]string{{"text": text}}},
				"finishReason": "STOP",
			},
		},
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func sampleState() PageState {
	return PageState{
		URL:   "https://shop.example.com/login",
		Title: "Login",
		Interactive: []browser.ElementInfo{
			{
				Element:    browser.Element{Ref: 3, Tag: "input", Visible: true, Enabled: true},
				Attributes: map[string]string{"id": "email", "name": "email"},
			},
		},
		StepsTaken: 1,
	}
}

func TestPlanNextStep(t *testing.T) {
	var gotBody []byte
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotBody, _ = io.ReadAll(r.Body)
		geminiReply(t, w, `{"done": false, "kind": "type", "target_ref": 3, "text": "dev@example.com", "variable": "email", "reasoning": "fill the email field"}`)
	}))
	defer server.Close()

	p := newTestPlanner(t, plannerCfg(server.URL))

	step, err := p.PlanNextStep(context.Background(), "log in", sampleState())
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, schemas.ActionTypeText, step.Kind)
	assert.Equal(t, 3, step.TargetRef)
	assert.Equal(t, "email", step.Variable)
	assert.False(t, step.Done)

	// The request carries the page digest and forces JSON output.
	var payload geminiRequestPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "application/json", payload.GenerationConfig.ResponseMimeType)
	require.Len(t, payload.Contents, 1)
	assert.Contains(t, payload.Contents[0].Parts[0].Text, "Goal: log in")
	assert.Contains(t, payload.Contents[0].Parts[0].Text, "ref=3")
	require.NotNil(t, payload.SystemInstruction)
}

func TestPlanNextStepRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		geminiReply(t, w, `{"done": true}`)
	}))
	defer server.Close()

	p := newTestPlanner(t, plannerCfg(server.URL))

	step, err := p.PlanNextStep(context.Background(), "done already", sampleState())
	require.NoError(t, err)
	assert.True(t, step.Done)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestPlanNextStepPermanentErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	p := newTestPlanner(t, plannerCfg(server.URL))

	_, err := p.PlanNextStep(context.Background(), "goal", sampleState())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPlanNextStepStripsMarkdownFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geminiReply(t, w, "```json\n{\"done\": false, \"kind\": \"click\", \"target_ref\": 3}\n```")
	}))
	defer server.Close()

	p := newTestPlanner(t, plannerCfg(server.URL))

	step, err := p.PlanNextStep(context.Background(), "goal", sampleState())
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionClick, step.Kind)
}

func TestPlanNextStepRejectsInvalidProposal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geminiReply(t, w, `{"done": false, "kind": "click"}`) // no target
	}))
	defer server.Close()

	p := newTestPlanner(t, plannerCfg(server.URL))

	_, err := p.PlanNextStep(context.Background(), "goal", sampleState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a target")
}

func TestNewGeminiPlannerRequiresAPIKey(t *testing.T) {
	cfg := plannerCfg("http://localhost")
	cfg.APIKey = ""
	_, err := NewGeminiPlanner(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
}
