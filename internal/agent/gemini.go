// internal/agent/gemini.go
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/naytrik/naytrik/internal/config"
)

// GeminiPlanner implements Planner against the Gemini generateContent API.
type GeminiPlanner struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	cfg        config.PlannerConfig
}

var _ Planner = (*GeminiPlanner)(nil)

// -- Gemini API request/response structures --

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiPlanner initializes the client.
func NewGeminiPlanner(cfg config.PlannerConfig, logger *zap.Logger) (*GeminiPlanner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("planner API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &GeminiPlanner{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		logger:  logger.Named("planner.gemini"),
	}, nil
}

const systemPrompt = `You are a browser automation planner. You are shown a goal and the
current page: its URL, title, and a numbered list of interactive elements.
Respond with a single JSON object and nothing else:
{"done": bool, "kind": "navigate|click|type|wait_for|extract_text|assert_state|screenshot",
 "target_ref": int, "url": string, "text": string, "variable": string,
 "output": string, "assert": {"url_contains": string, "text_contains": string},
 "duration_ms": int, "reasoning": string}
Rules:
- Propose exactly one step per response, the smallest useful one.
- "target_ref" must be the ref number of an element from the list; use it
  for click, type, and extract_text.
- When typing a value that a future replay should parameterize (credentials,
  search terms), set "variable" to a short snake_case name.
- Set "done": true once the goal is achieved. Prefer finishing with an
  assert_state step that proves the goal.`

// PlanNextStep asks the model for the next move toward the goal.
func (g *GeminiPlanner) PlanNextStep(ctx context.Context, goal string, state PageState) (*ProposedStep, error) {
	userPrompt, err := buildUserPrompt(goal, state)
	if err != nil {
		return nil, err
	}

	raw, err := g.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	step, err := parseProposedStep(raw)
	if err != nil {
		return nil, fmt.Errorf("planner returned unusable output: %w", err)
	}
	if err := step.Validate(); err != nil {
		return nil, err
	}
	return step, nil
}

func buildUserPrompt(goal string, state PageState) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nPage URL: %s\nPage title: %s\nSteps taken so far: %d\n\nInteractive elements:\n",
		goal, state.URL, state.Title, state.StepsTaken)
	for _, el := range state.Interactive {
		attrs, err := json.Marshal(el.Attributes)
		if err != nil {
			return "", fmt.Errorf("failed to encode element attributes: %w", err)
		}
		fmt.Fprintf(&b, "- ref=%d tag=%s text=%q attrs=%s\n", el.Ref, el.Tag, el.Text, attrs)
	}
	return b.String(), nil
}

// parseProposedStep decodes the model output, tolerating markdown fences.
func parseProposedStep(raw string) (*ProposedStep, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var step ProposedStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return nil, err
	}
	return &step, nil
}

// generate sends the prompts to the API and returns the generated text,
// retrying transient failures with exponential backoff.
func (g *GeminiPlanner) generate(ctx context.Context, system, user string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: system}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      g.cfg.Temperature,
			ResponseMimeType: "application/json",
			MaxOutputTokens:  g.cfg.MaxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		startTime := time.Now()
		resp, err := g.httpClient.Do(httpReq)
		duration := time.Since(startTime)
		if err != nil {
			g.logger.Warn("Network error during planner request, retrying.", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return g.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("planner API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("planner API blocked the request (reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("planner API returned empty content parts (reason: %s)", candidate.FinishReason)
		}

		g.logger.Debug("Planner generation complete.",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", responsePayload.UsageMetadata.CandidatesTokenCount))

		responseContent = candidate.Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (g *GeminiPlanner) handleAPIError(statusCode int, body []byte) error {
	g.logger.Error("Planner API returned error status.",
		zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("planner API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}
