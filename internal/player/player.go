// internal/player/player.go
// The player replays a recorded workflow deterministically. It walks steps
// strictly in order, resolves each selector through the candidate chain, and
// produces an ExecutionReport covering every step. The player never consults
// an AI model; replay depends only on the recorded workflow, the bindings,
// and the live page.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/resolver"
)

// FailurePolicy controls what happens to the steps after a failed one.
type FailurePolicy string

const (
	// StopOnFirstFailure marks every step after the first failure SKIPPED.
	StopOnFirstFailure FailurePolicy = "STOP_ON_FIRST_FAILURE"
	// BestEffort keeps executing independent steps after a failure.
	BestEffort FailurePolicy = "BEST_EFFORT"
)

// ParsePolicy converts a CLI flag value into a FailurePolicy.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToUpper(strings.ReplaceAll(s, "-", "_"))) {
	case StopOnFirstFailure:
		return StopOnFirstFailure, nil
	case BestEffort:
		return BestEffort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want stop_on_first_failure or best_effort)", s)
	}
}

// Player executes workflows against a live page.
type Player struct {
	page     browser.PageController
	resolver *resolver.Resolver
	cfg      config.PlayerConfig
	logger   *zap.Logger
}

// New builds a Player. The resolver must wrap the same page.
func New(page browser.PageController, res *resolver.Resolver, cfg config.PlayerConfig, logger *zap.Logger) *Player {
	return &Player{
		page:     page,
		resolver: res,
		cfg:      cfg,
		logger:   logger.Named("player"),
	}
}

// ExecuteWorkflow replays wf with the given bindings. It validates the
// workflow and bindings up front and returns an error without touching the
// page when either is unusable. Once execution starts, step failures are
// reported in the ExecutionReport rather than as an error; the report always
// contains exactly one entry per step.
func (p *Player) ExecuteWorkflow(ctx context.Context, wf *schemas.Workflow, bindings map[string]string, policy FailurePolicy) (*schemas.ExecutionReport, error) {
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %q is invalid: %w", wf.Name, err)
	}
	if err := ValidateBindings(wf, bindings); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = StopOnFirstFailure
	}

	report := &schemas.ExecutionReport{
		RunID:        uuid.New().String(),
		WorkflowName: wf.Name,
		StartedAt:    time.Now().UTC(),
		Bindings:     bindings,
	}
	log := p.logger.With(zap.String("run_id", report.RunID), zap.String("workflow", wf.Name))
	log.Info("Starting replay.", zap.Int("steps", len(wf.Steps)), zap.String("policy", string(policy)))

	halted := false
	for _, step := range wf.Steps {
		if halted && policy == StopOnFirstFailure {
			report.Append(schemas.StepResult{StepID: step.ID, Kind: step.Kind, Outcome: schemas.OutcomeSkipped})
			continue
		}
		if ctx.Err() != nil {
			report.Append(schemas.StepResult{
				StepID:      step.ID,
				Kind:        step.Kind,
				Outcome:     schemas.OutcomeFailed,
				Error:       schemas.ErrKindCancelled,
				ErrorDetail: ctx.Err().Error(),
			})
			halted = true
			continue
		}

		result := p.executeStep(ctx, step, bindings, report)
		report.Append(result)

		if result.Outcome == schemas.OutcomeFailed {
			log.Warn("Step failed.",
				zap.Int("step_id", step.ID),
				zap.String("kind", string(step.Kind)),
				zap.String("error", string(result.Error)),
				zap.String("detail", result.ErrorDetail))
			halted = true
		}
	}

	report.FinishedAt = time.Now().UTC()
	succeeded, fallback, failed, skipped := report.Counts()
	log.Info("Replay finished.",
		zap.Int("succeeded", succeeded),
		zap.Int("resolved_fallback", fallback),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Duration("duration", report.Duration()))
	return report, nil
}

func (p *Player) executeStep(ctx context.Context, step schemas.Action, bindings map[string]string, report *schemas.ExecutionReport) schemas.StepResult {
	result := schemas.StepResult{StepID: step.ID, Kind: step.Kind}
	started := time.Now()
	defer func() {
		result.DurationMs = time.Since(started).Milliseconds()
	}()

	action, err := Interpolate(step, bindings)
	if err != nil {
		return failResult(result, schemas.ErrKindResolutionFailure, err)
	}

	timeout := action.Timeout(p.cfg.DefaultStepTimeout)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resolved *resolver.Resolved
	if action.Kind.RequiresSelector() || (action.Selector != nil && action.Kind != schemas.ActionScreenshot) {
		resolved, err = p.resolver.Resolve(stepCtx, action.Selector, timeout)
		if err != nil {
			kind := classifyError(ctx, stepCtx, err)
			failed := failResult(result, kind, err)
			p.captureFailure(ctx, report, &failed)
			return failed
		}
		result.StrategyUsed = resolved.Strategy
	}

	switch action.Kind {
	case schemas.ActionNavigate:
		err = p.page.Navigate(stepCtx, action.Parameters[schemas.ParamURL])
	case schemas.ActionClick:
		if resolved.Strategy == schemas.StrategyCoordinates {
			// Coordinate resolutions replay the raw pointer event.
			err = p.page.ClickAt(stepCtx, resolved.Element.CenterX, resolved.Element.CenterY)
		} else {
			err = p.page.Click(stepCtx, resolved.Element)
		}
	case schemas.ActionTypeText:
		clear := boolParam(action, schemas.ParamClearBefore, true)
		enter := boolParam(action, schemas.ParamPressEnter, false)
		err = p.page.TypeText(stepCtx, resolved.Element, action.Parameters[schemas.ParamText], clear, enter)
	case schemas.ActionWaitFor:
		err = p.waitFor(stepCtx, action, resolved)
	case schemas.ActionExtractText:
		var text string
		text, err = p.page.ExtractText(stepCtx, resolved.Element)
		if err == nil {
			result.Extracted = text
			if action.Output != "" {
				if report.Outputs == nil {
					report.Outputs = make(map[string]string)
				}
				report.Outputs[action.Output] = text
			}
		}
	case schemas.ActionAssertState:
		err = p.assertState(stepCtx, action)
	case schemas.ActionScreenshot:
		var ref string
		ref, err = p.takeScreenshot(stepCtx, report.RunID, action.ID)
		result.ScreenshotRef = ref
	default:
		// Workflow validation rejects unknown kinds before replay starts.
		err = fmt.Errorf("unsupported action kind %q", action.Kind)
	}

	if err != nil {
		kind := classifyError(ctx, stepCtx, err)
		failed := failResult(result, kind, err)
		p.captureFailure(ctx, report, &failed)
		return failed
	}

	if resolved != nil && resolved.Fallback {
		result.Outcome = schemas.OutcomeResolvedFallback
	} else {
		result.Outcome = schemas.OutcomeSuccess
	}
	return result
}

// waitFor blocks on whichever condition the step recorded: a fixed duration,
// the appearance of an element, or network idle when neither is given.
func (p *Player) waitFor(ctx context.Context, action schemas.Action, resolved *resolver.Resolved) error {
	if ms := action.Parameters[schemas.ParamDurationMs]; ms != "" {
		n, err := strconv.Atoi(ms)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid %s value %q", schemas.ParamDurationMs, ms)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(n) * time.Millisecond):
			return nil
		}
	}
	if resolved != nil {
		// The selector already resolved, which is the condition.
		return nil
	}
	return p.page.WaitForIdle(ctx, 0)
}

func (p *Player) assertState(ctx context.Context, action schemas.Action) error {
	if want := action.Parameters[schemas.ParamURLContains]; want != "" {
		url, err := p.page.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(url, want) {
			return fmt.Errorf("%w: url %q does not contain %q", errAssertion, url, want)
		}
	}
	if want := action.Parameters[schemas.ParamTextContains]; want != "" {
		text, err := p.page.PageText(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(text, want) {
			return fmt.Errorf("%w: page text does not contain %q", errAssertion, want)
		}
	}
	return nil
}

var errAssertion = errors.New("assertion failed")

func (p *Player) takeScreenshot(ctx context.Context, runID string, stepID int) (string, error) {
	png, err := p.page.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	dir := p.cfg.ScreenshotDir
	if dir == "" {
		dir = "naytrik-screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-step-%d.png", runID, stepID))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}

// captureFailure attaches a screenshot to a failed step when configured.
// Capture errors are logged, never escalated.
func (p *Player) captureFailure(ctx context.Context, report *schemas.ExecutionReport, result *schemas.StepResult) {
	if !p.cfg.ScreenshotOnFailure || result.Error == schemas.ErrKindCancelled {
		return
	}
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	ref, err := p.takeScreenshot(shotCtx, report.RunID, result.StepID)
	if err != nil {
		p.logger.Warn("Failed to capture failure screenshot.", zap.Int("step_id", result.StepID), zap.Error(err))
		return
	}
	result.ScreenshotRef = ref
}

func failResult(result schemas.StepResult, kind schemas.ErrorKind, err error) schemas.StepResult {
	result.Outcome = schemas.OutcomeFailed
	result.Error = kind
	result.ErrorDetail = err.Error()
	return result
}

// classifyError maps an execution error onto the report's error taxonomy.
func classifyError(runCtx, stepCtx context.Context, err error) schemas.ErrorKind {
	switch {
	case runCtx.Err() != nil && errors.Is(err, context.Canceled):
		return schemas.ErrKindCancelled
	case errors.Is(err, context.DeadlineExceeded) || stepCtx.Err() == context.DeadlineExceeded:
		return schemas.ErrKindTimeoutExceeded
	}

	var resErr *resolver.ResolutionError
	switch {
	case errors.As(err, &resErr):
		return schemas.ErrKindResolutionFailure
	case errors.Is(err, browser.ErrNavigation):
		return schemas.ErrKindNavigationFailed
	case errors.Is(err, browser.ErrNotInteractable):
		return schemas.ErrKindInteractionBlocked
	case errors.Is(err, errAssertion):
		return schemas.ErrKindAssertionFailed
	case errors.Is(err, browser.ErrNotFound):
		return schemas.ErrKindResolutionFailure
	default:
		return schemas.ErrKindInteractionBlocked
	}
}

func boolParam(action schemas.Action, key string, def bool) bool {
	raw, ok := action.Parameters[key]
	if !ok || raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
