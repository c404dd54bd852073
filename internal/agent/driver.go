// internal/agent/driver.go
// The driver runs the record loop: observe the page, ask the planner for the
// next step, execute it, and persist it into the recording session. The loop
// is pull-based: the driver decides when to consult the planner and bounds
// the session with the configured step ceiling.
package agent

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/browser"
	"github.com/naytrik/naytrik/internal/config"
	"github.com/naytrik/naytrik/internal/recorder"
)

// Driver couples a live page with a planner to produce a recorded workflow.
type Driver struct {
	page    browser.PageController
	planner Planner
	cfg     config.RecorderConfig
	logger  *zap.Logger
}

// NewDriver builds a recording driver.
func NewDriver(page browser.PageController, planner Planner, cfg config.RecorderConfig, logger *zap.Logger) *Driver {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 50
	}
	return &Driver{
		page:    page,
		planner: planner,
		cfg:     cfg,
		logger:  logger.Named("agent"),
	}
}

// Record drives the browser toward the goal, recording each executed step,
// and returns the finalized workflow. The loop stops when the planner
// declares the goal done, the step ceiling is hit, or the context ends.
func (d *Driver) Record(ctx context.Context, name, description, goal, startURL string) (*schemas.Workflow, error) {
	rec := recorder.New(name, description, d.cfg, d.logger)
	log := d.logger.With(zap.String("workflow", name))
	log.Info("Recording started.", zap.String("goal", goal), zap.String("start_url", startURL))

	if err := d.page.Navigate(ctx, startURL); err != nil {
		return nil, fmt.Errorf("initial navigation failed: %w", err)
	}
	if _, err := rec.RecordAction(schemas.Action{
		Kind:       schemas.ActionNavigate,
		Parameters: map[string]string{schemas.ParamURL: startURL},
		Note:       "open the starting page",
	}); err != nil {
		return nil, err
	}

	for rec.StepCount() < d.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, err := d.observe(ctx, rec.StepCount())
		if err != nil {
			return nil, fmt.Errorf("failed to observe page: %w", err)
		}

		proposal, err := d.planner.PlanNextStep(ctx, goal, state)
		if err != nil {
			return nil, fmt.Errorf("planning failed after step %d: %w", rec.StepCount(), err)
		}
		if proposal.Done {
			log.Info("Planner declared the goal complete.", zap.Int("steps", rec.StepCount()))
			break
		}
		if err := proposal.Validate(); err != nil {
			return nil, err
		}

		action, err := d.execute(ctx, proposal, state)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s) failed during recording: %w", rec.StepCount()+1, proposal.Kind, err)
		}
		if _, err := rec.RecordAction(*action); err != nil {
			return nil, err
		}
		log.Debug("Recorded planner step.",
			zap.String("kind", string(proposal.Kind)),
			zap.String("reasoning", proposal.Reasoning))
	}

	return rec.Finalize()
}

func (d *Driver) observe(ctx context.Context, stepsTaken int) (PageState, error) {
	url, err := d.page.CurrentURL(ctx)
	if err != nil {
		return PageState{}, err
	}
	title, err := d.page.Title(ctx)
	if err != nil {
		return PageState{}, err
	}
	interactive, err := d.page.ListInteractive(ctx)
	if err != nil {
		return PageState{}, err
	}
	return PageState{URL: url, Title: title, Interactive: interactive, StepsTaken: stepsTaken}, nil
}

// execute performs the proposed step on the live page and translates it into
// the action to record. Element-targeted steps capture their selector chain
// from the element's live attributes.
func (d *Driver) execute(ctx context.Context, p *ProposedStep, state PageState) (*schemas.Action, error) {
	action := &schemas.Action{Kind: p.Kind, Note: p.Reasoning}

	var target *browser.ElementInfo
	if p.TargetRef > 0 {
		for i := range state.Interactive {
			if state.Interactive[i].Ref == p.TargetRef {
				target = &state.Interactive[i]
				break
			}
		}
		if target == nil {
			return nil, fmt.Errorf("planner targeted unknown element ref %d", p.TargetRef)
		}
	}

	switch p.Kind {
	case schemas.ActionNavigate:
		if err := d.page.Navigate(ctx, p.URL); err != nil {
			return nil, err
		}
		action.Parameters = map[string]string{schemas.ParamURL: p.URL}

	case schemas.ActionClick:
		if err := d.page.Click(ctx, target.Element); err != nil {
			return nil, err
		}
		sel := recorder.BuildSelector(*target)
		action.Selector = &sel
		if err := d.page.WaitForIdle(ctx, 0); err != nil {
			return nil, err
		}

	case schemas.ActionTypeText:
		if err := d.page.TypeText(ctx, target.Element, p.Text, true, false); err != nil {
			return nil, err
		}
		sel := recorder.BuildSelector(*target)
		action.Selector = &sel
		recorded := p.Text
		if p.Variable != "" {
			recorded = "{{" + p.Variable + "}}"
		}
		action.Parameters = map[string]string{schemas.ParamText: recorded}

	case schemas.ActionWaitFor:
		if p.DurationMs <= 0 {
			if err := d.page.WaitForIdle(ctx, 0); err != nil {
				return nil, err
			}
		}
		action.Parameters = map[string]string{}
		if p.DurationMs > 0 {
			action.Parameters[schemas.ParamDurationMs] = strconv.Itoa(p.DurationMs)
		}

	case schemas.ActionExtractText:
		if _, err := d.page.ExtractText(ctx, target.Element); err != nil {
			return nil, err
		}
		sel := recorder.BuildSelector(*target)
		action.Selector = &sel
		action.Output = p.Output

	case schemas.ActionAssertState:
		action.Parameters = map[string]string{}
		for key, value := range p.Assert {
			switch key {
			case schemas.ParamURLContains, schemas.ParamTextContains:
				action.Parameters[key] = value
			}
		}
		if len(action.Parameters) == 0 {
			return nil, fmt.Errorf("planner proposed assert_state without conditions")
		}

	case schemas.ActionScreenshot:
		if _, err := d.page.Screenshot(ctx); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("planner proposed unsupported kind %q", p.Kind)
	}

	return action, nil
}
