// internal/recorder/recorder.go
// A recording session accumulates steps as the agent (or a human driving the
// CLI) performs them, then freezes into an immutable workflow. Step ids are
// assigned here and are contiguous from 1; variables are auto-declared from
// the placeholders the steps reference.
package recorder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/naytrik/naytrik/api/schemas"
	"github.com/naytrik/naytrik/internal/config"
)

var (
	// ErrSessionClosed is returned when recording into a finalized session.
	ErrSessionClosed = errors.New("recorder: session already finalized")

	// ErrTooManySteps is returned when a recording exceeds its step bound.
	ErrTooManySteps = errors.New("recorder: max step count reached")
)

// Recorder is one in-progress recording session.
type Recorder struct {
	mu          sync.Mutex
	name        string
	description string
	startedAt   time.Time
	steps       []schemas.Action
	variables   map[string]struct{}
	closed      bool

	maxSteps       int
	defaultTimeout time.Duration
	logger         *zap.Logger
}

// New opens a recording session for a workflow with the given name.
func New(name, description string, cfg config.RecorderConfig, logger *zap.Logger) *Recorder {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 50
	}
	defaultTimeout := cfg.DefaultStepTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Recorder{
		name:           name,
		description:    description,
		startedAt:      time.Now().UTC(),
		variables:      make(map[string]struct{}),
		maxSteps:       maxSteps,
		defaultTimeout: defaultTimeout,
		logger:         logger.Named("recorder").With(zap.String("workflow", name)),
	}
}

// RecordAction appends a step. The recorder assigns the step id, stamps the
// capture time and default timeout, and auto-declares any placeholders the
// step's parameters reference. The assigned id is returned.
func (r *Recorder) RecordAction(action schemas.Action) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrSessionClosed
	}
	if len(r.steps) >= r.maxSteps {
		return 0, fmt.Errorf("%w (%d)", ErrTooManySteps, r.maxSteps)
	}

	action.ID = len(r.steps) + 1
	if action.CapturedAt.IsZero() {
		action.CapturedAt = time.Now().UTC()
	}
	if action.TimeoutMs <= 0 {
		action.TimeoutMs = int(r.defaultTimeout.Milliseconds())
	}
	if err := action.Validate(); err != nil {
		return 0, fmt.Errorf("cannot record step: %w", err)
	}

	for _, value := range action.Parameters {
		for _, name := range schemas.Placeholders(value) {
			r.variables[name] = struct{}{}
		}
	}

	r.steps = append(r.steps, action.Clone())
	r.logger.Debug("Recorded step.",
		zap.Int("step_id", action.ID),
		zap.String("kind", string(action.Kind)))
	return action.ID, nil
}

// StepCount returns the number of steps recorded so far.
func (r *Recorder) StepCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.steps)
}

// Finalize closes the session and returns the immutable workflow snapshot.
// A session with no steps cannot be finalized.
func (r *Recorder) Finalize() (*schemas.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrSessionClosed
	}
	if len(r.steps) == 0 {
		return nil, errors.New("recorder: no steps recorded")
	}
	r.closed = true

	variables := make([]string, 0, len(r.variables))
	for name := range r.variables {
		variables = append(variables, name)
	}
	sort.Strings(variables)

	steps := make([]schemas.Action, len(r.steps))
	for i, s := range r.steps {
		steps[i] = s.Clone()
	}

	wf := &schemas.Workflow{
		Name:        r.name,
		Description: r.description,
		CreatedAt:   r.startedAt,
		Variables:   variables,
		Steps:       steps,
	}
	if err := wf.Validate(); err != nil {
		return nil, fmt.Errorf("recorded workflow is invalid: %w", err)
	}

	r.logger.Info("Recording finalized.",
		zap.Int("steps", len(steps)),
		zap.Strings("variables", variables))
	return wf, nil
}
