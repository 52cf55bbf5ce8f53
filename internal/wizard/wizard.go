package wizard

import (
	"context"
	"errors"
)

var (
	ErrNoSteps         = errors.New("wizard: at least one step is required")
	ErrNotLastStep     = errors.New("wizard: submit is only allowed at the last step")
	ErrInvalidForm     = errors.New("wizard: form data does not pass full validation")
	ErrConfirmRequired = errors.New("wizard: unsaved data, confirmation required to cancel")
)

// FormData is the accumulated field values collected across steps.
type FormData map[string]string

// Step is a named wizard stage gated by a validity predicate over the data
// collected so far. A nil predicate means the step is always valid.
type Step struct {
	Name  string
	Valid func(FormData) bool
}

// Controller drives an ordered multi-step form. Advance only moves forward
// when the current step's predicate holds; it never fails loudly — the UI is
// expected to keep the action disabled until validity holds. Retreat never
// validates. Submit runs the side effect at the last step only.
type Controller struct {
	steps   []Step
	data    FormData
	idx     int
	touched bool
}

// New builds a controller positioned at the first step.
func New(steps ...Step) (*Controller, error) {
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	return &Controller{steps: steps, data: make(FormData)}, nil
}

// Step returns the current step name.
func (c *Controller) Step() string { return c.steps[c.idx].Name }

// StepIndex returns the zero-based current step position.
func (c *Controller) StepIndex() int { return c.idx }

// Set records a field value and marks the wizard touched.
func (c *Controller) Set(field, value string) {
	c.data[field] = value
	c.touched = true
}

// Value returns a collected field value.
func (c *Controller) Value(field string) string { return c.data[field] }

// Data returns a copy of the collected form data.
func (c *Controller) Data() FormData {
	out := make(FormData, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Touched reports whether any field has been set since creation or the last reset.
func (c *Controller) Touched() bool { return c.touched }

// CurrentValid reports whether the current step's predicate holds.
func (c *Controller) CurrentValid() bool {
	return stepValid(c.steps[c.idx], c.data)
}

// Advance moves to the next step when the current step is valid. It reports
// whether the pointer moved; at the last step or on invalid data it is a no-op.
func (c *Controller) Advance() bool {
	if c.idx >= len(c.steps)-1 {
		return false
	}
	if !c.CurrentValid() {
		return false
	}
	c.idx++
	return true
}

// Retreat moves back one step. Never validates; at the first step it is a no-op.
func (c *Controller) Retreat() bool {
	if c.idx == 0 {
		return false
	}
	c.idx--
	return true
}

// CanSubmit reports whether the wizard sits at the last step with every step valid.
func (c *Controller) CanSubmit() bool {
	if c.idx != len(c.steps)-1 {
		return false
	}
	return c.allValid()
}

// Submit runs fn with the accumulated data. On success the wizard resets to a
// pristine first step; on failure the pointer and data stay untouched so the
// caller can surface the error and retry without losing input.
func (c *Controller) Submit(ctx context.Context, fn func(context.Context, FormData) error) error {
	if c.idx != len(c.steps)-1 {
		return ErrNotLastStep
	}
	if !c.allValid() {
		return ErrInvalidForm
	}
	if fn != nil {
		if err := fn(ctx, c.Data()); err != nil {
			return err
		}
	}
	c.reset()
	return nil
}

// Cancel abandons the wizard. Once any field was touched, the caller must pass
// confirmed=true ("you have unsaved data, really go back?").
func (c *Controller) Cancel(confirmed bool) error {
	if c.touched && !confirmed {
		return ErrConfirmRequired
	}
	c.reset()
	return nil
}

func (c *Controller) allValid() bool {
	for _, step := range c.steps {
		if !stepValid(step, c.data) {
			return false
		}
	}
	return true
}

func (c *Controller) reset() {
	c.idx = 0
	c.data = make(FormData)
	c.touched = false
}

func stepValid(step Step, data FormData) bool {
	if step.Valid == nil {
		return true
	}
	return step.Valid(data)
}
