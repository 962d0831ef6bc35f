// Package models defines the integration definition graph, the transaction threaded through
// it and the records written to the transaction log.
package models

import (
	"errors"
	"fmt"

	"github.com/dukex/integra/pkg/condition"
	"github.com/dukex/integra/pkg/faults"
)

var (
	ErrNoSteps            = errors.New("definition must have at least one step")
	ErrDuplicateStep      = errors.New("duplicate step id")
	ErrUnknownStep        = errors.New("unknown step")
	ErrFirstStep          = errors.New("definition must have exactly one step without inbound edges")
	ErrLoopPairing        = errors.New("for_each and collect steps must be paired")
	ErrNestedLoop         = errors.New("for_each loops cannot be nested")
	ErrCollectUnreachable = errors.New("collect step is not reachable from its for_each")
)

// Definition is an integration workflow: ordered steps and the edges between them.
// A Definition is immutable once loaded; edits produce a copy.
type Definition struct {
	ID              string                `json:"id"                          yaml:"id"                          validate:"required"`
	Name            string                `json:"name,omitempty"              yaml:"name,omitempty"`
	ClientID        string                `json:"client_id,omitempty"         yaml:"client_id,omitempty"`
	Steps           []*Step               `json:"steps"                       yaml:"steps"                       validate:"required,min=1,dive"`
	Edges           map[string][]string   `json:"edges,omitempty"             yaml:"edges,omitempty"`
	ExceptionStepID string                `json:"exception_step_id,omitempty" yaml:"exception_step_id,omitempty"`
	Condition       *condition.Definition `json:"condition,omitempty"         yaml:"condition,omitempty"`
	Schedule        *Schedule             `json:"schedule,omitempty"          yaml:"schedule,omitempty"`
	Config          any                   `json:"config,omitempty"            yaml:"config,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (d *Definition) Step(id string) *Step {
	for _, step := range d.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// Next returns the first declared successor of a step, empty when the step is terminal.
func (d *Definition) Next(id string) string {
	targets := d.Edges[id]
	if len(targets) == 0 {
		return ""
	}

	return targets[0]
}

// FirstStep returns the only step without inbound edges. The exception step is reached by
// routing, not by edges, so it never counts as a candidate.
func (d *Definition) FirstStep() *Step {
	roots := d.roots()
	if len(roots) != 1 {
		return nil
	}

	return roots[0]
}

func (d *Definition) roots() []*Step {
	inbound := make(map[string]bool, len(d.Steps))

	for _, targets := range d.Edges {
		for _, to := range targets {
			inbound[to] = true
		}
	}

	var roots []*Step

	for _, step := range d.Steps {
		if step.ID == d.ExceptionStepID || inbound[step.ID] {
			continue
		}

		roots = append(roots, step)
	}

	return roots
}

// EndpointSteps returns every endpoint step in declaration order.
func (d *Definition) EndpointSteps() []*Step {
	var steps []*Step

	for _, step := range d.Steps {
		if step.Type == StepTypeEndpoint {
			steps = append(steps, step)
		}
	}

	return steps
}

// Validate checks the graph invariants. Failures are configuration errors.
func (d *Definition) Validate() error {
	if err := d.validate(); err != nil {
		return faults.Configuration("ValidateDefinition", d.ID, err)
	}

	return nil
}

func (d *Definition) validate() error {
	if len(d.Steps) == 0 {
		return ErrNoSteps
	}

	seen := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if seen[step.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateStep, step.ID)
		}

		seen[step.ID] = true
	}

	for from, targets := range d.Edges {
		if !seen[from] {
			return fmt.Errorf("%w: edge from %s", ErrUnknownStep, from)
		}

		for _, to := range targets {
			if !seen[to] {
				return fmt.Errorf("%w: edge %s -> %s", ErrUnknownStep, from, to)
			}
		}
	}

	if d.ExceptionStepID != "" && !seen[d.ExceptionStepID] {
		return fmt.Errorf("%w: exception step %s", ErrUnknownStep, d.ExceptionStepID)
	}

	if roots := d.roots(); len(roots) != 1 {
		return fmt.Errorf("%w: found %d", ErrFirstStep, len(roots))
	}

	if d.Schedule != nil {
		if err := d.Schedule.Validate(); err != nil {
			return err
		}
	}

	return d.validateLoops()
}

func (d *Definition) validateLoops() error {
	pairedBy := make(map[string]string)

	for _, step := range d.Steps {
		if step.Type != StepTypeForEach {
			continue
		}

		collect := d.Step(step.CollectStepID)
		if collect == nil || collect.Type != StepTypeCollect {
			return fmt.Errorf("%w: %s names %q", ErrLoopPairing, step.ID, step.CollectStepID)
		}

		if other, ok := pairedBy[collect.ID]; ok {
			return fmt.Errorf("%w: %s is collected by both %s and %s", ErrLoopPairing, collect.ID, other, step.ID)
		}

		pairedBy[collect.ID] = step.ID

		if err := d.checkLoopBody(step); err != nil {
			return err
		}
	}

	for _, step := range d.Steps {
		if step.Type == StepTypeCollect && pairedBy[step.ID] == "" {
			return fmt.Errorf("%w: collect %s has no for_each", ErrLoopPairing, step.ID)
		}
	}

	return nil
}

// checkLoopBody follows first edges from the loop head until its collect step.
func (d *Definition) checkLoopBody(head *Step) error {
	current := d.Next(head.ID)

	for hops := 0; hops <= len(d.Steps); hops++ {
		if current == "" {
			break
		}

		if current == head.CollectStepID {
			return nil
		}

		if step := d.Step(current); step != nil && step.Type == StepTypeForEach {
			return fmt.Errorf("%w: %s inside %s", ErrNestedLoop, current, head.ID)
		}

		current = d.Next(current)
	}

	return fmt.Errorf("%w: %s from %s", ErrCollectUnreachable, head.CollectStepID, head.ID)
}

// WithStepMessage returns a copy of the definition where a step carries a new static message.
func (d *Definition) WithStepMessage(stepID string, message any) (*Definition, error) {
	clone := *d
	clone.Steps = make([]*Step, len(d.Steps))

	found := false

	for i, step := range d.Steps {
		if step.ID != stepID {
			clone.Steps[i] = step

			continue
		}

		updated := *step
		updated.Message = message
		clone.Steps[i] = &updated
		found = true
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}

	return &clone, nil
}
