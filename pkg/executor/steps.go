package executor

import (
	"context"
	"fmt"

	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/models"
)

func (e *Executor) executeEndpoint(ctx context.Context, step *models.Step, tx *models.Transaction) error {
	// Inbound endpoints feed the transaction from outside; the message is already in place.
	if step.IsInbound() {
		return nil
	}

	endpoints := e.deps.Endpoints
	if endpoints == nil {
		return fmt.Errorf("%w: endpoints", ErrNoCollaborator)
	}

	status, err := endpoints.Status(ctx, step.EndpointID)
	if err != nil {
		return err
	}

	if !status.Available() {
		return faults.Retryable(fmt.Errorf("%w: endpoint %s of application %s",
			ErrApplicationNotRunning, step.EndpointID, status.ApplicationID))
	}

	if !endpoints.IsBound(step.EndpointID, tx.IntegrationID) {
		if err := endpoints.Bind(ctx, step.EndpointID, tx.IntegrationID); err != nil {
			return fmt.Errorf("failed to bind endpoint %s: %w", step.EndpointID, err)
		}
	}

	reply, err := endpoints.CallOutbound(ctx, step.EndpointID, tx.IntegrationID, tx.Message)
	if err != nil {
		return err
	}

	tx.Message = reply

	return nil
}

func (e *Executor) executeProcessor(ctx context.Context, step *models.Step, tx *models.Transaction) error {
	if e.deps.Modules == nil {
		return fmt.Errorf("%w: modules", ErrNoCollaborator)
	}

	return e.deps.Modules.RunProcessor(ctx, step.ModuleID, step.Processor, tx)
}

func (e *Executor) executeScript(ctx context.Context, step *models.Step, tx *models.Transaction) error {
	if e.deps.Modules == nil {
		return fmt.Errorf("%w: modules", ErrNoCollaborator)
	}

	result, err := e.deps.Modules.RunScript(ctx, step.ScriptID, tx, step.Async)
	if err != nil {
		return err
	}

	if result != nil && result != tx {
		tx.Message = result.Message
		tx.Properties = result.Properties
	}

	return nil
}

// executeForEach enters a loop over the list message. Empty lists and loops whose body is the
// collect step itself finish immediately and continue after the collect step.
func (e *Executor) executeForEach(step *models.Step, tx *models.Transaction) (bool, error) {
	if e.activeForEach != "" {
		return false, fmt.Errorf("%w: %s inside %s", ErrNestedLoopNotSupported, step.ID, e.activeForEach)
	}

	items, err := asList(tx.Message)
	if err != nil {
		return false, err
	}

	if len(items) == 0 || e.def.Next(step.ID) == step.CollectStepID {
		tx.Message = items
		e.jump(tx, e.def.Next(step.CollectStepID))

		return true, nil
	}

	e.loopItems = items
	e.loopResults = make([]any, 0, len(items))
	e.itemPointer = 0
	e.activeForEach = step.ID

	tx.Message = items[0]

	return false, nil
}

// executeCollect gathers the item result and either jumps back into the loop body or
// assembles the results.
func (e *Executor) executeCollect(step *models.Step, tx *models.Transaction) (bool, error) {
	if e.activeForEach == "" {
		return false, fmt.Errorf("%w: %s", ErrCollectWithoutLoop, step.ID)
	}

	e.loopResults = append(e.loopResults, tx.Message)
	e.itemPointer++

	if e.itemPointer >= len(e.loopItems) {
		tx.Message = e.loopResults
		e.clearLoop()

		return false, nil
	}

	tx.Message = e.loopItems[e.itemPointer]
	tx.MoveTo(e.def.Next(e.activeForEach))

	return true, nil
}

func (e *Executor) clearLoop() {
	e.loopItems = nil
	e.loopResults = nil
	e.itemPointer = 0
	e.activeForEach = ""
}
