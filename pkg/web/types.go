package web

import (
	"time"

	"github.com/dukex/integra/pkg/executor"
	"github.com/dukex/integra/pkg/integration"
	"github.com/dukex/integra/pkg/models"
)

// IntegrationResponse is the summary of a registered integration.
type IntegrationResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name,omitempty"`
	ClientID       string             `json:"client_id,omitempty"`
	Running        bool               `json:"running"`
	ScheduledTasks []string           `json:"scheduled_tasks"`
	BoundEndpoints []string           `json:"bound_endpoints"`
	Definition     *models.Definition `json:"definition,omitempty"`
}

func toIntegrationResponse(i *integration.Integration, withDefinition bool) IntegrationResponse {
	def := i.Definition()

	response := IntegrationResponse{
		ID:             i.ID(),
		Name:           def.Name,
		ClientID:       i.ClientID(),
		Running:        i.Running(),
		ScheduledTasks: i.ScheduledTasks(),
		BoundEndpoints: i.BoundEndpoints(),
	}

	if withDefinition {
		response.Definition = def
	}

	return response
}

// RunInstanceRequest starts an instance as if the first step produced Message.
type RunInstanceRequest struct {
	Message any `json:"message"`
}

// ProbeRequest runs one step, or the rest of the graph when Continue is set, without
// touching the transaction log.
type ProbeRequest struct {
	integration.TestInstance

	Config   any  `json:"config,omitempty"`
	Continue bool `json:"continue,omitempty"`
}

type ProbeNextRequest struct {
	Continue bool `json:"continue,omitempty"`
}

type UpdateConfigRequest struct {
	Config any `json:"config" validate:"required"`
}

type UpdateStepMessageRequest struct {
	Message any `json:"message" validate:"required"`
}

// ExecutionResponse is one probed step.
type ExecutionResponse struct {
	StepID    string          `json:"step_id"`
	StepType  models.StepType `json:"step_type"`
	Input     any             `json:"input,omitempty"`
	Output    any             `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	ElapsedMs int64           `json:"elapsed_ms"`
}

type ProbeResponse struct {
	Transaction *models.Transaction `json:"transaction"`
	Executions  []ExecutionResponse `json:"executions"`
}

func toExecutionResponses(executions []executor.StepExecution) []ExecutionResponse {
	responses := make([]ExecutionResponse, 0, len(executions))

	for _, e := range executions {
		response := ExecutionResponse{
			StepID:    e.StepID,
			StepType:  e.StepType,
			Input:     e.Input,
			Output:    e.Output,
			StartedAt: e.Started,
			ElapsedMs: e.Elapsed.Milliseconds(),
		}

		if e.Err != nil {
			response.Error = e.Err.Error()
		}

		responses = append(responses, response)
	}

	return responses
}
