package models

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/integra/pkg/faults"
)

func loopDefinition() *Definition {
	return &Definition{
		ID: "orders",
		Steps: []*Step{
			{ID: "start", Type: StepTypeDirect, Message: []any{1, 2, 3}},
			{ID: "each", Type: StepTypeForEach, CollectStepID: "gather"},
			{ID: "work", Type: StepTypeProcessor, ModuleID: "core", Processor: "log"},
			{ID: "gather", Type: StepTypeCollect},
			{ID: "done", Type: StepTypeDirect, Message: "ok"},
			{ID: "oops", Type: StepTypeDirect, Message: "failed"},
		},
		Edges: map[string][]string{
			"start":  {"each"},
			"each":   {"work"},
			"work":   {"gather"},
			"gather": {"done"},
		},
		ExceptionStepID: "oops",
	}
}

func TestDefinition_Validate_Valid(t *testing.T) {
	def := loopDefinition()

	require.NoError(t, def.Validate())
	assert.Equal(t, "start", def.FirstStep().ID)
	assert.Equal(t, "work", def.Next("each"))
	assert.Empty(t, def.Next("done"))
}

func TestDefinition_Validate_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(d *Definition)
		want   error
	}{
		{
			name:   "no steps",
			mutate: func(d *Definition) { d.Steps = nil },
			want:   ErrNoSteps,
		},
		{
			name: "duplicate step",
			mutate: func(d *Definition) {
				d.Steps = append(d.Steps, &Step{ID: "done", Type: StepTypeDirect})
			},
			want: ErrDuplicateStep,
		},
		{
			name:   "edge to unknown step",
			mutate: func(d *Definition) { d.Edges["done"] = []string{"nowhere"} },
			want:   ErrUnknownStep,
		},
		{
			name:   "unknown exception step",
			mutate: func(d *Definition) { d.ExceptionStepID = "missing" },
			want:   ErrUnknownStep,
		},
		{
			name:   "two roots",
			mutate: func(d *Definition) { delete(d.Edges, "start") },
			want:   ErrFirstStep,
		},
		{
			name:   "for_each without collect",
			mutate: func(d *Definition) { d.Steps[1].CollectStepID = "work" },
			want:   ErrLoopPairing,
		},
		{
			name: "orphan collect",
			mutate: func(d *Definition) {
				d.Steps = append(d.Steps, &Step{ID: "lonely", Type: StepTypeCollect})
				d.Edges["done"] = []string{"lonely"}
			},
			want: ErrLoopPairing,
		},
		{
			name: "nested loop",
			mutate: func(d *Definition) {
				d.Steps[2] = &Step{ID: "work", Type: StepTypeForEach, CollectStepID: "inner"}
				d.Steps = append(d.Steps, &Step{ID: "inner", Type: StepTypeCollect})
				d.Edges["work"] = []string{"inner"}
				d.Edges["inner"] = []string{"gather"}
			},
			want: ErrNestedLoop,
		},
		{
			name: "invalid schedule",
			mutate: func(d *Definition) {
				d.Schedule = &Schedule{Cron: "* * *", IntervalMillis: 0}
			},
			want: ErrInvalidSchedule,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			def := loopDefinition()
			tc.mutate(def)

			err := def.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, faults.IsConfiguration(err))
		})
	}
}

func TestDefinition_ExceptionStepIsNotARoot(t *testing.T) {
	def := &Definition{
		ID: "simple",
		Steps: []*Step{
			{ID: "a", Type: StepTypeDirect},
			{ID: "handler", Type: StepTypeDirect},
		},
		ExceptionStepID: "handler",
	}

	require.NoError(t, def.Validate())
	assert.Equal(t, "a", def.FirstStep().ID)
}

func TestDefinition_WithStepMessage(t *testing.T) {
	def := loopDefinition()

	updated, err := def.WithStepMessage("done", "changed")
	require.NoError(t, err)

	assert.Equal(t, "changed", updated.Step("done").Message)
	assert.Equal(t, "ok", def.Step("done").Message)
	assert.Same(t, def.Step("start"), updated.Step("start"))

	_, err = def.WithStepMessage("missing", "x")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestDefinition_StructValidation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	def := loopDefinition()
	require.NoError(t, validate.Struct(def))

	def.Steps[2].ModuleID = ""
	assert.Error(t, validate.Struct(def))
}

func TestDefinition_JSON(t *testing.T) {
	raw := `{
		"id": "poller",
		"steps": [
			{"id": "in", "type": "endpoint", "endpoint_id": "orders", "direction": "inbound"},
			{"id": "out", "type": "script", "script_id": "notify", "async": true}
		],
		"edges": {"in": ["out"]},
		"schedule": {"interval_ms": 500, "repeat_count": 3, "clustered": true}
	}`

	var def Definition
	require.NoError(t, json.Unmarshal([]byte(raw), &def))
	require.NoError(t, def.Validate())

	assert.True(t, def.FirstStep().IsInbound())
	assert.True(t, def.Schedule.IsInterval())
	assert.Len(t, def.EndpointSteps(), 1)
	assert.Equal(t, "out", def.Step("out").DisplayName())
}

func TestTransaction_MoveToAndProperties(t *testing.T) {
	tx := &Transaction{CurrentStep: "a"}

	tx.MoveTo("b")
	tx.SetProperty("k", 1)

	assert.Equal(t, "a", tx.PreviousStep)
	assert.Equal(t, "b", tx.CurrentStep)

	v, ok := tx.Property("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestNewTransactionRecord(t *testing.T) {
	tx := &Transaction{ID: 42, IntegrationID: "i", Finished: true, Failed: true, ErrorMessage: "boom"}

	record := NewTransactionRecord(tx)

	assert.Equal(t, TransactionStatusFailed, record.Status)
	assert.NotNil(t, record.FinishedAt)

	tx.Finished = false
	assert.Equal(t, TransactionStatusRunning, NewTransactionRecord(tx).Status)
}
