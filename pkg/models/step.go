package models

// StepType identifies the variant of a workflow step.
type StepType string

const (
	StepTypeDirect    StepType = "direct"    // Replaces the message with a static one
	StepTypeEndpoint  StepType = "endpoint"  // Calls (outbound) or is fed by (inbound) an endpoint
	StepTypeProcessor StepType = "processor" // Runs a registered processor of a loaded module
	StepTypeScript    StepType = "script"    // Runs a registered script, possibly asynchronously
	StepTypeForEach   StepType = "for_each"  // Loop head over a list message
	StepTypeCollect   StepType = "collect"   // Loop tail gathering per-item results
)

// Direction of an endpoint step.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Step is one node of an integration graph.
type Step struct {
	ID   string   `json:"id"             yaml:"id"             validate:"required"`
	Name string   `json:"name,omitempty" yaml:"name,omitempty"`
	Type StepType `json:"type"           yaml:"type"           validate:"required,oneof=direct endpoint processor script for_each collect"`

	// Direct
	Message any `json:"message,omitempty" yaml:"message,omitempty"`

	// Endpoint
	EndpointID string    `json:"endpoint_id,omitempty" yaml:"endpoint_id,omitempty" validate:"required_if=Type endpoint"`
	Direction  Direction `json:"direction,omitempty"   yaml:"direction,omitempty"   validate:"omitempty,oneof=inbound outbound"`

	// Processor
	ModuleID  string `json:"module_id,omitempty" yaml:"module_id,omitempty" validate:"required_if=Type processor"`
	Processor string `json:"processor,omitempty" yaml:"processor,omitempty" validate:"required_if=Type processor"`

	// Script
	ScriptID string `json:"script_id,omitempty" yaml:"script_id,omitempty" validate:"required_if=Type script"`
	Async    bool   `json:"async,omitempty"     yaml:"async,omitempty"`

	// ForEach
	CollectStepID string `json:"collect_step_id,omitempty" yaml:"collect_step_id,omitempty" validate:"required_if=Type for_each"`
}

// IsInbound reports whether the step is an endpoint fed from outside.
func (s *Step) IsInbound() bool {
	return s.Type == StepTypeEndpoint && s.Direction == DirectionInbound
}

// DisplayName returns the name, falling back to the ID.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}

	return s.ID
}
