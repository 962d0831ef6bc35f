package integration

import "errors"

var (
	ErrIntegrationRunning   = errors.New("integration is running")
	ErrIntegrationStopped   = errors.New("integration is stopped")
	ErrIntegrationDestroyed = errors.New("integration is destroyed")
	ErrIntegrationExists    = errors.New("integration already registered")
	ErrIntegrationNotFound  = errors.New("integration not found")
	ErrConditionNotMet      = errors.New("start condition not met")
	ErrForeignTransaction   = errors.New("transaction belongs to another integration")
	ErrUnknownStep          = errors.New("unknown step")
	ErrProbeNotFound        = errors.New("probe session not found")
	ErrNoScheduler          = errors.New("definition is scheduled but no scheduler is configured")
)
