package executor

import (
	"errors"

	"github.com/dukex/integra/pkg/protocol"
)

var (
	ErrNestedLoopNotSupported = errors.New("nested for_each loops are not supported")
	ErrCollectWithoutLoop     = errors.New("collect step reached outside of a loop")
	ErrApplicationNotRunning  = errors.New("application not running")
	ErrNotAList               = errors.New("for_each message is not a list")
	ErrUnknownStep            = errors.New("unknown step")
	ErrUnsupportedStep        = errors.New("unsupported step type")
	ErrNoCollaborator         = errors.New("collaborator not configured")

	// ErrModuleNotFound is returned when a processor or script step references code that is not loaded.
	ErrModuleNotFound = protocol.ErrModuleNotFound
)
