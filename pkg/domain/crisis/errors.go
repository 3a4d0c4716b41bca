package crisis

import "errors"

var (
	// ErrInvalidTransition signals a workflow transition the state graph does
	// not allow. It is a defect signal, not an expected runtime condition.
	ErrInvalidTransition = errors.New("invalid intervention state transition")

	// ErrInterventionNotFound signals an operation against a session with no
	// active intervention.
	ErrInterventionNotFound = errors.New("no active intervention for session")
)
