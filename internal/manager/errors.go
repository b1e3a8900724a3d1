package manager

import (
	"errors"
	"fmt"
)

// Submission errors returned to callers of StartAdvertising/StopAdvertising.
var (
	ErrNilClient        = errors.New("nil advertise client")
	ErrNotRunning       = errors.New("advertise manager is not running")
	ErrAlreadyRunning   = errors.New("advertise manager is already running")
	ErrQueueFull        = errors.New("advertise request queue is full")
	ErrPermissionDenied = errors.New("permission denied")
)

// Controller round-trip errors. They never reach callers directly; a start
// that hits one is reported as advertise.StatusInternalError.
var (
	ErrAckTimeout = errors.New("controller acknowledgment timed out")
	ErrAckFailure = errors.New("controller reported failure")
)

// StepError describes which controller command of a start or stop sequence
// failed.
type StepError struct {
	Step     string
	ClientID int
	Err      error
}

func (e *StepError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s for client %d: %v", e.Step, e.ClientID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
