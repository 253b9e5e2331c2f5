package simulate

import (
	"errors"
	"fmt"
)

// Simulation errors.
var (
	ErrUnhealthy    = errors.New("service is not healthy")
	ErrDrainTimeout = errors.New("timed out waiting for records to persist")
	ErrVerification = errors.New("verification failed")
	ErrRejected     = errors.New("submission rejected")
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}
