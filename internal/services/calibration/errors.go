package calibration

import (
	"errors"
	"fmt"

	"github.com/plantio/autowater/internal/model/entities"
)

var (
	// ErrPumpNotFound means the pump id is unknown to the config store.
	ErrPumpNotFound = errors.New("pump not found")

	// ErrNotAPump means the device exists but its actuator type is not the
	// canonical pump tag.
	ErrNotAPump = errors.New("device is not a pump")

	// ErrNoActiveSession means no calibration run is awaiting measurement
	// for the pump.
	ErrNoActiveSession = errors.New("no active calibration session")

	// ErrInvalidMeasurement means the measured volume was not strictly
	// positive.
	ErrInvalidMeasurement = errors.New("measured volume must be positive")

	// ErrInvalidDuration means the requested run duration was not a
	// positive number of seconds.
	ErrInvalidDuration = errors.New("calibration duration must be positive")

	// ErrActivationFailed means the pump driver rejected the timed-run
	// command; no session was created and the caller may retry.
	ErrActivationFailed = errors.New("pump activation failed")

	// ErrPersistFailed means the config store refused the calibration write.
	ErrPersistFailed = errors.New("failed to persist calibration data")
)

// InProgressError reports a conflicting active session on the same pump.
type InProgressError struct {
	PumpID string
	Status entities.SessionStatus
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("calibration already in progress for pump %s (status %s)", e.PumpID, e.Status)
}

// IsConflict reports whether err is a calibration-in-progress conflict.
func IsConflict(err error) bool {
	var ipe *InProgressError
	return errors.As(err, &ipe)
}
