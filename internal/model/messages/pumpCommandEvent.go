package messages

import "time"

// Pump command verbs.
const (
	PumpCommandOn  = "on"
	PumpCommandOff = "off"
)

// PumpCommandEvent is the timed-activation command published to the device
// bridge that drives the physical pump (GPIO/Zigbee behind the bridge).
type PumpCommandEvent struct {
	PumpID          string    `json:"pump_id"`
	UnitID          int       `json:"unit_id,omitempty"`
	Command         string    `json:"command"` // on | off
	DurationSeconds int       `json:"duration_seconds,omitempty"`
	TicketID        string    `json:"ticket_id"`
	Timestamp       time.Time `json:"timestamp"`
}
