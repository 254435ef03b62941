package entities

import "strings"

// ActuatorTypePump is the canonical actuator type tag for dosing pumps.
// Matching is case-insensitive but exact: variants like "water-pump" are
// different device classes and must not be treated as calibratable pumps.
const ActuatorTypePump = "pump"

// Pump represents a single dosing pump attached to a grow unit.
type Pump struct {
	ID           string               `json:"id"`
	UnitID       int                  `json:"unit_id,omitempty"`
	Name         string               `json:"name,omitempty"`
	ActuatorType string               `json:"actuator_type"`
	GPIOPin      int                  `json:"gpio_pin,omitempty"`
	Calibration  *PumpCalibrationData `json:"calibration,omitempty"`
}

// IsPump reports whether the actuator type tag identifies a dosing pump.
func IsPump(actuatorType string) bool {
	return strings.EqualFold(strings.TrimSpace(actuatorType), ActuatorTypePump)
}
