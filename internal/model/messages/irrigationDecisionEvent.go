package messages

import "time"

// IrrigationDecisionEvent is published by the dosing service to record
// WHY/WHAT volume was recommended for a plant.
type IrrigationDecisionEvent struct {
	PlantID             string    `json:"plant_id"`
	PumpID              string    `json:"pump_id,omitempty"`
	UnitID              int       `json:"unit_id,omitempty"`
	WaterVolumeML       float64   `json:"water_volume_ml"`
	DurationSeconds     int       `json:"duration_seconds"`
	FlowRateMlPerSecond float64   `json:"flow_rate_ml_per_second"`
	Confidence          float64   `json:"confidence"`
	MLAdjusted          bool      `json:"ml_adjusted"`
	Timestamp           time.Time `json:"timestamp"`
}
