package messages

import (
	"time"

	"github.com/plantio/autowater/internal/model/entities"
)

// CalibrationEvent is published by the calibration service whenever a pump's
// stored flow rate changes, either from a manual timed run or from a
// feedback adjustment.
type CalibrationEvent struct {
	PumpID              string                     `json:"pump_id"`
	UnitID              int                        `json:"unit_id,omitempty"`
	Method              entities.CalibrationMethod `json:"method"`
	FlowRateMlPerSecond float64                    `json:"flow_rate_ml_per_second"`
	MeasuredVolumeML    float64                    `json:"measured_volume_ml,omitempty"`
	DurationSeconds     int                        `json:"duration_seconds,omitempty"`
	Confidence          float64                    `json:"confidence"`
	Timestamp           time.Time                  `json:"timestamp"`
}
