package entities

// IrrigationCalculation is the transient result of one dosing computation.
// Inputs are echoed back so the caller (and the reasoning trace) can be
// interpreted without re-reading the plant record.
type IrrigationCalculation struct {
	PlantID             string  `json:"plant_id"`
	WaterVolumeML       float64 `json:"water_volume_ml"`
	DurationSeconds     int     `json:"duration_seconds"`
	FlowRateMlPerSecond float64 `json:"flow_rate_ml_per_second"`
	Confidence          float64 `json:"confidence"`
	Reasoning           string  `json:"reasoning"`

	PotSizeLiters float64 `json:"pot_size_liters"`
	GrowingMedium string  `json:"growing_medium"`
	GrowthStage   string  `json:"growth_stage"`
	PlantType     string  `json:"plant_type"`

	MLPrediction *MLPrediction `json:"ml_prediction,omitempty"`
	MLAdjusted   bool          `json:"ml_adjusted"`
}

// MLPrediction is the transient value fetched from the optional predictor.
type MLPrediction struct {
	PredictedVolumeML *float64 `json:"predicted_volume_ml,omitempty"`
	AdjustmentFactor  float64  `json:"adjustment_factor"`
	Confidence        float64  `json:"confidence"`
	ModelVersion      string   `json:"model_version,omitempty"`
	FeaturesUsed      []string `json:"features_used,omitempty"`
}

// Recommendation actions and urgency levels.
const (
	ActionWaterNow = "water_now"
	ActionWait     = "wait"
	ActionMonitor  = "monitor"
	ActionUnknown  = "unknown"

	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Recommendation is the watering advice for one plant at a given moisture.
type Recommendation struct {
	PlantID         string  `json:"plant_id"`
	Action          string  `json:"action"`
	Urgency         string  `json:"urgency"`
	CurrentMoisture float64 `json:"current_moisture"`
	TargetMoisture  float64 `json:"target_moisture,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}
