package dosing

import "strings"

// Static reference tables for the volume formula. Pure data; tuning them
// does not change any engine behavior.

const (
	// ReferencePotSizeLiters is the pot size the base volumes are scaled
	// against.
	ReferencePotSizeLiters = 10.0

	// DefaultBaseWaterML is used when the plant type has no watering data.
	DefaultBaseWaterML = 500.0

	DefaultGrowingMedium = "soil"
	DefaultGrowthStage   = "vegetative"
	DefaultPlantType     = "default"

	// Pump safety bounds for a single watering run.
	MinPumpRunSeconds     = 1
	MaxPumpRunSeconds     = 300
	DefaultPumpRunSeconds = 30

	// DefaultFlowRateMlPerSecond stands in for uncalibrated pumps.
	DefaultFlowRateMlPerSecond = 2.0

	// MoistureIncreaseCapPct bounds the estimated moisture gain of one
	// watering.
	MoistureIncreaseCapPct = 50.0
)

// mediumProfile describes how a growing medium handles applied water.
type mediumProfile struct {
	// Retention scales the dose relative to the reference medium: fast
	// draining media need more water per watering, dense ones less.
	Retention float64
	// Recommended volumetric moisture band for the medium, in percent.
	MoistureMin float64
	MoistureMax float64
}

var mediumProfiles = map[string]mediumProfile{
	"soil":         {Retention: 1.0, MoistureMin: 40, MoistureMax: 60},
	"coco":         {Retention: 1.1, MoistureMin: 50, MoistureMax: 70},
	"perlite":      {Retention: 1.25, MoistureMin: 35, MoistureMax: 55},
	"vermiculite":  {Retention: 0.9, MoistureMin: 45, MoistureMax: 65},
	"rockwool":     {Retention: 0.8, MoistureMin: 55, MoistureMax: 75},
	"clay_pebbles": {Retention: 1.3, MoistureMin: 30, MoistureMax: 50},
}

var stageMultipliers = map[string]float64{
	"seedling":   0.5,
	"vegetative": 1.0,
	"flowering":  1.25,
	"fruiting":   1.4,
	"dormant":    0.3,
}

// Per-plant-type base volume for one watering of a reference-size pot.
var plantTypeBaseML = map[string]float64{
	"default":   DefaultBaseWaterML,
	"herb":      350,
	"leafy":     450,
	"fruiting":  650,
	"succulent": 150,
	"fern":      550,
	"tropical":  600,
}

// mediumFor resolves a growing medium, falling back to the default medium's
// profile for unknown names.
func mediumFor(name string) (mediumProfile, string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := mediumProfiles[key]; ok {
		return p, key
	}
	return mediumProfiles[DefaultGrowingMedium], DefaultGrowingMedium
}

// stageFactor resolves a growth stage multiplier, case-insensitive, 1.0 for
// unknown stages.
func stageFactor(stage string) float64 {
	if f, ok := stageMultipliers[strings.ToLower(strings.TrimSpace(stage))]; ok {
		return f
	}
	return 1.0
}

// baseVolumeFor resolves the plant-type base volume.
func baseVolumeFor(plantType string) float64 {
	if v, ok := plantTypeBaseML[strings.ToLower(strings.TrimSpace(plantType))]; ok {
		return v
	}
	return DefaultBaseWaterML
}
