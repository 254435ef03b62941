// Package dosing computes recommended water volumes and pump run durations
// for individual plants, blending a deterministic formula with an optional
// external ML predictor. Dosing never errors on missing data; it degrades
// confidence and always produces a usable number.
package dosing

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/store"
)

// Calculator computes formula-based irrigation volumes and durations.
type Calculator struct {
	plants store.PlantStore
}

func NewCalculator(plants store.PlantStore) *Calculator {
	return &Calculator{plants: plants}
}

// ComputeWaterVolume applies the dosing formula
//
//	volume = base(plantType) * potFactor * mediumFactor * stageFactor
//
// and returns the volume with a reproducible human-readable trace of every
// factor, for debugging and UI display.
func (c *Calculator) ComputeWaterVolume(potSizeLiters float64, growingMedium, growthStage, plantType string) (float64, string) {
	base := baseVolumeFor(plantType)

	potFactor := 1.0
	if potSizeLiters > 0 {
		potFactor = potSizeLiters / ReferencePotSizeLiters
	}

	medium, mediumName := mediumFor(growingMedium)
	stage := stageFactor(growthStage)

	volume := base * potFactor * medium.Retention * stage

	reasoning := fmt.Sprintf(
		"base %.0f mL (type %s) x pot %.2f (%.1f L / %.1f L) x medium %.2f (%s) x stage %.2f (%s) = %.0f mL",
		base, orDefault(plantType, DefaultPlantType),
		potFactor, potSizeLiters, ReferencePotSizeLiters,
		medium.Retention, mediumName,
		stage, orDefault(growthStage, DefaultGrowthStage),
		volume,
	)
	return volume, reasoning
}

// ComputeDuration converts a volume into pump run seconds, clamped to the
// safety bounds. A non-positive flow rate never divides; it falls back to
// the default run length with a warning.
func (c *Calculator) ComputeDuration(volumeML, flowRateMlPerSecond float64, minDuration, maxDuration int) int {
	if minDuration <= 0 {
		minDuration = MinPumpRunSeconds
	}
	if maxDuration <= 0 {
		maxDuration = MaxPumpRunSeconds
	}
	if flowRateMlPerSecond <= 0 {
		logrus.Warnf("dosing: non-positive flow rate %.3f, using default duration %ds",
			flowRateMlPerSecond, DefaultPumpRunSeconds)
		return DefaultPumpRunSeconds
	}

	duration := int(math.Floor(volumeML / flowRateMlPerSecond))
	if duration < minDuration {
		duration = minDuration
	}
	if duration > maxDuration {
		duration = maxDuration
	}
	return duration
}

// Calculate produces the dosing recommendation for one plant. pumpFlowRate
// is the calibrated rate when available; nil selects the default rate and
// lowers confidence. Missing plants yield the degraded fallback result.
func (c *Calculator) Calculate(plantID string, pumpFlowRate *float64) entities.IrrigationCalculation {
	plant, ok := c.plants.GetPlant(plantID)
	if !ok {
		logrus.Warnf("dosing: plant %s not found, returning fallback dose", plantID)
		return entities.IrrigationCalculation{
			PlantID:             plantID,
			WaterVolumeML:       DefaultBaseWaterML,
			DurationSeconds:     DefaultPumpRunSeconds,
			FlowRateMlPerSecond: DefaultFlowRateMlPerSecond,
			Confidence:          0.1,
			Reasoning:           "plant not found",
			GrowingMedium:       DefaultGrowingMedium,
			GrowthStage:         DefaultGrowthStage,
			PlantType:           DefaultPlantType,
		}
	}

	potSize := plant.PotSizeLiters
	if potSize <= 0 {
		potSize = ReferencePotSizeLiters
	}
	medium := plant.GrowingMedium
	if strings.TrimSpace(medium) == "" {
		medium = DefaultGrowingMedium
	}
	stage := plant.GrowthStage
	if strings.TrimSpace(stage) == "" {
		stage = DefaultGrowthStage
	}
	plantType := plant.PlantType
	if strings.TrimSpace(plantType) == "" {
		plantType = DefaultPlantType
	}

	volume, reasoning := c.ComputeWaterVolume(potSize, medium, stage, plantType)

	flowRate := DefaultFlowRateMlPerSecond
	if pumpFlowRate != nil {
		flowRate = *pumpFlowRate
	}
	duration := c.ComputeDuration(volume, flowRate, 0, 0)

	// Confidence is a data-completeness score, not a statistical measure.
	confidence := 0.0
	if pumpFlowRate != nil {
		confidence += 0.50
	}
	if plant.PotSizeLiters > 0 {
		confidence += 0.25
	}
	if strings.TrimSpace(plant.PlantType) != "" {
		confidence += 0.25
	}

	return entities.IrrigationCalculation{
		PlantID:             plantID,
		WaterVolumeML:       volume,
		DurationSeconds:     duration,
		FlowRateMlPerSecond: flowRate,
		Confidence:          confidence,
		Reasoning:           reasoning,
		PotSizeLiters:       plant.PotSizeLiters,
		GrowingMedium:       medium,
		GrowthStage:         stage,
		PlantType:           plantType,
	}
}

// EstimateMoistureIncrease approximates the volumetric moisture gain, in
// percentage points, of applying a volume to a pot of the given size.
func (c *Calculator) EstimateMoistureIncrease(waterVolumeML, potSizeLiters float64, growingMedium string) float64 {
	if potSizeLiters <= 0 {
		return 0
	}
	medium, _ := mediumFor(growingMedium)
	base := (waterVolumeML / (potSizeLiters * 1000)) * 100
	increase := base * medium.Retention
	if increase > MoistureIncreaseCapPct {
		increase = MoistureIncreaseCapPct
	}
	return increase
}

// GetRecommendations advises whether to water a plant now given its current
// moisture reading. targetMoisture of nil selects the midpoint of the
// medium's recommended band.
func (c *Calculator) GetRecommendations(plantID string, currentMoisture float64, targetMoisture *float64) entities.Recommendation {
	plant, ok := c.plants.GetPlant(plantID)
	if !ok {
		return entities.Recommendation{
			PlantID:         plantID,
			Action:          entities.ActionUnknown,
			Urgency:         entities.UrgencyLow,
			CurrentMoisture: currentMoisture,
			Reason:          "plant not found",
		}
	}

	medium, mediumName := mediumFor(plant.GrowingMedium)
	target := (medium.MoistureMin + medium.MoistureMax) / 2
	if targetMoisture != nil {
		target = *targetMoisture
	}

	rec := entities.Recommendation{
		PlantID:         plantID,
		CurrentMoisture: currentMoisture,
		TargetMoisture:  target,
	}
	switch {
	case currentMoisture < medium.MoistureMin:
		rec.Action = entities.ActionWaterNow
		rec.Urgency = entities.UrgencyMedium
		if target-currentMoisture > 20 {
			rec.Urgency = entities.UrgencyHigh
		}
		rec.Reason = fmt.Sprintf("moisture %.1f%% below %s minimum %.1f%%", currentMoisture, mediumName, medium.MoistureMin)
	case currentMoisture > medium.MoistureMax:
		rec.Action = entities.ActionWait
		rec.Urgency = entities.UrgencyLow
		rec.Reason = fmt.Sprintf("moisture %.1f%% above %s maximum %.1f%%", currentMoisture, mediumName, medium.MoistureMax)
	default:
		rec.Action = entities.ActionMonitor
		rec.Urgency = entities.UrgencyLow
		rec.Reason = fmt.Sprintf("moisture %.1f%% inside %s band %.1f-%.1f%%", currentMoisture, mediumName, medium.MoistureMin, medium.MoistureMax)
	}
	return rec
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
