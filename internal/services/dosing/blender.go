package dosing

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/model/messages"
)

// MLConfidenceThreshold gates blending of direct volume predictions.
const MLConfidenceThreshold = 0.7

// Predictor is the optional external ML volume predictor. Its absence or
// failure never degrades dosing, only disables blending.
type Predictor interface {
	PredictWaterVolume(ctx context.Context, plantID string, env map[string]float64) (*float64, error)
	GetAdjustmentFactor(ctx context.Context, plantID string, history []messages.FeedbackEntry) float64
}

// FeedbackSource supplies per-plant feedback history for the predictor and
// for the prediction confidence model.
type FeedbackSource interface {
	ListFeedback(plantID string) []messages.FeedbackEntry
}

// Blender combines the formula-based calculation with ML predictions.
type Blender struct {
	calc      *Calculator
	predictor Predictor      // nil means not configured
	feedback  FeedbackSource // optional

	// recorder captures feedback for ML training; best-effort telemetry.
	recorder func(plantID, feedbackType string, volumeML float64) error
}

func NewBlender(calc *Calculator, predictor Predictor, feedback FeedbackSource) *Blender {
	return &Blender{calc: calc, predictor: predictor, feedback: feedback}
}

// SetFeedbackRecorder installs the training-data capture callback.
func (b *Blender) SetFeedbackRecorder(fn func(plantID, feedbackType string, volumeML float64) error) {
	b.recorder = fn
}

// CalculateWithML computes the base formula result and, when a predictor is
// configured and confident enough, blends its prediction in. Predictor
// failures are swallowed: the caller always gets at least the base result.
func (b *Blender) CalculateWithML(ctx context.Context, plantID string, pumpFlowRate *float64, env map[string]float64) entities.IrrigationCalculation {
	base := b.calc.Calculate(plantID, pumpFlowRate)
	if b.predictor == nil {
		return base
	}

	predicted, err := b.predictor.PredictWaterVolume(ctx, plantID, env)
	if err != nil {
		logrus.Warnf("dosing: ML prediction for plant %s failed: %v", plantID, err)
		return base
	}

	var history []messages.FeedbackEntry
	if b.feedback != nil {
		history = b.feedback.ListFeedback(plantID)
	}
	adjFactor := b.predictor.GetAdjustmentFactor(ctx, plantID, history)
	if adjFactor == 0 {
		adjFactor = 1.0
	}

	prediction := &entities.MLPrediction{
		PredictedVolumeML: predicted,
		AdjustmentFactor:  adjFactor,
		Confidence:        predictionConfidence(predicted != nil, len(history)),
	}
	if v, ok := b.predictor.(interface{ ModelVersion() string }); ok {
		prediction.ModelVersion = v.ModelVersion()
	}
	if v, ok := b.predictor.(interface{ FeaturesUsed() []string }); ok {
		prediction.FeaturesUsed = v.FeaturesUsed()
	}

	// Direct volumes must clear the confidence threshold. Adjustment-factor-
	// only predictions blend on any nonzero confidence; this asymmetry is
	// kept on purpose (see DESIGN.md) and is a candidate for tightening, not
	// a bug to fix silently.
	eligible := (predicted != nil && prediction.Confidence >= MLConfidenceThreshold) ||
		(predicted == nil && prediction.Confidence > 0)
	if !eligible {
		base.MLPrediction = prediction
		return base
	}

	var blended float64
	if predicted != nil {
		w := prediction.Confidence
		blended = base.WaterVolumeML*(1-w) + (*predicted*adjFactor)*w
	} else {
		blended = base.WaterVolumeML * adjFactor
	}

	out := base
	out.WaterVolumeML = blended
	out.DurationSeconds = b.calc.ComputeDuration(blended, base.FlowRateMlPerSecond, 0, 0)
	out.Confidence = math.Min(base.Confidence+0.1, 1.0)
	out.MLPrediction = prediction
	out.MLAdjusted = true

	logrus.Infof("dosing: plant %s volume %.0f -> %.0f mL after ML blend (w=%.2f)",
		plantID, base.WaterVolumeML, blended, prediction.Confidence)
	return out
}

// RecordFeedback forwards an irrigation outcome to the training-data
// recorder. Failures are logged, never raised; this is telemetry, not a
// transactional write.
func (b *Blender) RecordFeedback(plantID, feedbackType string, volumeML float64) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder(plantID, feedbackType, volumeML); err != nil {
		logrus.Warnf("dosing: record feedback for plant %s failed: %v", plantID, err)
	}
}

// predictionConfidence implements the fetched-prediction confidence model:
// direct volumes start at 0.7 and historical feedback boosts them toward
// 0.9; adjustment-factor-only predictions need feedback to score at all.
func predictionConfidence(hasVolume bool, feedbackCount int) float64 {
	if hasVolume {
		if feedbackCount > 0 {
			return math.Min(0.9, 0.7+float64(feedbackCount)*0.01)
		}
		return 0.7
	}
	if feedbackCount > 0 {
		return math.Min(0.6, 0.4+float64(feedbackCount)*0.01)
	}
	return 0
}
