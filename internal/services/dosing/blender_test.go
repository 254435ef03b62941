package dosing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/internal/store"
)

type fakePredictor struct {
	volume    *float64
	predictEr error
	adjFactor float64
	features  []string

	historySeen []messages.FeedbackEntry
}

func (p *fakePredictor) PredictWaterVolume(_ context.Context, _ string, _ map[string]float64) (*float64, error) {
	return p.volume, p.predictEr
}

func (p *fakePredictor) GetAdjustmentFactor(_ context.Context, _ string, history []messages.FeedbackEntry) float64 {
	p.historySeen = history
	return p.adjFactor
}

func (p *fakePredictor) ModelVersion() string { return "test-model-1" }

func (p *fakePredictor) FeaturesUsed() []string { return p.features }

func newTestBlender(predictor Predictor, feedback FeedbackSource) *Blender {
	calc := NewCalculator(store.NewMemoryPlantStore(testPlant("basil-1")))
	return NewBlender(calc, predictor, feedback)
}

func TestBlendWithoutPredictor(t *testing.T) {
	b := newTestBlender(nil, nil)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if out.MLAdjusted {
		t.Error("no predictor must mean no ML adjustment")
	}
	if out.MLPrediction != nil {
		t.Error("no predictor must mean no prediction record")
	}
}

func TestBlendPredictorFailureFallsBack(t *testing.T) {
	pred := &fakePredictor{predictEr: errors.New("service down")}
	b := newTestBlender(pred, nil)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if out.MLAdjusted {
		t.Error("failed prediction must leave the base result untouched")
	}
	base := NewCalculator(store.NewMemoryPlantStore(testPlant("basil-1"))).Calculate("basil-1", floatPtr(3.0))
	if !almostEqual(out.WaterVolumeML, base.WaterVolumeML) {
		t.Errorf("volume = %v, want base %v", out.WaterVolumeML, base.WaterVolumeML)
	}
}

func TestBlendDirectVolumePrediction(t *testing.T) {
	pred := &fakePredictor{volume: floatPtr(300), adjFactor: 1.0}
	b := newTestBlender(pred, nil)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if !out.MLAdjusted {
		t.Fatal("expected an ML-adjusted result")
	}

	base := NewCalculator(store.NewMemoryPlantStore(testPlant("basil-1"))).Calculate("basil-1", floatPtr(3.0))
	// No feedback history: weight is the 0.7 base prediction confidence.
	want := base.WaterVolumeML*0.3 + 300*0.7
	if !almostEqual(out.WaterVolumeML, want) {
		t.Errorf("blended volume = %v, want %v", out.WaterVolumeML, want)
	}
	if out.DurationSeconds != int(want/3.0) {
		t.Errorf("duration = %d, want recomputed %d", out.DurationSeconds, int(want/3.0))
	}
	if !almostEqual(out.Confidence, 1.0) {
		t.Errorf("confidence = %v, want base+0.1 capped at 1.0", out.Confidence)
	}
	if out.MLPrediction == nil {
		t.Fatal("expected the prediction record")
	}
	if out.MLPrediction.ModelVersion != "test-model-1" {
		t.Errorf("model version = %q", out.MLPrediction.ModelVersion)
	}
	if !almostEqual(out.MLPrediction.Confidence, 0.7) {
		t.Errorf("prediction confidence = %v, want 0.7", out.MLPrediction.Confidence)
	}
}

func TestBlendRecordsFeaturesUsed(t *testing.T) {
	pred := &fakePredictor{volume: floatPtr(300), adjFactor: 1.0, features: []string{"temp", "humidity"}}
	b := newTestBlender(pred, nil)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if out.MLPrediction == nil {
		t.Fatal("expected a prediction record")
	}
	if got := out.MLPrediction.FeaturesUsed; len(got) != 2 || got[0] != "temp" || got[1] != "humidity" {
		t.Errorf("features used = %v", got)
	}
}

func TestBlendFeedbackBoostsWeight(t *testing.T) {
	pred := &fakePredictor{volume: floatPtr(300), adjFactor: 1.0}
	log := NewFeedbackLog()
	for i := 0; i < 10; i++ {
		log.Add("basil-1", messages.FeedbackJustRight, 250, time.Now())
	}
	b := newTestBlender(pred, log)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if !out.MLAdjusted {
		t.Fatal("expected an ML-adjusted result")
	}
	// 0.7 + 10*0.01 = 0.8
	if !almostEqual(out.MLPrediction.Confidence, 0.8) {
		t.Errorf("prediction confidence = %v, want 0.8", out.MLPrediction.Confidence)
	}
	if len(pred.historySeen) != 10 {
		t.Errorf("predictor saw %d feedback entries, want 10", len(pred.historySeen))
	}
}

func TestBlendAdjustmentOnlyPrediction(t *testing.T) {
	pred := &fakePredictor{volume: nil, adjFactor: 1.2}
	log := NewFeedbackLog()
	log.Add("basil-1", messages.FeedbackTooLittle, 200, time.Now())
	b := newTestBlender(pred, log)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if !out.MLAdjusted {
		t.Fatal("adjustment-only prediction with feedback must blend")
	}
	base := NewCalculator(store.NewMemoryPlantStore(testPlant("basil-1"))).Calculate("basil-1", floatPtr(3.0))
	if !almostEqual(out.WaterVolumeML, base.WaterVolumeML*1.2) {
		t.Errorf("volume = %v, want base scaled by 1.2", out.WaterVolumeML)
	}
	// 0.4 + 1*0.01
	if !almostEqual(out.MLPrediction.Confidence, 0.41) {
		t.Errorf("prediction confidence = %v, want 0.41", out.MLPrediction.Confidence)
	}
}

func TestBlendAdjustmentOnlyWithoutFeedbackSkipped(t *testing.T) {
	pred := &fakePredictor{volume: nil, adjFactor: 1.5}
	b := newTestBlender(pred, nil)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if out.MLAdjusted {
		t.Error("zero-confidence prediction must not blend")
	}
	if out.MLPrediction == nil {
		t.Error("the skipped prediction is still recorded for observability")
	}
}

func TestBlendZeroAdjustmentFactorMeansNeutral(t *testing.T) {
	pred := &fakePredictor{volume: floatPtr(240), adjFactor: 0}
	b := newTestBlender(pred, nil)

	out := b.CalculateWithML(context.Background(), "basil-1", floatPtr(3.0), nil)
	if !out.MLAdjusted {
		t.Fatal("expected an ML-adjusted result")
	}
	if !almostEqual(out.MLPrediction.AdjustmentFactor, 1.0) {
		t.Errorf("adjustment factor = %v, want neutral 1.0", out.MLPrediction.AdjustmentFactor)
	}
}

func TestRecordFeedbackBestEffort(t *testing.T) {
	b := newTestBlender(nil, nil)

	// No recorder installed: must not panic.
	b.RecordFeedback("basil-1", messages.FeedbackTooMuch, 250)

	var got []string
	b.SetFeedbackRecorder(func(plantID, feedbackType string, volumeML float64) error {
		got = append(got, plantID+"/"+feedbackType)
		return errors.New("sink offline") // swallowed
	})
	b.RecordFeedback("basil-1", messages.FeedbackTooMuch, 250)
	if len(got) != 1 || got[0] != "basil-1/too_much" {
		t.Errorf("recorder calls = %v", got)
	}
}

func TestFeedbackLogBoundedNewestFirst(t *testing.T) {
	log := NewFeedbackLog()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxFeedbackPerPlant+10; i++ {
		log.Add("p1", messages.FeedbackJustRight, float64(i), base.Add(time.Duration(i)*time.Minute))
	}

	list := log.ListFeedback("p1")
	if len(list) != maxFeedbackPerPlant {
		t.Fatalf("len = %d, want %d", len(list), maxFeedbackPerPlant)
	}
	if list[0].VolumeML != float64(maxFeedbackPerPlant+9) {
		t.Errorf("list[0] volume = %v, want the newest entry", list[0].VolumeML)
	}

	if got := log.ListFeedback("unknown"); got != nil {
		t.Errorf("unknown plant feedback = %v, want nil", got)
	}

	// Returned slices are copies; mutating them must not corrupt the log.
	list[0].VolumeML = -1
	if log.ListFeedback("p1")[0].VolumeML == -1 {
		t.Error("ListFeedback leaked internal state")
	}
}
