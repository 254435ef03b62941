package calibration

import (
	"math"
	"testing"
	"time"

	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/internal/store"
)

func calibratedPump(id string, rate, confidence float64) entities.Pump {
	return entities.Pump{
		ID:           id,
		UnitID:       1,
		ActuatorType: "pump",
		Calibration: &entities.PumpCalibrationData{
			FlowRateMlPerSecond:     rate,
			CalibrationVolumeML:     rate * 30,
			CalibrationDurationSecs: 30,
			CalibratedAt:            time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
			Confidence:              confidence,
		},
	}
}

func newTestAdjuster(pumps ...entities.Pump) (*FeedbackAdjuster, *store.MemoryPumpStore) {
	st := store.NewMemoryPumpStore(pumps...)
	a := NewFeedbackAdjuster(st)
	a.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return a, st
}

func TestAdjustTooLittleLowersRate(t *testing.T) {
	a, st := newTestAdjuster(calibratedPump("p1", 3.0, 1.0))

	rate, ok := a.AdjustFromFeedback("p1", messages.FeedbackTooLittle, 0)
	if !ok {
		t.Fatal("adjustment rejected")
	}
	if !almostEqual(rate, 2.85) {
		t.Errorf("rate = %v, want 2.85", rate)
	}

	p, _ := st.GetPump("p1")
	if !almostEqual(p.Calibration.FlowRateMlPerSecond, 2.85) {
		t.Errorf("persisted rate = %v, want 2.85", p.Calibration.FlowRateMlPerSecond)
	}
	if !almostEqual(p.Calibration.Confidence, 0.95) {
		t.Errorf("confidence = %v, want 0.95", p.Calibration.Confidence)
	}
	if p.Calibration.FeedbackAdjustments != 1 {
		t.Errorf("adjustment count = %d, want 1", p.Calibration.FeedbackAdjustments)
	}
	if p.Calibration.LastFeedbackAdjustment == nil {
		t.Error("last adjustment timestamp not set")
	}
	if got := p.Calibration.History[0].Method; got != entities.MethodFeedbackTooLittle {
		t.Errorf("history method = %s", got)
	}
}

func TestAdjustTooMuchRaisesRate(t *testing.T) {
	a, _ := newTestAdjuster(calibratedPump("p1", 3.0, 1.0))

	rate, ok := a.AdjustFromFeedback("p1", messages.FeedbackTooMuch, 0)
	if !ok {
		t.Fatal("adjustment rejected")
	}
	if !almostEqual(rate, 3.15) {
		t.Errorf("rate = %v, want 3.15", rate)
	}
}

func TestAdjustJustRightIsIdempotent(t *testing.T) {
	a, st := newTestAdjuster(calibratedPump("p1", 3.0, 0.9))

	rate, ok := a.AdjustFromFeedback("p1", messages.FeedbackJustRight, 0)
	if !ok || !almostEqual(rate, 3.0) {
		t.Fatalf("AdjustFromFeedback = (%v,%v), want (3.0,true)", rate, ok)
	}

	p, _ := st.GetPump("p1")
	if !almostEqual(p.Calibration.Confidence, 0.9) {
		t.Errorf("confidence changed on just_right: %v", p.Calibration.Confidence)
	}
	if p.Calibration.FeedbackAdjustments != 0 {
		t.Errorf("just_right must not count as an adjustment, got %d", p.Calibration.FeedbackAdjustments)
	}
	if len(p.Calibration.History) != 0 {
		t.Errorf("just_right must not grow history, got %d entries", len(p.Calibration.History))
	}
}

func TestAdjustCustomFactor(t *testing.T) {
	a, _ := newTestAdjuster(calibratedPump("p1", 2.0, 1.0))

	rate, ok := a.AdjustFromFeedback("p1", messages.FeedbackTooMuch, 0.10)
	if !ok || !almostEqual(rate, 2.2) {
		t.Fatalf("rate = (%v,%v), want (2.2,true)", rate, ok)
	}
}

func TestAdjustConfidenceFloor(t *testing.T) {
	a, st := newTestAdjuster(calibratedPump("p1", 3.0, 1.0))

	for i := 0; i < 15; i++ {
		if _, ok := a.AdjustFromFeedback("p1", messages.FeedbackTooLittle, 0); !ok {
			t.Fatalf("adjustment %d rejected", i)
		}
	}

	p, _ := st.GetPump("p1")
	if p.Calibration.Confidence < 0.5-1e-9 {
		t.Errorf("confidence = %v, fell below the 0.5 floor", p.Calibration.Confidence)
	}
	if !almostEqual(p.Calibration.Confidence, 0.5) {
		t.Errorf("confidence = %v, want pinned at 0.5 after 15 adjustments", p.Calibration.Confidence)
	}
	if p.Calibration.FeedbackAdjustments != 15 {
		t.Errorf("adjustment count = %d, want 15", p.Calibration.FeedbackAdjustments)
	}

	want := 3.0 * math.Pow(0.95, 15)
	if !almostEqual(p.Calibration.FlowRateMlPerSecond, want) {
		t.Errorf("rate = %v, want %v after compounding", p.Calibration.FlowRateMlPerSecond, want)
	}
}

func TestAdjustHistoryBounded(t *testing.T) {
	a, st := newTestAdjuster(calibratedPump("p1", 3.0, 1.0))

	for i := 0; i < entities.MaxCalibrationHistory+5; i++ {
		a.AdjustFromFeedback("p1", messages.FeedbackTooMuch, 0.01)
	}

	p, _ := st.GetPump("p1")
	if got := len(p.Calibration.History); got != entities.MaxCalibrationHistory {
		t.Fatalf("history len = %d, want %d", got, entities.MaxCalibrationHistory)
	}
	// Newest entry carries the latest rate.
	if !almostEqual(p.Calibration.History[0].FlowRateMlPerSecond, p.Calibration.FlowRateMlPerSecond) {
		t.Errorf("history[0] = %v, want current rate %v",
			p.Calibration.History[0].FlowRateMlPerSecond, p.Calibration.FlowRateMlPerSecond)
	}
}

func TestAdjustUncalibratedPump(t *testing.T) {
	a, _ := newTestAdjuster(pump("p1"))

	if rate, ok := a.AdjustFromFeedback("p1", messages.FeedbackTooLittle, 0); ok || rate != 0 {
		t.Errorf("AdjustFromFeedback = (%v,%v), want (0,false) without calibration", rate, ok)
	}
	if _, ok := a.AdjustFromFeedback("ghost", messages.FeedbackTooLittle, 0); ok {
		t.Error("unknown pump must be rejected")
	}
}

func TestAdjustUnknownFeedback(t *testing.T) {
	a, st := newTestAdjuster(calibratedPump("p1", 3.0, 1.0))

	if rate, ok := a.AdjustFromFeedback("p1", "soggy", 0); ok || rate != 0 {
		t.Errorf("AdjustFromFeedback = (%v,%v), want (0,false) on unknown feedback", rate, ok)
	}
	p, _ := st.GetPump("p1")
	if !almostEqual(p.Calibration.FlowRateMlPerSecond, 3.0) {
		t.Errorf("rate changed on unknown feedback: %v", p.Calibration.FlowRateMlPerSecond)
	}
}
