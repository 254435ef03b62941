package calibration

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/internal/store"
	"github.com/plantio/autowater/pkg/mqttbus"
)

const (
	// DefaultAdjustmentFactor is the relative nudge applied per feedback
	// report when the caller does not supply one.
	DefaultAdjustmentFactor = 0.05

	// confidence decays per adjustment but never below the floor: repeated
	// feedback grows uncertainty without ever reading as "uncalibrated".
	confidenceDecay = 0.05
	confidenceFloor = 0.5
)

// FeedbackAdjuster nudges a stored flow rate toward the truth from
// qualitative post-irrigation outcomes, without a new physical timed run.
type FeedbackAdjuster struct {
	store store.PumpStore

	events         mqttbus.IPublisher
	eventTopicTmpl string

	now func() time.Time
}

func NewFeedbackAdjuster(st store.PumpStore) *FeedbackAdjuster {
	return &FeedbackAdjuster{
		store:          st,
		eventTopicTmpl: "event/calibration/{unit}/{pump}",
		now:            time.Now,
	}
}

// SetEventPublisher enables best-effort calibration event publishing.
func (a *FeedbackAdjuster) SetEventPublisher(p mqttbus.IPublisher, topicTmpl string) {
	a.events = p
	if topicTmpl != "" {
		a.eventTopicTmpl = topicTmpl
	}
}

// AdjustFromFeedback applies one qualitative outcome to the stored flow
// rate and returns the new rate. The second result is false when the pump
// has no calibration data or the feedback value is unknown; that is a
// warning condition for the caller, not an error.
//
// "too_little" delivered means the true flow rate is lower than stored, so
// the rate moves down; "too_much" moves it up. factor of 0 selects the
// default; the engine does not bounds-check it, callers keep it in (0,1).
func (a *FeedbackAdjuster) AdjustFromFeedback(pumpID, feedback string, factor float64) (float64, bool) {
	pump, ok := a.store.GetPump(pumpID)
	if !ok || pump.Calibration == nil {
		logrus.Warnf("feedback: pump %s has no calibration data, ignoring %q", pumpID, feedback)
		return 0, false
	}
	if factor == 0 {
		factor = DefaultAdjustmentFactor
	}

	data := pump.Calibration
	current := data.FlowRateMlPerSecond

	var (
		newRate float64
		method  entities.CalibrationMethod
	)
	switch feedback {
	case messages.FeedbackJustRight:
		return current, true
	case messages.FeedbackTooLittle:
		newRate = current * (1 - factor)
		method = entities.MethodFeedbackTooLittle
	case messages.FeedbackTooMuch:
		newRate = current * (1 + factor)
		method = entities.MethodFeedbackTooMuch
	default:
		logrus.Warnf("feedback: unknown feedback %q for pump %s", feedback, pumpID)
		return 0, false
	}

	now := a.now().UTC()
	newConfidence := math.Max(confidenceFloor, data.Confidence-confidenceDecay)

	data.FlowRateMlPerSecond = newRate
	data.Confidence = newConfidence
	data.LastFeedbackAdjustment = &now
	data.FeedbackAdjustments++
	data.PushHistory(entities.CalibrationHistoryEntry{
		FlowRateMlPerSecond: newRate,
		DurationSeconds:     data.CalibrationDurationSecs,
		CalibratedAt:        now,
		Confidence:          newConfidence,
		Method:              method,
	})

	if !a.store.SaveCalibration(pumpID, data) {
		logrus.Errorf("feedback: persist adjustment for pump %s failed", pumpID)
		return 0, false
	}

	logrus.Infof("feedback: pump %s rate %.3f -> %.3f (%s, factor %.2f, confidence %.2f)",
		pumpID, current, newRate, feedback, factor, newConfidence)

	a.publishEvent(pumpID, pump.UnitID, messages.CalibrationEvent{
		PumpID:              pumpID,
		UnitID:              pump.UnitID,
		Method:              method,
		FlowRateMlPerSecond: newRate,
		Confidence:          newConfidence,
		Timestamp:           now,
	})

	return newRate, true
}

func (a *FeedbackAdjuster) publishEvent(pumpID string, unitID int, evt messages.CalibrationEvent) {
	if a.events == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err != nil {
		logrus.Errorf("feedback: marshal event for %s: %v", pumpID, err)
		return
	}
	topic := formatTopic(a.eventTopicTmpl, unitID, pumpID)
	if err := a.events.PublishQos(topic, 1, false, string(b)); err != nil {
		logrus.Warnf("feedback: publish event for %s: %v", pumpID, err)
	}
}
