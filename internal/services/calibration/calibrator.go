// Package calibration implements the pump flow-rate calibration engine: the
// supervised timed-run session lifecycle, the persisted calibration record
// with its bounded history, and feedback-driven rate adjustments.
package calibration

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/internal/store"
	"github.com/plantio/autowater/pkg/mqttbus"
)

// DefaultCalibrationDurationSeconds is the timed-run length used when the
// caller does not request one.
const DefaultCalibrationDurationSeconds = 30

// StartResult is returned by StartCalibration once the pump is running.
type StartResult struct {
	SessionID       string                 `json:"session_id"`
	PumpID          string                 `json:"pump_id"`
	UnitID          int                    `json:"unit_id,omitempty"`
	DurationSeconds int                    `json:"duration_seconds"`
	Status          entities.SessionStatus `json:"status"`
	Instructions    string                 `json:"instructions"`
}

// Calibrator runs the calibration state machine. All session operations are
// serialized by a single lock; calibrations are human-paced, so contention
// is not a concern, correctness of check-then-act is.
type Calibrator struct {
	mu       sync.Mutex
	driver   PumpDriver
	store    store.PumpStore
	sessions *SessionTable

	events         mqttbus.IPublisher // optional, best-effort
	eventTopicTmpl string

	defaultDuration int
	now             func() time.Time
}

func NewCalibrator(driver PumpDriver, st store.PumpStore, sessions *SessionTable) *Calibrator {
	return &Calibrator{
		driver:          driver,
		store:           st,
		sessions:        sessions,
		eventTopicTmpl:  "event/calibration/{unit}/{pump}",
		defaultDuration: DefaultCalibrationDurationSeconds,
		now:             time.Now,
	}
}

// SetEventPublisher enables best-effort calibration event publishing.
func (c *Calibrator) SetEventPublisher(p mqttbus.IPublisher, topicTmpl string) {
	c.events = p
	if topicTmpl != "" {
		c.eventTopicTmpl = topicTmpl
	}
}

// IsPump reports whether the actuator type tag is the canonical pump tag.
func (c *Calibrator) IsPump(actuatorType string) bool {
	return entities.IsPump(actuatorType)
}

// StartCalibration activates the pump for a fixed duration and opens a
// session awaiting the human-measured volume. durationSeconds of 0 selects
// the default; negative values are rejected. The engine does not clamp the
// duration, callers validate bounds.
func (c *Calibrator) StartCalibration(pumpID string, durationSeconds int) (StartResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if durationSeconds < 0 {
		return StartResult{}, ErrInvalidDuration
	}
	if durationSeconds == 0 {
		durationSeconds = c.defaultDuration
	}

	if existing, ok := c.sessions.Get(pumpID); ok {
		return StartResult{}, &InProgressError{PumpID: existing.PumpID, Status: existing.Status}
	}

	pump, ok := c.store.GetPump(pumpID)
	if !ok {
		return StartResult{}, ErrPumpNotFound
	}
	if !entities.IsPump(pump.ActuatorType) {
		return StartResult{}, ErrNotAPump
	}

	sess := &entities.CalibrationSession{
		ID:              uuid.New().String(),
		PumpID:          pumpID,
		UnitID:          pump.UnitID,
		StartTime:       c.now().UTC(),
		DurationSeconds: durationSeconds,
		Status:          entities.SessionRunning,
	}

	if !c.driver.Activate(pumpID, durationSeconds) {
		// No session is created, so the caller may retry immediately.
		return StartResult{}, ErrActivationFailed
	}

	// The pump is running for its fixed duration; from here the physical run
	// is fire-and-forget and the engine only waits for the measurement.
	sess.Status = entities.SessionAwaitingMeasurement
	c.sessions.Put(sess)

	logrus.Infof("calibration: started session %s for pump %s (%ds)", sess.ID, pumpID, durationSeconds)

	return StartResult{
		SessionID:       sess.ID,
		PumpID:          pumpID,
		UnitID:          pump.UnitID,
		DurationSeconds: durationSeconds,
		Status:          sess.Status,
		Instructions:    "collect the dispensed water, measure its volume in mL, then complete the calibration with the measured value",
	}, nil
}

// CompleteCalibration turns the measured volume into a flow rate, persists
// the merged calibration record, and frees the pump for new runs.
func (c *Calibrator) CompleteCalibration(pumpID string, measuredML float64) (entities.CalibrationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions.Get(pumpID)
	if !ok {
		return entities.CalibrationResult{}, ErrNoActiveSession
	}
	if measuredML <= 0 {
		return entities.CalibrationResult{}, ErrInvalidMeasurement
	}

	flowRate := 0.0
	if sess.DurationSeconds > 0 {
		flowRate = measuredML / float64(sess.DurationSeconds)
	}

	now := c.now().UTC()
	data := &entities.PumpCalibrationData{
		FlowRateMlPerSecond:     flowRate,
		CalibrationVolumeML:     measuredML,
		CalibrationDurationSecs: sess.DurationSeconds,
		CalibratedAt:            now,
		Confidence:              1.0, // a supervised timed run is maximally trusted
	}

	// Carry over the existing history so drift stays visible across
	// recalibrations.
	if prev, ok := c.store.GetPump(pumpID); ok && prev.Calibration != nil {
		data.History = append([]entities.CalibrationHistoryEntry(nil), prev.Calibration.History...)
	}
	data.PushHistory(entities.CalibrationHistoryEntry{
		FlowRateMlPerSecond: flowRate,
		MeasuredVolumeML:    measuredML,
		DurationSeconds:     sess.DurationSeconds,
		CalibratedAt:        now,
		Confidence:          1.0,
		Method:              entities.MethodManual,
	})

	if !c.store.SaveCalibration(pumpID, data) {
		return entities.CalibrationResult{}, ErrPersistFailed
	}

	c.sessions.Delete(pumpID)

	logrus.Infof("calibration: pump %s completed, flow=%.3f mL/s from %.1f mL over %ds",
		pumpID, flowRate, measuredML, sess.DurationSeconds)

	c.publishEvent(pumpID, sess.UnitID, messages.CalibrationEvent{
		PumpID:              pumpID,
		UnitID:              sess.UnitID,
		Method:              entities.MethodManual,
		FlowRateMlPerSecond: flowRate,
		MeasuredVolumeML:    measuredML,
		DurationSeconds:     sess.DurationSeconds,
		Confidence:          1.0,
		Timestamp:           now,
	})

	return entities.CalibrationResult{
		PumpID:              pumpID,
		FlowRateMlPerSecond: flowRate,
		MeasuredVolumeML:    measuredML,
		DurationSeconds:     sess.DurationSeconds,
		CalibratedAt:        now,
		Confidence:          1.0,
	}, nil
}

// CancelCalibration stops the pump (best-effort) and discards the session.
func (c *Calibrator) CancelCalibration(pumpID string) (*entities.CalibrationSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions.Delete(pumpID)
	if !ok {
		return nil, ErrNoActiveSession
	}
	if !c.driver.Deactivate(pumpID) {
		logrus.Warnf("calibration: deactivate of pump %s not confirmed on cancel", pumpID)
	}
	sess.Status = entities.SessionCancelled
	logrus.Infof("calibration: cancelled session %s for pump %s", sess.ID, pumpID)
	return sess, nil
}

// GetSession returns the active session for the pump, if any.
func (c *Calibrator) GetSession(pumpID string) (*entities.CalibrationSession, bool) {
	return c.sessions.Get(pumpID)
}

// GetFlowRate returns the calibrated flow rate. The second result is false
// when the pump was never calibrated; absence is the signal, not zero.
func (c *Calibrator) GetFlowRate(pumpID string) (float64, bool) {
	pump, ok := c.store.GetPump(pumpID)
	if !ok || pump.Calibration == nil {
		return 0, false
	}
	return pump.Calibration.FlowRateMlPerSecond, true
}

// GetCalibrationData returns the persisted calibration record, if any.
func (c *Calibrator) GetCalibrationData(pumpID string) (*entities.PumpCalibrationData, bool) {
	pump, ok := c.store.GetPump(pumpID)
	if !ok || pump.Calibration == nil {
		return nil, false
	}
	return pump.Calibration, true
}

// GetFlowRateTrend analyzes the retained history window. Returns nil when
// fewer than two entries exist.
func (c *Calibrator) GetFlowRateTrend(pumpID string) *entities.TrendAnalysis {
	data, ok := c.GetCalibrationData(pumpID)
	if !ok {
		return nil
	}
	return entities.AnalyzeTrend(data.History)
}

func (c *Calibrator) publishEvent(pumpID string, unitID int, evt messages.CalibrationEvent) {
	if c.events == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err != nil {
		logrus.Errorf("calibration: marshal event for %s: %v", pumpID, err)
		return
	}
	topic := formatTopic(c.eventTopicTmpl, unitID, pumpID)
	if err := c.events.PublishQos(topic, 1, false, string(b)); err != nil {
		logrus.Warnf("calibration: publish event for %s: %v", pumpID, err)
	}
}
