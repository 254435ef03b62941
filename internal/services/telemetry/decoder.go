package telemetry

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	msg "github.com/plantio/autowater/internal/model/messages"
)

// CommonEvent is the normalized form every bus event is reduced to before
// it becomes an Influx point.
type CommonEvent struct {
	EventType     string // calibration.updated | irrigation.decision | irrigation.feedback
	SourceService string // calibration-service | dosing-service | ...
	PumpID        string
	PlantID       string
	UnitID        int
	Severity      string // info|warning|error
	Fields        map[string]interface{}
	Timestamp     time.Time
}

// IngestSnapshot is a point-in-time view of what the handler has processed,
// served by the health surface alongside the prometheus counters.
type IngestSnapshot struct {
	ByType    map[string]uint64 `json:"by_type"`
	Dropped   uint64            `json:"dropped"`
	LastEvent time.Time         `json:"last_event,omitempty"`
}

// MQTTHandler turns bus messages into CommonEvents and hands them to sink.
type MQTTHandler struct {
	sink func(CommonEvent)

	mu        sync.Mutex
	byType    map[string]uint64
	dropped   uint64
	lastEvent time.Time
}

func NewMQTTHandler(sink func(CommonEvent)) *MQTTHandler {
	return &MQTTHandler{sink: sink, byType: make(map[string]uint64)}
}

// Ingest returns a copy of the handler's ingest counters.
func (h *MQTTHandler) Ingest() IngestSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	byType := make(map[string]uint64, len(h.byType))
	for k, v := range h.byType {
		byType[k] = v
	}
	return IngestSnapshot{ByType: byType, Dropped: h.dropped, LastEvent: h.lastEvent}
}

func (h *MQTTHandler) markIngested(eventType string) {
	h.mu.Lock()
	h.byType[eventType]++
	h.lastEvent = time.Now()
	h.mu.Unlock()
}

func (h *MQTTHandler) markDropped() {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
}

func (h *MQTTHandler) Handle(_ string, m mqtt.Message) error {
	topic := m.Topic()
	payload := m.Payload()

	var (
		evt CommonEvent
		err error
	)
	switch {
	case strings.HasPrefix(topic, "event/calibration/"):
		evt, err = decodeCalibration(payload)
	case strings.HasPrefix(topic, "event/irrigationDecision/"):
		evt, err = decodeDecision(payload)
	case strings.HasPrefix(topic, "event/irrigationFeedback/"):
		evt, err = decodeFeedback(payload)
	default:
		eventsDropped.WithLabelValues("unknown_topic").Inc()
		h.markDropped()
		return nil
	}
	if err != nil {
		eventsDropped.WithLabelValues("bad_payload").Inc()
		h.markDropped()
		return err
	}
	eventsIngested.WithLabelValues(evt.EventType).Inc()
	h.markIngested(evt.EventType)
	if h.sink != nil {
		h.sink(evt)
	}
	return nil
}

func decodeCalibration(payload []byte) (CommonEvent, error) {
	var e msg.CalibrationEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return CommonEvent{}, err
	}
	if e.PumpID == "" {
		return CommonEvent{}, errors.New("calibration event: missing pump id")
	}
	sev := "info"
	if e.Confidence < 0.6 {
		sev = "warning"
	}
	return CommonEvent{
		EventType:     "calibration.updated",
		SourceService: "calibration-service",
		PumpID:        e.PumpID,
		UnitID:        e.UnitID,
		Severity:      sev,
		Fields: map[string]interface{}{
			"method":           string(e.Method),
			"flow_rate_ml_s":   e.FlowRateMlPerSecond,
			"measured_ml":      e.MeasuredVolumeML,
			"duration_seconds": e.DurationSeconds,
			"confidence":       e.Confidence,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func decodeDecision(payload []byte) (CommonEvent, error) {
	var e msg.IrrigationDecisionEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return CommonEvent{}, err
	}
	if e.PlantID == "" {
		return CommonEvent{}, errors.New("decision event: missing plant id")
	}
	return CommonEvent{
		EventType:     "irrigation.decision",
		SourceService: "dosing-service",
		PumpID:        e.PumpID,
		PlantID:       e.PlantID,
		UnitID:        e.UnitID,
		Severity:      "info",
		Fields: map[string]interface{}{
			"water_volume_ml":  e.WaterVolumeML,
			"duration_seconds": e.DurationSeconds,
			"flow_rate_ml_s":   e.FlowRateMlPerSecond,
			"confidence":       e.Confidence,
			"ml_adjusted":      e.MLAdjusted,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func decodeFeedback(payload []byte) (CommonEvent, error) {
	var e msg.IrrigationFeedbackEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return CommonEvent{}, err
	}
	if e.PumpID == "" && e.PlantID == "" {
		return CommonEvent{}, errors.New("feedback event: missing pump and plant id")
	}
	sev := "info"
	if e.Feedback != msg.FeedbackJustRight {
		sev = "warning"
	}
	return CommonEvent{
		EventType:     "irrigation.feedback",
		SourceService: "calibration-service",
		PumpID:        e.PumpID,
		PlantID:       e.PlantID,
		UnitID:        e.UnitID,
		Severity:      sev,
		Fields: map[string]interface{}{
			"feedback":     e.Feedback,
			"delivered_ml": e.DeliveredML,
		},
		Timestamp: e.Timestamp,
	}, nil
}
