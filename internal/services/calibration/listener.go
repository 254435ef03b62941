package calibration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/pkg/dedup"
	"github.com/plantio/autowater/pkg/mqttbus"
)

// FeedbackListener consumes irrigation-outcome feedback off the bus and
// routes it to the adjuster. Feedback arrives at QoS 1, so identical
// redeliveries are dropped by payload hash.
type FeedbackListener struct {
	consumer mqttbus.IConsumer
	adjuster *FeedbackAdjuster
	deduper  *dedup.Deduper

	// onFeedback, when set, receives every accepted feedback entry for ML
	// training-data capture. Failures are logged, never raised.
	onFeedback func(evt messages.IrrigationFeedbackEvent) error
}

func NewFeedbackListener(consumer mqttbus.IConsumer, adjuster *FeedbackAdjuster) *FeedbackListener {
	l := &FeedbackListener{
		consumer: consumer,
		adjuster: adjuster,
		deduper:  dedup.New(10*time.Minute, 20000),
	}
	consumer.SetHandler(l.handle)
	return l
}

// SetFeedbackRecorder installs the best-effort training-data callback.
func (l *FeedbackListener) SetFeedbackRecorder(fn func(evt messages.IrrigationFeedbackEvent) error) {
	l.onFeedback = fn
}

// Start blocks consuming feedback until ctx is cancelled.
func (l *FeedbackListener) Start(ctx context.Context) {
	l.consumer.Consume(ctx)
}

func (l *FeedbackListener) handle(topic string, msg mqtt.Message) error {
	h := sha256.Sum256(msg.Payload())
	if !l.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
		return nil
	}

	var evt messages.IrrigationFeedbackEvent
	if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
		logrus.Warnf("feedback listener: bad payload on %s: %v", topic, err)
		return nil // do not block the stream on malformed input
	}
	if evt.PumpID == "" {
		logrus.Warnf("feedback listener: missing pump id on %s", topic)
		return nil
	}

	switch evt.Feedback {
	case messages.FeedbackTooLittle, messages.FeedbackTooMuch, messages.FeedbackJustRight:
	default:
		logrus.Warnf("feedback listener: unknown feedback %q for pump %s", evt.Feedback, evt.PumpID)
		return nil
	}

	l.adjuster.AdjustFromFeedback(evt.PumpID, evt.Feedback, evt.AdjustmentFactor)

	if l.onFeedback != nil {
		if err := l.onFeedback(evt); err != nil {
			logrus.Warnf("feedback listener: recorder error for plant %s: %v", evt.PlantID, err)
		}
	}
	return nil
}
