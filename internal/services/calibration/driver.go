package calibration

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/pkg/mqttbus"
)

// PumpDriver is the actuation boundary. Implementations issue timed
// activation commands to the physical pump; the engine only trusts the
// boolean result and never blocks for the run duration.
type PumpDriver interface {
	Activate(pumpID string, durationSeconds int) bool
	Deactivate(pumpID string) bool
}

// MQTTPumpDriver drives pumps through the device bridge by publishing timed
// commands to cmd/pump/{unit}/{pump} at QoS 1. The bridge side (GPIO,
// Zigbee) is outside this repository.
type MQTTPumpDriver struct {
	publisher mqttbus.IPublisher
	topicTmpl string // e.g. "cmd/pump/{unit}/{pump}"
	unitFor   func(pumpID string) int
}

func NewMQTTPumpDriver(publisher mqttbus.IPublisher, topicTmpl string, unitFor func(pumpID string) int) *MQTTPumpDriver {
	if strings.TrimSpace(topicTmpl) == "" {
		topicTmpl = "cmd/pump/{unit}/{pump}"
	}
	if unitFor == nil {
		unitFor = func(string) int { return 0 }
	}
	return &MQTTPumpDriver{publisher: publisher, topicTmpl: topicTmpl, unitFor: unitFor}
}

func (d *MQTTPumpDriver) Activate(pumpID string, durationSeconds int) bool {
	return d.publish(pumpID, messages.PumpCommandEvent{
		PumpID:          pumpID,
		UnitID:          d.unitFor(pumpID),
		Command:         messages.PumpCommandOn,
		DurationSeconds: durationSeconds,
		TicketID:        uuid.New().String(),
		Timestamp:       time.Now().UTC(),
	})
}

func (d *MQTTPumpDriver) Deactivate(pumpID string) bool {
	return d.publish(pumpID, messages.PumpCommandEvent{
		PumpID:    pumpID,
		UnitID:    d.unitFor(pumpID),
		Command:   messages.PumpCommandOff,
		TicketID:  uuid.New().String(),
		Timestamp: time.Now().UTC(),
	})
}

func (d *MQTTPumpDriver) publish(pumpID string, evt messages.PumpCommandEvent) bool {
	b, err := json.Marshal(evt)
	if err != nil {
		logrus.Errorf("pump driver: marshal command for %s: %v", pumpID, err)
		return false
	}
	topic := formatTopic(d.topicTmpl, evt.UnitID, pumpID)
	if err := d.publisher.PublishQos(topic, 1, false, string(b)); err != nil {
		logrus.Warnf("pump driver: publish %s command for %s: %v", evt.Command, pumpID, err)
		return false
	}
	logrus.Infof("pump driver: %s %s for %ds (ticket %s)", evt.Command, pumpID, evt.DurationSeconds, evt.TicketID)
	return true
}

// formatTopic expands "{unit}" and "{pump}" placeholders.
func formatTopic(tmpl string, unitID int, pumpID string) string {
	return strings.NewReplacer(
		"{unit}", strconv.Itoa(unitID),
		"{pump}", pumpID,
	).Replace(tmpl)
}
