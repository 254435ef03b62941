package mqttbus

import (
	"context"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Handler processes one received message.
type Handler func(topic string, message mqtt.Message) error

// IConsumer is the consuming side of the bus as the services see it.
type IConsumer interface {
	Consume(ctx context.Context)
	SetHandler(h Handler)
}

// qosFor picks the subscribe QoS by topic family. Feedback and calibration
// events must survive broker restarts, so they ride at QoS 1.
func qosFor(topic string) byte {
	t := strings.TrimSpace(topic)
	if strings.HasPrefix(t, "event/irrigationFeedback") ||
		strings.HasPrefix(t, "event/calibration") ||
		strings.HasPrefix(t, "cmd/pump") {
		return 1
	}
	return 0
}

// Consumer subscribes to one or more topic filters on a shared client and
// dispatches messages to a single handler.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	handler Handler
}

func NewConsumer(client mqtt.Client, topics []string, handler Handler) *Consumer {
	return &Consumer{client: client, topics: topics, handler: handler}
}

func (c *Consumer) SetHandler(h Handler) { c.handler = h }

// Consume subscribes to all topics and blocks until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context) {
	for _, topic := range c.topics {
		topic := topic
		token := c.client.Subscribe(topic, qosFor(topic), func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				logrus.Warnf("no handler set for topic %s", topic)
				return
			}
			if err := c.handler(msg.Topic(), msg); err != nil {
				logrus.Warnf("error handling message on %s: %v", msg.Topic(), err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			logrus.Errorf("subscribe error on %s: %v", topic, token.Error())
		} else {
			logrus.Infof("subscribed to %s", topic)
		}
	}

	<-ctx.Done()

	for _, topic := range c.topics {
		c.client.Unsubscribe(topic)
	}
}
