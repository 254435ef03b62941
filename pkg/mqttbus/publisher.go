package mqttbus

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher is the publishing side of the bus as the services see it.
type IPublisher interface {
	Publish(topic string, payload string) error
	PublishQos(topic string, qos byte, retained bool, payload string) error
	Close()
}

// Publisher publishes messages on a shared MQTT client.
type Publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends payload at QoS 0.
func (p *Publisher) Publish(topic string, payload string) error {
	return p.PublishQos(topic, 0, false, payload)
}

// PublishQos sends payload at the given QoS and waits for the token.
func (p *Publisher) PublishQos(topic string, qos byte, retained bool, payload string) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
