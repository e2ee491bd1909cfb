// Package publisher turns raw poll data into signal updates: it decodes
// table data, detects changes against the cached values, and pushes the
// changes to the realtime channel.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/atomic"
	"k8s.io/klog/v2"

	"epibridge/pkg/runtime"
)

const mqttTimeout = 1 * time.Second

// Realtime pushes detected changes to subscribers. The change detector
// treats publish failures as non-fatal; the cache is already updated.
type Realtime interface {
	Publish(update *runtime.SignalUpdate)
}

// MQTTPublisher is the production realtime channel. One topic per signal
// under a fixed prefix, QoS zero, no retained messages.
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix *atomic.String
}

var _ Realtime = (*MQTTPublisher)(nil)

func NewMQTTPublisher(broker, clientID, topicPrefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		klog.V(1).InfoS("MQTT connection lost", "err", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		klog.V(2).InfoS("Connected to MQTT broker", "broker", broker)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %v", broker, token.Error())
	}
	return &MQTTPublisher{client: client, topicPrefix: atomic.NewString(topicPrefix)}, nil
}

// SetTopicPrefix reroutes future publishes, used when the settings change.
func (p *MQTTPublisher) SetTopicPrefix(prefix string) {
	p.topicPrefix.Store(prefix)
}

func (p *MQTTPublisher) Publish(update *runtime.SignalUpdate) {
	topic := fmt.Sprintf("%s/%s", p.topicPrefix.Load(), update.SignalName)
	marshal, _ := json.Marshal(update)
	token := p.client.Publish(topic, 0, false, marshal)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic, "value", update.Value)
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", token.Error())
	}
}

func (p *MQTTPublisher) Shutdown(ctx context.Context) error {
	p.client.Disconnect(2000)
	return nil
}
