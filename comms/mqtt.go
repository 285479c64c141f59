package comms

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/CodedInternet/rcdrive/onboard"
)

const (
	MQTT_CONNECT_TIMEOUT = 5 * time.Second
	MQTT_RETRY_INTERVAL  = 5 * time.Second
)

// MQTTBridge carries the same frames as the websocket hub over a broker:
// commands arrive on <topic>/command and telemetry leaves on
// <topic>/telemetry.
type MQTTBridge struct {
	client mqtt.Client
	topic  string
	inbox  chan<- onboard.Event
	logger *log.Logger
}

// NewMQTTOptions retries the broker forever. onConnect runs after every
// successful connect, including automatic reconnects.
func NewMQTTOptions(broker, clientID string, onConnect mqtt.OnConnectHandler, logger *log.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(MQTT_RETRY_INTERVAL)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Println("Connected to MQTT broker", broker)
		if onConnect != nil {
			onConnect(client)
		}
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Printf("Connection lost: %v\n", err)
	}
	return opts
}

func NewMQTTBridge(client mqtt.Client, topic string, inbox chan<- onboard.Event, logger *log.Logger) *MQTTBridge {
	return &MQTTBridge{
		client: client,
		topic:  topic,
		inbox:  inbox,
		logger: logger,
	}
}

// DialMQTTBridge builds a paho client for broker whose connect handler
// restores the command subscription.
func DialMQTTBridge(broker, clientID, topic string, inbox chan<- onboard.Event, logger *log.Logger) *MQTTBridge {
	b := NewMQTTBridge(nil, topic, inbox, logger)
	b.client = mqtt.NewClient(NewMQTTOptions(broker, clientID, b.OnConnect, logger))
	return b
}

func (b *MQTTBridge) CommandTopic() string {
	return b.topic + "/command"
}

func (b *MQTTBridge) TelemetryTopic() string {
	return b.topic + "/telemetry"
}

// Start connects to the broker. An unreachable broker is not an error, the
// client keeps retrying and OnConnect subscribes once it gets through.
func (b *MQTTBridge) Start() error {
	token := b.client.Connect()
	if !token.WaitTimeout(MQTT_CONNECT_TIMEOUT) {
		b.logger.Println("MQTT broker not reachable yet, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "unable to connect to MQTT broker")
	}
	return nil
}

// OnConnect subscribes to the command topic. Sessions are clean, so this
// has to run on every connect.
func (b *MQTTBridge) OnConnect(client mqtt.Client) {
	token := client.Subscribe(b.CommandTopic(), 0, b.onMessage)
	if token.WaitTimeout(MQTT_CONNECT_TIMEOUT) && token.Error() != nil {
		b.logger.Println(errors.Wrapf(token.Error(), "unable to subscribe to %s", b.CommandTopic()))
		return
	}
	b.logger.Printf("Subscribed to topic: %s\n", b.CommandTopic())
}

func (b *MQTTBridge) Stop() {
	b.client.Disconnect(250)
}

// Broadcast publishes payload at QoS 0 without waiting. Frames are
// dropped while the broker is unreachable.
func (b *MQTTBridge) Broadcast(payload string) {
	if !b.client.IsConnectionOpen() {
		return
	}
	b.client.Publish(b.TelemetryTopic(), 0, false, payload)
}

func (b *MQTTBridge) onMessage(client mqtt.Client, msg mqtt.Message) {
	b.inbox <- onboard.Event{
		Kind:    onboard.EventMessage,
		Client:  fmt.Sprintf("mqtt:%d", msg.MessageID()),
		Payload: msg.Payload(),
	}
}
