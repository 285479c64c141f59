package comms

import (
	"errors"
	"io/ioutil"
	"log"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CodedInternet/rcdrive/onboard"
)

type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

type published struct {
	topic   string
	payload interface{}
}

// fakeMQTTClient behaves like paho with a clean session: subscriptions
// need an open connection and are forgotten when it drops.
type fakeMQTTClient struct {
	mqtt.Client

	connectErr  error
	unreachable bool
	onConnect   mqtt.OnConnectHandler
	open        bool
	subscribed  map[string]mqtt.MessageHandler
	published   []published
}

func newFakeMQTTClient() *fakeMQTTClient {
	return &fakeMQTTClient{subscribed: map[string]mqtt.MessageHandler{}}
}

func (c *fakeMQTTClient) Connect() mqtt.Token {
	if c.unreachable {
		return &fakeToken{pending: true}
	}
	c.connected()
	return &fakeToken{err: c.connectErr}
}

func (c *fakeMQTTClient) connected() {
	if c.connectErr != nil {
		return
	}
	c.open = true
	if c.onConnect != nil {
		c.onConnect(c)
	}
}

func (c *fakeMQTTClient) lost() {
	c.open = false
	c.subscribed = map[string]mqtt.MessageHandler{}
}

func (c *fakeMQTTClient) IsConnectionOpen() bool {
	return c.open
}

func (c *fakeMQTTClient) Disconnect(quiesce uint) {
	c.lost()
}

func (c *fakeMQTTClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	if !c.open {
		return &fakeToken{err: errors.New("not currently connected and ResumeSubs not set")}
	}
	c.subscribed[topic] = callback
	return &fakeToken{}
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.published = append(c.published, published{topic, payload})
	return &fakeToken{}
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) MessageID() uint16 { return 7 }

func TestMQTTBridge(t *testing.T) {
	Convey("given a bridge on a fake broker", t, func() {
		discard := log.New(ioutil.Discard, "", 0)
		client := newFakeMQTTClient()
		inbox := make(chan onboard.Event, 4)
		bridge := NewMQTTBridge(client, "rccar", inbox, discard)
		client.onConnect = NewMQTTOptions("tcp://broker:1883", "rccar-1", bridge.OnConnect, discard).OnConnect

		Convey("telemetry is dropped while disconnected", func() {
			bridge.Broadcast("Heartbeat")
			So(client.published, ShouldBeEmpty)
		})

		Convey("once started", func() {
			So(bridge.Start(), ShouldBeNil)
			So(client.subscribed, ShouldContainKey, "rccar/command")

			Convey("commands are queued for the control loop", func() {
				client.subscribed["rccar/command"](client, &fakeMessage{payload: []byte("S")})

				ev := <-inbox
				So(ev.Kind, ShouldEqual, onboard.EventMessage)
				So(string(ev.Payload), ShouldEqual, "S")
				So(ev.Client, ShouldEqual, "mqtt:7")
			})

			Convey("telemetry is published", func() {
				bridge.Broadcast(`{"motorA":1,"motorB":2,"debug":"JSTK:1/2"}`)
				So(client.published, ShouldResemble, []published{
					{"rccar/telemetry", `{"motorA":1,"motorB":2,"debug":"JSTK:1/2"}`},
				})
			})

			Convey("a reconnect restores the subscription", func() {
				client.lost()
				So(client.subscribed, ShouldBeEmpty)

				client.connected()
				So(client.subscribed, ShouldContainKey, "rccar/command")
			})

			Convey("stopping disconnects", func() {
				bridge.Stop()
				So(client.open, ShouldBeFalse)
			})
		})

		Convey("an unreachable broker does not stop the bridge", func() {
			client.unreachable = true
			So(bridge.Start(), ShouldBeNil)
			So(client.subscribed, ShouldBeEmpty)

			bridge.Broadcast("Heartbeat")
			So(client.published, ShouldBeEmpty)

			Convey("and it subscribes once the broker is up", func() {
				client.connected()
				So(client.subscribed, ShouldContainKey, "rccar/command")

				bridge.Broadcast("Heartbeat")
				So(len(client.published), ShouldEqual, 1)
			})
		})

		Convey("subscribing without a connection is logged, not fatal", func() {
			bridge.OnConnect(client)
			So(client.subscribed, ShouldBeEmpty)
		})
	})

	Convey("connection errors are returned", t, func() {
		client := newFakeMQTTClient()
		client.connectErr = errors.New("refused")
		bridge := NewMQTTBridge(client, "rccar", nil, log.New(ioutil.Discard, "", 0))

		err := bridge.Start()
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "refused")
	})

	Convey("options carry the broker", t, func() {
		opts := NewMQTTOptions("tcp://broker:1883", "rccar-1", nil, log.New(ioutil.Discard, "", 0))
		So(len(opts.Servers), ShouldEqual, 1)
		So(opts.Servers[0].Host, ShouldEqual, "broker:1883")
		So(opts.ClientID, ShouldEqual, "rccar-1")
		So(opts.ConnectRetry, ShouldBeTrue)
		So(opts.AutoReconnect, ShouldBeTrue)
	})

	Convey("a dialled bridge retries its broker", t, func() {
		bridge := DialMQTTBridge("tcp://broker:1883", "rccar-1", "rccar", nil, log.New(ioutil.Discard, "", 0))
		So(bridge.client, ShouldNotBeNil)

		reader := bridge.client.OptionsReader()
		So(reader.Servers()[0].Host, ShouldEqual, "broker:1883")
		So(reader.ConnectRetry(), ShouldBeTrue)
		So(reader.CleanSession(), ShouldBeTrue)
	})
}
