package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mklimuk/spectral"
	"github.com/mklimuk/spectral/as7265x"
)

const (
	TelemetryTopic    = "v1/devices/me/telemetry"
	RPCRequestTopic   = "v1/devices/me/rpc/request/+"
	RPCResponsePrefix = "v1/devices/me/rpc/response/"

	StatusNetworkOn  = "MQTT ON "
	StatusNetworkOff = "MQTT OFF"
)

var (
	ErrNotConnected   = errors.New("telemetry: broker not connected")
	ErrPublishTimeout = errors.New("telemetry: publish timeout")
)

// publisher is the part of mqtt.Client the sink publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTOpts struct {
	Broker         string
	ClientID       string
	Token          string
	QoS            byte
	PublishTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

type MQTTOpt func(*MQTTOpts)

func WithClientID(id string) MQTTOpt {
	return func(o *MQTTOpts) { o.ClientID = id }
}

func WithAccessToken(token string) MQTTOpt {
	return func(o *MQTTOpts) { o.Token = token }
}

func WithQoS(qos byte) MQTTOpt {
	return func(o *MQTTOpts) { o.QoS = qos }
}

func WithPublishTimeout(d time.Duration) MQTTOpt {
	return func(o *MQTTOpts) { o.PublishTimeout = d }
}

func WithConnectTimeout(d time.Duration) MQTTOpt {
	return func(o *MQTTOpts) { o.ConnectTimeout = d }
}

func WithLogger(l *slog.Logger) MQTTOpt {
	return func(o *MQTTOpts) { o.Logger = l }
}

// MQTTSink publishes frames as ThingsBoard device telemetry and serves the
// LED RPC methods on the same connection.
type MQTTSink struct {
	client  mqtt.Client
	pub     publisher
	config  MQTTOpts
	display spectral.Display
	led     spectral.Indicator
	log     *slog.Logger
}

// NewMQTTSink prepares the broker client. display and led may be nil; without
// an indicator RPC requests are not subscribed to.
func NewMQTTSink(broker string, display spectral.Display, led spectral.Indicator, opts ...MQTTOpt) *MQTTSink {
	config := MQTTOpts{
		Broker:         broker,
		ClientID:       "spectral",
		QoS:            1,
		PublishTimeout: 5 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.QoS > 2 {
		config.QoS = 1
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &MQTTSink{
		config:  config,
		display: display,
		led:     led,
		log:     config.Logger.With("sink", "mqtt"),
	}
	o := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(config.ClientID).
		SetUsername(config.Token).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(config.ConnectTimeout).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)
	s.client = mqtt.NewClient(o)
	s.pub = s.client
	s.show(StatusNetworkOff)
	return s
}

// Connect starts the connection and waits until it is established or ctx is
// done. With connect retry enabled the client keeps trying in the background
// after Connect returns an error.
func (s *MQTTSink) Connect(ctx context.Context) error {
	tok := s.client.Connect()
	if err := wait(ctx, tok, s.config.ConnectTimeout); err != nil {
		return fmt.Errorf("telemetry: could not connect to %s: %w", s.config.Broker, err)
	}
	return nil
}

// Publish sends the frame telemetry with the configured QoS.
func (s *MQTTSink) Publish(ctx context.Context, frame as7265x.Frame) error {
	if s.client != nil && !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	data, err := Encode(frame)
	if err != nil {
		return err
	}
	tok := s.pub.Publish(TelemetryTopic, s.config.QoS, false, data)
	if err := wait(ctx, tok, s.config.PublishTimeout); err != nil {
		return fmt.Errorf("telemetry: could not publish frame: %w", err)
	}
	return nil
}

// Close disconnects, giving in-flight work a short grace period.
func (s *MQTTSink) Close() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.show(StatusNetworkOff)
}

func (s *MQTTSink) onConnect(c mqtt.Client) {
	s.log.Info("connected to broker", "broker", s.config.Broker)
	s.show(StatusNetworkOn)
	if s.led == nil {
		return
	}
	tok := c.Subscribe(RPCRequestTopic, s.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleRequest(msg.Topic(), msg.Payload())
	})
	go func() {
		if !tok.WaitTimeout(s.config.ConnectTimeout) {
			s.log.Warn("rpc subscription timed out", "topic", RPCRequestTopic)
			return
		}
		if err := tok.Error(); err != nil {
			s.log.Warn("could not subscribe to rpc requests", "error", err)
		}
	}()
}

func (s *MQTTSink) onConnectionLost(_ mqtt.Client, err error) {
	s.log.Warn("broker connection lost", "error", err)
	s.show(StatusNetworkOff)
}

func (s *MQTTSink) handleRequest(topic string, payload []byte) {
	s.log.Debug("rpc request", "topic", topic, "payload", string(payload))
	resp, err := HandleRPC(payload, s.led)
	if err != nil {
		s.log.Warn("rpc request failed", "topic", topic, "error", err)
		if resp == nil {
			return
		}
	}
	respTopic, ok := ResponseTopic(topic)
	if !ok {
		return
	}
	// paho runs message handlers on its router goroutine, so the token must
	// not be waited on here
	tok := s.pub.Publish(respTopic, s.config.QoS, false, resp)
	go func() {
		if err := wait(context.Background(), tok, s.config.PublishTimeout); err != nil {
			s.log.Warn("could not publish rpc response", "topic", respTopic, "error", err)
		}
	}()
}

func (s *MQTTSink) show(text string) {
	if s.display != nil {
		s.display.Show(text, spectral.SlotNetworkStatus)
	}
}

func wait(ctx context.Context, tok mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
