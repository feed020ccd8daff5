// Package mqtt implements the oneM2M MQTT binding: requests and
// responses carried as primitive-content JSON over a fixed topic
// contract, grounded on the teacher's transport package shape
// (internal/transport/http) and the original MQTTClient.py's topic
// layout and request/response envelope.
package mqtt

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/onem2m/acme-cse/internal/config"
	"github.com/onem2m/acme-cse/internal/dispatcher"
	"github.com/onem2m/acme-cse/internal/requestmanager"
)

// Server is the oneM2M MQTT binding: a paho client subscribed to the
// CSE's request topics, dispatching each message into the Dispatcher and
// publishing the result back onto the matching response topic.
type Server struct {
	config         *config.Config
	dispatcher     *dispatcher.Dispatcher
	requestManager *requestmanager.Manager
	logger         *zap.Logger
	client         mqtt.Client
}

// New creates a Server. It does not connect until Start is called.
func New(cfg *config.Config, d *dispatcher.Dispatcher, rm *requestmanager.Manager, logger *zap.Logger) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if d == nil {
		panic("dispatcher cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if rm == nil {
		rm = requestmanager.New(nil, cfg.CSE.SupportedReleaseVersions, nil, logger)
	}
	return &Server{config: cfg, dispatcher: d, requestManager: rm, logger: logger}
}

// Start connects to the configured broker and subscribes to the CSE's
// request topics. It is a no-op when MQTT is disabled in configuration.
func (s *Server) Start() error {
	if !s.config.MQTT.Enabled {
		s.logger.Info("MQTT binding not enabled")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.config.MQTT.BrokerURL)
	opts.SetClientID(s.config.MQTT.ClientID)
	opts.SetKeepAlive(s.config.MQTT.KeepAlive)
	opts.SetConnectTimeout(s.config.MQTT.ConnectTimeout)
	opts.SetAutoReconnect(true)
	if s.config.MQTT.Username != "" {
		opts.SetUsername(s.config.MQTT.Username)
		opts.SetPassword(s.config.MQTT.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		s.logger.Info("connected to MQTT broker", zap.String("broker", s.config.MQTT.BrokerURL))
		s.subscribe()
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Warn("MQTT connection lost", zap.Error(err))
	}

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(s.config.MQTT.ConnectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", s.config.MQTT.BrokerURL)
	}
	return token.Error()
}

func (s *Server) subscribe() {
	csi := s.config.CSE.CSEID
	prefix := s.config.MQTT.TopicPrefix

	reqTopic := fmt.Sprintf("%s/oneM2M/req/+/%s/#", prefix, csi)
	regTopic := fmt.Sprintf("%s/oneM2M/reg_req/+/%s/#", prefix, csi)

	if token := s.client.Subscribe(reqTopic, 1, s.handleRequest(responseKindReq)); token.Wait() && token.Error() != nil {
		s.logger.Error("failed to subscribe", zap.String("topic", reqTopic), zap.Error(token.Error()))
	}
	if token := s.client.Subscribe(regTopic, 1, s.handleRequest(responseKindReg)); token.Wait() && token.Error() != nil {
		s.logger.Error("failed to subscribe", zap.String("topic", regTopic), zap.Error(token.Error()))
	}
}

// Shutdown disconnects from the broker, waiting up to 250ms for
// in-flight publishes to drain.
func (s *Server) Shutdown() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
