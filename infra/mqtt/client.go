package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/monitoring"
	coremqtt "github.com/jordanlister/thinktank-installation-scheduler-sub005/core/mqtt"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/infra/logger"
)

const (
	DefaultScheduleTopic = "teams/%s/schedule"
	DefaultAckTopic      = "teams/+/ack"
	DefaultHistoryTopic  = "scheduling/history"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker        string          `json:"broker"`
	ClientID      string          `json:"client_id"`
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	ScheduleTopic string          `json:"schedule_topic"`
	AckTopic      string          `json:"ack_topic"`
	HistoryTopic  string          `json:"history_topic"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	TLSConfig     *tls.Config     `json:"-"`
}

// SetDefaults fills the topics left empty.
func (c *Config) SetDefaults() {
	if c.ScheduleTopic == "" {
		c.ScheduleTopic = DefaultScheduleTopic
	}
	if c.AckTopic == "" {
		c.AckTopic = DefaultAckTopic
	}
	if c.HistoryTopic == "" {
		c.HistoryTopic = DefaultHistoryTopic
	}
	if c.ClientID == "" {
		c.ClientID = "installsched-" + uuid.NewString()[:8]
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if !strings.Contains(c.ScheduleTopic, "%s") {
		return fmt.Errorf("mqtt: schedule_topic %q must contain %%s for the team id", c.ScheduleTopic)
	}
	switch c.AuthMethod {
	case "", "username_password", "tls", "both":
	default:
		return fmt.Errorf("mqtt: unknown auth_method %q", c.AuthMethod)
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements core/mqtt.Publisher using Eclipse Paho.
type PahoClient struct {
	cli           pahoClient
	scheduleTopic string
	ackTopic      string
	historyTopic  string
	qos           map[string]byte

	mu         sync.Mutex
	ackChans   map[string]chan bool
	logger     logger.Logger
	monitor    monitoring.Monitor
	maxRetries int
	backoff    time.Duration
}

var _ coremqtt.Publisher = (*PahoClient)(nil)

// Option customizes a PahoClient.
type Option func(*PahoClient)

// WithLogger replaces the component logger.
func WithLogger(l logger.Logger) Option { return func(p *PahoClient) { p.logger = l } }

// WithMonitor reports publish failures to m.
func WithMonitor(m monitoring.Monitor) Option { return func(p *PahoClient) { p.monitor = m } }

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ack topic.
func NewPahoClient(cfg Config, options ...Option) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	pc := &PahoClient{
		scheduleTopic: cfg.ScheduleTopic,
		ackTopic:      cfg.AckTopic,
		historyTopic:  cfg.HistoryTopic,
		qos:           cfg.QoS,
		ackChans:      make(map[string]chan bool),
		logger:        logger.New("mqtt_client"),
		monitor:       monitoring.NopMonitor{},
		maxRetries:    cfg.MaxRetries,
		backoff:       time.Duration(cfg.BackoffMS) * time.Millisecond,
	}
	for _, o := range options {
		o(pc)
	}
	if pc.maxRetries <= 0 {
		pc.maxRetries = 3
	}
	if pc.backoff <= 0 {
		pc.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(c paho.Client) {
		pc.logger.Infof("MQTT connected")
		if token := c.Subscribe(pc.ackTopic, pc.qosFor("ack"), pc.onAck); token.Wait() && token.Error() != nil {
			pc.logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		pc.logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		pc.logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS || cfg.AuthMethod == "tls" {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("read ca: no certificate in %s", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

// ack is the payload a team member sends back on its ack topic. A missing
// accepted field counts as accepted.
type ack struct {
	CommandID string `json:"command_id"`
	TeamID    string `json:"team_id"`
	Accepted  *bool  `json:"accepted,omitempty"`
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m ack
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	accepted := m.Accepted == nil || *m.Accepted
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.ackChans[m.CommandID]
	if !ok {
		p.logger.Debugf("ignoring ack for unknown command %s", m.CommandID)
		return
	}
	select {
	case ch <- accepted:
	default:
	}
	p.logger.Infof("received ack %s from %s (accepted=%t)", m.CommandID, m.TeamID, accepted)
}

// scheduleMessage is the payload published on a member's schedule topic.
type scheduleMessage struct {
	CommandID string `json:"command_id"`
	coremqtt.Schedule
	Timestamp int64 `json:"timestamp"`
}

// SendSchedule publishes the day schedule on the member topic and returns
// the command identifier used for acknowledgment tracking.
func (p *PahoClient) SendSchedule(s coremqtt.Schedule) (string, error) {
	cmdID := uuid.NewString()
	payload, err := json.Marshal(scheduleMessage{CommandID: cmdID, Schedule: s, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return "", err
	}

	// Registered before publishing so an early ack is not lost.
	p.mu.Lock()
	p.ackChans[cmdID] = make(chan bool, 1)
	p.mu.Unlock()

	topic := fmt.Sprintf(p.scheduleTopic, s.TeamID)
	if err := p.publish(topic, p.qosFor("schedule"), false, payload); err != nil {
		p.mu.Lock()
		delete(p.ackChans, cmdID)
		p.mu.Unlock()
		tags := monitoring.Tags("mqtt", err)
		tags["team_id"] = s.TeamID
		tags["date"] = s.Date
		p.monitor.CaptureException(err, tags)
		return "", err
	}
	p.logger.Infof("sent schedule %s (%d jobs) to %s", cmdID, len(s.Jobs), topic)
	return cmdID, nil
}

// PublishHistory forwards a resolution history entry. Entries are retained
// so late subscribers see the latest change.
func (p *PahoClient) PublishHistory(h model.ConflictResolutionHistory) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := p.publish(p.historyTopic, p.qosFor("history"), true, payload); err != nil {
		tags := monitoring.Tags("mqtt", err)
		tags["history_id"] = h.ID
		p.monitor.CaptureException(err, tags)
		return err
	}
	return nil
}

func (p *PahoClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retained, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Errorf("publish attempt %d on %s failed: %v", attempt+1, topic, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	return fmt.Errorf("publish %s: %w", topic, publishErr)
}

// WaitForAck blocks until an ack for the given command ID is received or the
// timeout expires.
func (p *PahoClient) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[commandID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("%w: %s", coremqtt.ErrUnknownCommand, commandID)
	}
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, commandID)
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case accepted := <-ch:
		return accepted, nil
	case <-timer.C:
		return false, coremqtt.ErrAckTimeout
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
