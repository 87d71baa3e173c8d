package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// RequestHandler receives raw request payloads and is told when the broker
// stops accepting announcements.
type RequestHandler interface {
	HandleRequest(msg []byte)
	NetLoss()
}

type Adapter struct {
	broker            string
	connTimeout       time.Duration
	username          string
	passwd            string
	droneId           string
	announceTopic     string
	announceTimeout   time.Duration
	disconnectTimeout time.Duration
	rqTopic           string
	respTopic         string
	telemetryTopic    string
	certCheck         bool
	client            mqtt.Client
	handler           RequestHandler
	stopChan          chan bool
	announceChan      chan bool
	responseChan      chan []byte
	telemetryChan     chan []byte
	logger            *zerolog.Logger
}

func NewAdapter(broker string, connTimeout time.Duration, username string,
	passwd string, droneId string, announceTopic string,
	announceTimeout time.Duration,
	disconnectTimeout time.Duration,
	certCheck bool, handler RequestHandler,
	logger *zerolog.Logger) *Adapter {

	return &Adapter{
		broker:            broker,
		connTimeout:       connTimeout,
		username:          username,
		passwd:            passwd,
		droneId:           droneId,
		announceTopic:     announceTopic,
		announceTimeout:   announceTimeout,
		disconnectTimeout: disconnectTimeout,
		rqTopic:           RequestTopic(droneId),
		respTopic:         ResponseTopic(droneId),
		telemetryTopic:    TelemetryTopic(droneId),
		certCheck:         certCheck,
		handler:           handler,
		stopChan:          make(chan bool, 1),
		announceChan:      make(chan bool, 1),
		responseChan:      make(chan []byte, 1000),
		telemetryChan:     make(chan []byte, 1),
		logger:            logger,
	}
}

func RequestTopic(droneId string) string   { return fmt.Sprintf("drone/%s/request", droneId) }
func ResponseTopic(droneId string) string  { return fmt.Sprintf("drone/%s/response", droneId) }
func TelemetryTopic(droneId string) string { return fmt.Sprintf("drone/%s/telemetry", droneId) }

func (a *Adapter) Run() error {
	a.logger.Info().Msg("starting")
	defer a.logger.Info().Msg("stopping")

	err := a.connect()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to connect to MQTT broker")
		return err
	}

	defer a.client.Disconnect(uint(a.disconnectTimeout.Milliseconds()))

main_loop:
	for {
		select {
		case <-a.stopChan:
			break main_loop
		case <-a.announceChan:
			a.logger.Debug().Msg("announce")

			token := a.client.Publish(a.announceTopic, 2, false, a.droneId)
			if !token.WaitTimeout(a.announceTimeout) {
				a.logger.Error().Msg("timeout expired while publishing announce message")
				a.handler.NetLoss()
			} else if err := token.Error(); err != nil {
				a.logger.Error().Err(err).Msg("error publishing announce message")
				a.handler.NetLoss()
			}
		case resp := <-a.responseChan:
			a.client.Publish(a.respTopic, 2, false, resp)
		case tel := <-a.telemetryChan:
			// best effort
			a.client.Publish(a.telemetryTopic, 0, false, tel)
		}
	}

	return nil
}

func (a *Adapter) Stop() {
	a.stopChan <- true
}

func (a *Adapter) SendResponse(resp []byte) {
	a.responseChan <- resp
}

// SendTelemetry queues a snapshot, replacing one not yet published.
func (a *Adapter) SendTelemetry(tel []byte) {
	select {
	case a.telemetryChan <- tel:
		return
	default:
	}
	select {
	case <-a.telemetryChan:
	default:
	}
	select {
	case a.telemetryChan <- tel:
	default:
	}
}

func (a *Adapter) Announce() {
	select {
	case a.announceChan <- true:
	default:
	}
}

func (a *Adapter) connect() error {
	opts := mqtt.NewClientOptions().AddBroker(a.broker).SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetCredentialsProvider(func() (username string, password string) {
		return a.username, a.passwd
	})
	opts.SetClientID(a.droneId)
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !a.certCheck,
	}
	opts.SetTLSConfig(tlsConfig)
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		cl.Subscribe(a.rqTopic, 2, func(cl mqtt.Client, msg mqtt.Message) {
			a.logger.Debug().Msgf("received request: %s", string(msg.Payload()))
			a.handler.HandleRequest(msg.Payload())
		})
	})
	opts.SetConnectionLostHandler(func(cl mqtt.Client, err error) {
		a.logger.Warn().Err(err).Msg("connection to broker lost")
	})

	a.client = mqtt.NewClient(opts)
	token := a.client.Connect()

	if !token.WaitTimeout(a.connTimeout) {
		return errors.New("failed to connect to broker")
	}

	err := token.Error()
	return err
}
