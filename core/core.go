package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/moosethebrown/tello-net-bridge/drone"
	"github.com/rs/zerolog"
)

type Session interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Execute(ctx context.Context, req drone.Request) (drone.Outcome, error)
	Snapshot() drone.Snapshot
	State() drone.State
	MissionPadLocation() (drone.PadLocation, error)
}

type MqttHandler interface {
	SendResponse([]byte)
	SendTelemetry([]byte)
	Announce()
}

type Core struct {
	session           Session
	mqttHandler       MqttHandler
	announceInterval  int
	telemetryInterval int
	netLossLand       bool
	logger            *zerolog.Logger
	rqChan            chan *Request
	workChan          chan *Request
	stopChan          chan bool
	netLossChan       chan bool
	ctx               context.Context
	cancel            context.CancelFunc
	lastSeq           uint64
	wg                sync.WaitGroup
}

func NewCore(session Session, mqttHandler MqttHandler, announceInterval int,
	telemetryInterval int, netLossLand bool, logger *zerolog.Logger) *Core {
	ctx, cancel := context.WithCancel(context.Background())
	return &Core{
		session:           session,
		mqttHandler:       mqttHandler,
		announceInterval:  announceInterval,
		telemetryInterval: telemetryInterval,
		netLossLand:       netLossLand,
		logger:            logger,
		rqChan:            make(chan *Request, 1000),
		workChan:          make(chan *Request, 1000),
		stopChan:          make(chan bool, 1),
		netLossChan:       make(chan bool, 1),
		ctx:               ctx,
		cancel:            cancel,
	}
}

func (c *Core) SetMqttHandler(handler MqttHandler) {
	c.mqttHandler = handler
}

func (c *Core) HandleRequest(msg []byte) {
	var rq Request

	err := json.Unmarshal(msg, &rq)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to unmarshal request")
		return
	}
	if err := c.parseArgs(&rq); err != nil {
		c.logger.Error().Err(err).Str("cmd", rq.Cmd).Msg("bad request arguments")
		c.respond(&Response{Id: rq.Id, Type: rq.Type, Cmd: rq.Cmd, Error: err.Error()})
		return
	}

	c.rqChan <- &rq
}

// Run publishes announcements and telemetry and dispatches requests.
// Anything that talks to the drone runs on the worker so that a long
// command or motion wait never holds up the tickers or the net loss
// failsafe.
func (c *Core) Run() {
	announce := time.NewTicker(time.Duration(c.announceInterval) * time.Millisecond)
	defer announce.Stop()
	telemetry := time.NewTicker(time.Duration(c.telemetryInterval) * time.Millisecond)
	defer telemetry.Stop()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.work()
	}()

core_loop:
	for {
		select {
		case rq := <-c.rqChan:
			switch rq.Type {
			case RequestTypeCmd, RequestTypeConnect, RequestTypeDisconnect:
				c.workChan <- rq
			case RequestTypeQuery:
				c.handleQuery(rq)
			default:
				c.logger.Error().Msgf("unknown request type: %s", rq.Type)
				c.respond(&Response{Id: rq.Id, Type: rq.Type,
					Error: fmt.Sprintf("unknown request type: %s", rq.Type)})
			}
		case <-telemetry.C:
			c.publishTelemetry()
		case <-announce.C:
			c.mqttHandler.Announce()
		case <-c.netLossChan:
			c.handleNetLoss()
		case <-c.stopChan:
			break core_loop
		}
	}

	c.wg.Wait()
}

// work handles drone requests one at a time, in arrival order.
func (c *Core) work() {
	for {
		select {
		case rq := <-c.workChan:
			switch rq.Type {
			case RequestTypeCmd:
				c.handleCommand(rq)
			case RequestTypeConnect:
				c.handleConnect(rq)
			case RequestTypeDisconnect:
				c.handleDisconnect(rq)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop ends Run and abandons the command in flight.
func (c *Core) Stop() {
	c.cancel()
	c.stopChan <- true
}

func (c *Core) NetLoss() {
	select {
	case c.netLossChan <- true:
	default:
	}
}

func (c *Core) handleCommand(rq *Request) {
	if drone.Opcode(rq.Cmd) == drone.OpPadLocation {
		c.handlePadLocation(rq)
		return
	}

	resp := &Response{Id: rq.Id, Type: rq.Type, Cmd: rq.Cmd}
	out, err := c.session.Execute(c.ctx, drone.NewRequest(drone.Opcode(rq.Cmd), rq.args...))
	fillOutcome(resp, out)
	if err != nil {
		c.logger.Error().Err(err).Str("cmd", rq.Cmd).Msg("command failed")
		resp.Error = err.Error()
	} else if out.Ok() && rq.WaitMs > 0 {
		if err := WaitMotion(c.ctx, time.Duration(rq.WaitMs)*time.Millisecond); err != nil {
			resp.Error = err.Error()
		}
	}
	resp.State = c.session.State().String()
	c.respond(resp)
}

// handlePadLocation answers padlocation from the latest telemetry; it never
// reaches the drone.
func (c *Core) handlePadLocation(rq *Request) {
	resp := &Response{Id: rq.Id, Type: rq.Type, Cmd: rq.Cmd}
	loc, err := c.session.MissionPadLocation()
	if err != nil {
		c.logger.Warn().Err(err).Msg("no mission pad location")
		resp.Error = err.Error()
	} else {
		resp.Outcome = drone.SuccessWithValue.String()
		resp.Location = &loc
	}
	resp.State = c.session.State().String()
	c.respond(resp)
}

func (c *Core) handleQuery(rq *Request) {
	snap := c.session.Snapshot()
	c.respond(&Response{
		Id:       rq.Id,
		Type:     rq.Type,
		State:    c.session.State().String(),
		Snapshot: &snap,
	})
}

func (c *Core) handleConnect(rq *Request) {
	resp := &Response{Id: rq.Id, Type: rq.Type}
	if err := c.session.Connect(c.ctx); err != nil {
		c.logger.Error().Err(err).Msg("connect failed")
		resp.Error = err.Error()
	}
	resp.State = c.session.State().String()
	c.respond(resp)
}

func (c *Core) handleDisconnect(rq *Request) {
	resp := &Response{Id: rq.Id, Type: rq.Type}
	if err := c.session.Disconnect(); err != nil {
		c.logger.Error().Err(err).Msg("disconnect failed")
		resp.Error = err.Error()
	}
	resp.State = c.session.State().String()
	c.respond(resp)
}

// handleNetLoss lands the drone when the controller can no longer reach it.
func (c *Core) handleNetLoss() {
	if !c.netLossLand || c.session.State() != drone.Connected {
		c.logger.Warn().Msg("net loss")
		return
	}
	c.logger.Warn().Msg("net loss, landing")
	out, err := c.session.Execute(c.ctx, drone.Land())
	if err != nil || !out.Ok() {
		c.logger.Error().Err(err).Str("outcome", out.String()).Msg("failsafe landing not acknowledged")
	}
}

func (c *Core) publishTelemetry() {
	snap := c.session.Snapshot()
	if snap.Seq() == 0 || snap.Seq() == c.lastSeq {
		return
	}
	c.lastSeq = snap.Seq()
	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal telemetry")
		return
	}
	c.mqttHandler.SendTelemetry(data)
}

func (c *Core) respond(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	c.mqttHandler.SendResponse(data)
}

func fillOutcome(resp *Response, out drone.Outcome) {
	if out.Result == 0 {
		return
	}
	resp.Outcome = out.Result.String()
	resp.Value = out.Value
	resp.Reason = out.Reason
	resp.Attempts = out.Attempts
}

// parseArgs turns the JSON argument object into drone arguments: integral
// numbers become numeric arguments, strings become choices.
func (c *Core) parseArgs(rq *Request) error {
	if rq.Type != RequestTypeCmd {
		return nil
	}

	names := make([]string, 0, len(rq.Args))
	for name := range rq.Args {
		names = append(names, name)
	}
	sort.Strings(names)

	rq.args = make([]drone.Arg, 0, len(names))
	for _, name := range names {
		raw := rq.Args[name]

		var num json.Number
		if err := json.Unmarshal(raw, &num); err == nil {
			i, err := strconv.Atoi(num.String())
			if err != nil {
				return fmt.Errorf("argument %s: %s is not an integer", name, num)
			}
			rq.args = append(rq.args, drone.IntArg(name, i))
			continue
		}

		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			rq.args = append(rq.args, drone.TextArg(name, text))
			continue
		}

		return fmt.Errorf("argument %s: expected a number or a string", name)
	}
	return nil
}

// WaitMotion waits d for a motion to complete after its command was
// acknowledged.
func WaitMotion(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("wait for motion interrupted"), ctx.Err())
	}
}
