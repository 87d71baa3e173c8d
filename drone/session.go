package drone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State of the connection to the drone.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// DefaultSpeed is the speed assumed until a speed command succeeds.
const DefaultSpeed = 10

// Transport opens the two datagram endpoints of a session. Closing an
// endpoint must unblock a pending Read.
type Transport interface {
	OpenCommand() (io.ReadWriteCloser, error)
	OpenTelemetry() (io.ReadCloser, error)
}

// Options tune a Session. The zero value is usable.
type Options struct {
	Policy Policy
	// KeyTypes adds to or overrides the telemetry type table.
	KeyTypes map[string]Kind
	// MissionPadOnConnect sends "mon" right after a successful connect.
	MissionPadOnConnect bool
	// OnTelemetry is called from the listener goroutine after every update.
	OnTelemetry func(Snapshot)
	Logger      *zerolog.Logger
}

// PadLocation is the drone position relative to a detected mission pad.
type PadLocation struct {
	Pad      int       `json:"pad"`
	X        int       `json:"x"`
	Y        int       `json:"y"`
	Z        int       `json:"z"`
	Captured time.Time `json:"captured"`
}

// Session is one connection to one drone. It owns both endpoints, the
// sequencer and the telemetry listener.
type Session struct {
	transport Transport
	opts      Options
	logger    *zerolog.Logger
	codec     *TelemetryCodec
	store     snapshotStore

	mu        sync.Mutex
	state     State
	flags     Flags
	gen       uint64
	cmdConn   io.ReadWriteCloser
	telConn   io.ReadCloser
	seq       *Sequencer
	listener  *Listener
	watchStop chan struct{}
}

func NewSession(transport Transport, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Policy.Timeouts == nil {
		opts.Policy = DefaultPolicy()
	}
	return &Session{
		transport: transport,
		opts:      opts,
		logger:    logger,
		codec:     NewTelemetryCodec(opts.KeyTypes),
		flags:     Flags{State: Disconnected, DefaultSpeed: DefaultSpeed},
	}
}

// State returns the connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Flags returns the connection state and mode flags.
func (s *Session) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flagsLocked()
}

func (s *Session) flagsLocked() Flags {
	f := s.flags
	f.State = s.state
	return f
}

// Snapshot returns the latest telemetry without blocking.
func (s *Session) Snapshot() Snapshot {
	return s.store.load()
}

// Connect opens both endpoints and puts the drone into SDK mode. On failure
// the endpoints are closed again and the session is left Disconnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}

	cmdConn, err := s.transport.OpenCommand()
	if err != nil {
		s.mu.Unlock()
		return &TransportError{Op: "open command channel", Err: err}
	}
	telConn, err := s.transport.OpenTelemetry()
	if err != nil {
		cmdConn.Close()
		s.mu.Unlock()
		return &TransportError{Op: "open telemetry channel", Err: err}
	}

	s.gen++
	gen := s.gen
	s.state = Connecting
	s.flags = Flags{DefaultSpeed: DefaultSpeed}
	s.cmdConn = cmdConn
	s.telConn = telConn

	seqLogger := s.logger.With().Str("component", "sequencer").Logger()
	s.seq = NewSequencer(cmdConn, s.opts.Policy, &seqLogger)
	s.seq.Start()

	telLogger := s.logger.With().Str("component", "telemetry").Logger()
	listener := newListener(telConn, s.codec, &s.store, &telLogger)
	listener.onUpdate = s.opts.OnTelemetry
	s.store.reset()

	s.watchStop = make(chan struct{})
	go s.watch(gen, s.seq, listener, s.watchStop)
	s.mu.Unlock()

	s.logger.Info().Msg("connecting")
	out, err := s.Execute(ctx, EnterSDK())
	if err != nil || !out.Ok() {
		s.teardown(gen)
		switch {
		case err != nil:
			return fmt.Errorf("enter sdk mode: %w", err)
		case out.Result == TimedOut:
			return ErrConnectTimeout
		default:
			return fmt.Errorf("%w: %s", ErrConnectRejected, out.Reason)
		}
	}

	s.mu.Lock()
	if s.gen != gen || s.state != Connecting {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = Connected
	s.listener = listener
	go listener.Run()
	s.mu.Unlock()
	s.logger.Info().Int("attempts", out.Attempts).Msg("connected")

	if s.opts.MissionPadOnConnect {
		out, err := s.Execute(ctx, MissionPadOn())
		if err != nil || !out.Ok() {
			s.logger.Warn().Err(err).Str("outcome", out.String()).Msg("could not enable mission pads")
		}
	}
	return nil
}

// Disconnect stops the listener, closes both endpoints and resets the
// session. It is a no-op on a session that is already disconnected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()
	return s.teardown(gen)
}

// teardown closes the session opened as generation gen. Later calls for the
// same generation do nothing.
func (s *Session) teardown(gen uint64) error {
	s.mu.Lock()
	if s.gen != gen || s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	seq, listener := s.seq, s.listener
	cmdConn, telConn := s.cmdConn, s.telConn
	close(s.watchStop)
	s.state = Disconnected
	s.flags = Flags{DefaultSpeed: DefaultSpeed}
	s.seq, s.listener, s.cmdConn, s.telConn, s.watchStop = nil, nil, nil, nil, nil
	s.mu.Unlock()

	seq.Stop()
	if listener != nil {
		listener.Stop()
	}

	var errs []error
	if err := cmdConn.Close(); err != nil {
		errs = append(errs, &TransportError{Op: "close command channel", Err: err})
	}
	if err := telConn.Close(); err != nil {
		errs = append(errs, &TransportError{Op: "close telemetry channel", Err: err})
	}

	seq.Wait()
	if listener != nil {
		<-listener.Done()
	}
	s.logger.Info().Msg("disconnected")
	return errors.Join(errs...)
}

// watch drops the session when either endpoint fails.
func (s *Session) watch(gen uint64, seq *Sequencer, l *Listener, stop <-chan struct{}) {
	var err error
	select {
	case <-stop:
		return
	case <-seq.Faults():
		err = seq.Err()
	case <-l.Faults():
		err = l.Err()
	}
	s.logger.Error().Err(err).Msg("transport failure, dropping session")
	if cerr := s.teardown(gen); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("error while closing failed session")
	}
}

// Execute validates req against the current mode flags and, if it passes,
// sends it and waits for the acknowledgment. It does not wait for the
// motion to finish.
func (s *Session) Execute(ctx context.Context, req Request) (Outcome, error) {
	s.mu.Lock()
	flags := s.flagsLocked()
	seq, gen := s.seq, s.gen
	s.mu.Unlock()

	cmd, err := Validate(req, flags)
	if err != nil {
		return Outcome{}, err
	}
	if cmd.Local() {
		return Outcome{}, ErrLocalCommand
	}

	out, err := seq.Execute(ctx, cmd)
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			s.teardown(gen)
		}
		return out, err
	}
	if out.Ok() {
		s.apply(gen, cmd)
	}
	return out, nil
}

// apply records the mode changes of an acknowledged command.
func (s *Session) apply(gen uint64, cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state == Disconnected {
		return
	}
	switch cmd.Op() {
	case OpPadOn:
		s.flags.MissionPadDetection = true
		if !s.flags.PadForward && !s.flags.PadDownward {
			s.flags.PadDownward = true
		}
	case OpPadOff:
		s.flags.MissionPadDetection = false
	case OpPadDirection:
		dir := cmd.textArg("direction")
		s.flags.PadForward = dir == "forward" || dir == "both"
		s.flags.PadDownward = dir == "downward" || dir == "both"
	case OpSetSpeed:
		s.flags.DefaultSpeed = cmd.intArg("speed")
	}
}

// MissionPadLocation reports the position relative to the mission pad in
// view, from the latest telemetry. It needs mission pad detection on and
// never talks to the drone.
func (s *Session) MissionPadLocation() (PadLocation, error) {
	if _, err := Validate(NewRequest(OpPadLocation), s.Flags()); err != nil {
		return PadLocation{}, err
	}
	snap := s.Snapshot()
	mid, ok := snap.Int("mid")
	if !ok || mid < 1 {
		return PadLocation{}, ErrNoPadFix
	}
	x, _ := snap.Int("x")
	y, _ := snap.Int("y")
	z, _ := snap.Int("z")
	return PadLocation{Pad: int(mid), X: int(x), Y: int(y), Z: int(z), Captured: snap.Captured()}, nil
}
