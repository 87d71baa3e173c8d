package drone

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	defaultAttempts = 3
	readBufSize     = 2048
	replyQueueSize  = 16
)

// Policy holds the retry limit and the per-family reply timeouts.
type Policy struct {
	// Attempts is the total number of transmissions, first one included.
	Attempts int
	Timeouts map[Family]time.Duration
}

// DefaultPolicy returns 3 attempts with 1s for control and query commands,
// 3s for motion commands and 7s for takeoff and land.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: defaultAttempts,
		Timeouts: map[Family]time.Duration{
			FamilyControl: time.Second,
			FamilyQuery:   time.Second,
			FamilyMotion:  3 * time.Second,
			FamilyLaunch:  7 * time.Second,
		},
	}
}

func (p Policy) timeout(f Family) time.Duration {
	if d, ok := p.Timeouts[f]; ok && d > 0 {
		return d
	}
	return time.Second
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return defaultAttempts
	}
	return p.Attempts
}

// Sequencer owns the command channel. It keeps at most one command in
// flight and serves waiting callers in arrival order.
type Sequencer struct {
	conn    io.ReadWriter
	policy  Policy
	gate    *semaphore.Weighted
	replies chan []byte
	logger  *zerolog.Logger

	sendMu    sync.Mutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	faultChan chan struct{}
	faultOnce sync.Once
	faultErr  error
	wg        sync.WaitGroup
}

func NewSequencer(conn io.ReadWriter, policy Policy, logger *zerolog.Logger) *Sequencer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Sequencer{
		conn:      conn,
		policy:    policy,
		gate:      semaphore.NewWeighted(1),
		replies:   make(chan []byte, replyQueueSize),
		logger:    logger,
		stopChan:  make(chan struct{}),
		faultChan: make(chan struct{}),
	}
}

// Start launches the reply reader.
func (s *Sequencer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readLoop()
	}()
}

// Stop makes the in-flight command give up as TimedOut and every later
// Execute fail with ErrSessionClosed. The reader exits once the connection
// is closed. No transmission starts after Stop returns.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() {
		s.sendMu.Lock()
		close(s.stopChan)
		s.sendMu.Unlock()
	})
}

// Wait blocks until the reader has exited.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

// Faults is closed when the connection fails.
func (s *Sequencer) Faults() <-chan struct{} {
	return s.faultChan
}

// Err returns the transport failure once Faults is closed.
func (s *Sequencer) Err() error {
	select {
	case <-s.faultChan:
		return s.faultErr
	default:
		return nil
	}
}

func (s *Sequencer) stopped() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

func (s *Sequencer) fail(err error) {
	s.faultOnce.Do(func() {
		s.faultErr = err
		close(s.faultChan)
	})
}

func (s *Sequencer) readLoop() {
	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if s.stopped() {
				return
			}
			s.logger.Error().Err(err).Msg("command channel receive failed")
			s.fail(&TransportError{Op: "receive", Err: err})
			return
		}

		reply := make([]byte, n)
		copy(reply, buf[:n])
		select {
		case s.replies <- reply:
		default:
			s.logger.Warn().Str("reply", string(reply)).Msg("reply queue full, dropping")
		}
	}
}

// send writes one datagram unless the sequencer has been stopped.
func (s *Sequencer) send(payload []byte) (bool, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.stopped() {
		return false, nil
	}
	_, err := s.conn.Write(payload)
	return true, err
}

// drain discards replies nobody waited for, such as a late answer to a
// command that already timed out.
func (s *Sequencer) drain() {
	for {
		select {
		case r := <-s.replies:
			s.logger.Debug().Str("reply", string(r)).Msg("discarding stale reply")
		default:
			return
		}
	}
}

// Execute transmits cmd and waits for its reply. Timeouts are retried up to
// the policy's attempt limit, after which the outcome is TimedOut. Failure
// and TimedOut are outcomes, not errors; the error is reserved for transport
// failures, cancellation and a closed session.
func (s *Sequencer) Execute(ctx context.Context, cmd Command) (Outcome, error) {
	payload, err := Encode(cmd)
	if err != nil {
		return Outcome{}, err
	}
	if s.stopped() {
		return Outcome{}, ErrSessionClosed
	}

	if err := s.gate.Acquire(ctx, 1); err != nil {
		return Outcome{}, err
	}
	defer s.gate.Release(1)

	if s.stopped() {
		return Outcome{}, ErrSessionClosed
	}
	if err := s.Err(); err != nil {
		return Outcome{}, err
	}

	s.drain()
	timeout := s.policy.timeout(cmd.Family())
	attempts := s.policy.attempts()
	log := s.logger.With().Str("cmd", string(payload)).Logger()

	for attempt := 1; attempt <= attempts; attempt++ {
		log.Debug().Int("attempt", attempt).Msg("sending")
		sent, err := s.send(payload)
		if !sent {
			log.Debug().Int("attempt", attempt).Msg("stopped, not sending")
			return Outcome{Result: TimedOut, Attempts: attempt - 1}, nil
		}
		if err != nil {
			if s.stopped() {
				return Outcome{Result: TimedOut, Attempts: attempt}, nil
			}
			terr := &TransportError{Op: "send", Err: err}
			log.Error().Err(err).Msg("command channel send failed")
			s.fail(terr)
			return Outcome{}, terr
		}

		timer := time.NewTimer(timeout)
		select {
		case raw := <-s.replies:
			timer.Stop()
			out := Decode(cmd, raw)
			out.Attempts = attempt
			if out.Result == Failure {
				log.Info().Str("reply", out.Reason).Msg("drone rejected command")
			} else {
				log.Debug().Str("outcome", out.String()).Msg("acknowledged")
			}
			return out, nil
		case <-timer.C:
			if attempt < attempts {
				log.Warn().Int("attempt", attempt).Dur("timeout", timeout).Msg("no reply, retrying")
			}
		case <-s.stopChan:
			timer.Stop()
			return Outcome{Result: TimedOut, Attempts: attempt}, nil
		case <-s.faultChan:
			timer.Stop()
			return Outcome{}, s.faultErr
		case <-ctx.Done():
			timer.Stop()
			return Outcome{Result: TimedOut, Attempts: attempt}, ctx.Err()
		}
	}

	log.Warn().Int("attempts", attempts).Msg("command timed out")
	return Outcome{Result: TimedOut, Attempts: attempts}, nil
}
