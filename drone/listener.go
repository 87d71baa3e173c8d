package drone

import (
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Listener owns the telemetry channel. It decodes every broadcast and
// publishes it to the session's snapshot store.
type Listener struct {
	conn     io.Reader
	codec    *TelemetryCodec
	store    *snapshotStore
	logger   *zerolog.Logger
	now      func() time.Time
	onUpdate func(Snapshot)

	stopChan  chan struct{}
	stopOnce  sync.Once
	doneChan  chan struct{}
	faultChan chan struct{}
	faultErr  error
}

func newListener(conn io.Reader, codec *TelemetryCodec, store *snapshotStore,
	logger *zerolog.Logger) *Listener {
	return &Listener{
		conn:      conn,
		codec:     codec,
		store:     store,
		logger:    logger,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
		faultChan: make(chan struct{}),
	}
}

// Run receives until the connection is closed. A bad broadcast is logged
// and skipped; only a receive failure ends the loop early.
func (l *Listener) Run() {
	defer close(l.doneChan)
	l.logger.Debug().Msg("telemetry listener starting")
	defer l.logger.Debug().Msg("telemetry listener stopped")

	buf := make([]byte, readBufSize)
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			if l.stopped() {
				return
			}
			l.logger.Error().Err(err).Msg("telemetry receive failed")
			l.faultErr = &TransportError{Op: "telemetry receive", Err: err}
			close(l.faultChan)
			return
		}
		l.handle(buf[:n])
	}
}

func (l *Listener) handle(line []byte) {
	u, err := l.codec.Decode(line)
	if err != nil {
		l.logger.Debug().Err(err).Str("line", string(line)).Msg("discarding telemetry")
		return
	}
	if len(u.Dropped) > 0 {
		l.logger.Debug().Strs("keys", u.Dropped).Msg("unparsable telemetry values kept stale")
	}
	if len(u.Values) == 0 {
		return
	}
	snap := l.store.apply(u, l.now())
	if l.onUpdate != nil {
		l.onUpdate(snap)
	}
}

// Stop marks the listener as stopping; closing the connection then ends Run.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}

func (l *Listener) stopped() bool {
	select {
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

// Done is closed when Run returns.
func (l *Listener) Done() <-chan struct{} {
	return l.doneChan
}

// Faults is closed when the telemetry channel fails.
func (l *Listener) Faults() <-chan struct{} {
	return l.faultChan
}

// Err returns the receive failure once Faults is closed.
func (l *Listener) Err() error {
	select {
	case <-l.faultChan:
		return l.faultErr
	default:
		return nil
	}
}
