package udp

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/rs/zerolog"
)

const (
	DefaultDroneAddr        = "192.168.10.1"
	DefaultCommandPort      = 8889
	DefaultLocalCommandPort = 8889
	DefaultTelemetryPort    = 8890
)

// Adapter opens the UDP endpoints of a drone session. Sockets are bound but
// not connected, so ICMP errors from an absent drone never surface as read
// errors; a missing drone shows up as a command timeout instead.
type Adapter struct {
	droneAddr        string
	commandPort      int
	localCommandPort int
	telemetryPort    int
	logger           *zerolog.Logger
}

func NewAdapter(droneAddr string, commandPort int, localCommandPort int,
	telemetryPort int, logger *zerolog.Logger) *Adapter {
	return &Adapter{
		droneAddr:        droneAddr,
		commandPort:      commandPort,
		localCommandPort: localCommandPort,
		telemetryPort:    telemetryPort,
		logger:           logger,
	}
}

// OpenCommand binds the local command port and targets the drone's command
// port.
func (a *Adapter) OpenCommand() (io.ReadWriteCloser, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(a.droneAddr, strconv.Itoa(a.commandPort)))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: a.localCommandPort})
	if err != nil {
		return nil, fmt.Errorf("bind command port %d: %w", a.localCommandPort, err)
	}
	a.logger.Debug().Str("local", conn.LocalAddr().String()).Str("remote", remote.String()).
		Msg("command endpoint open")
	return &Endpoint{conn: conn, remote: remote}, nil
}

// OpenTelemetry binds the telemetry port on all interfaces.
func (a *Adapter) OpenTelemetry() (io.ReadCloser, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: a.telemetryPort})
	if err != nil {
		return nil, fmt.Errorf("bind telemetry port %d: %w", a.telemetryPort, err)
	}
	a.logger.Debug().Str("local", conn.LocalAddr().String()).Msg("telemetry endpoint open")
	return &Endpoint{conn: conn}, nil
}

// Endpoint is one bound UDP socket. Write sends to the drone; Read returns
// one datagram from any sender.
type Endpoint struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
}

func (e *Endpoint) Read(p []byte) (int, error) {
	n, _, err := e.conn.ReadFromUDP(p)
	return n, err
}

func (e *Endpoint) Write(p []byte) (int, error) {
	if e.remote == nil {
		return 0, fmt.Errorf("endpoint %s is receive only", e.conn.LocalAddr())
	}
	return e.conn.WriteToUDP(p, e.remote)
}

// Close unblocks a pending Read.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// LocalAddr is the bound address, useful when the port was chosen by the
// system.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}
