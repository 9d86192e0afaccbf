// Package relay implements one pipe instance: a local loopback UDP
// front-end that multiplexes each local peer over its own disguised
// transport connection to the remote endpoint.
package relay

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/tlspipe/udptlspipe/internal/model"
	"github.com/tlspipe/udptlspipe/internal/transport"
	"github.com/tlspipe/udptlspipe/internal/workers"
	"github.com/tlspipe/udptlspipe/pkg/config"
)

// ErrListen is returned when the local UDP socket cannot be bound.
var ErrListen = errors.New("listen error")

const (
	// receiveTimeout is the read deadline on the front-end socket, so the
	// receive loop observes shutdown promptly even with no traffic.
	receiveTimeout = time.Second

	// maxDatagramSize is the maximum UDP payload we accept.
	maxDatagramSize = 65535
)

// Relay is one running pipe instance. The zero value is invalid; please,
// use the [New] constructor, then call [Relay.Start].
type Relay struct {
	// logger is the logger to use.
	logger model.Logger

	// dialer dials disguised transport connections.
	dialer *transport.Dialer

	// errorSink receives asynchronous session errors.
	errorSink func(error)

	// manager controls the instance workers; waiting on it drains every
	// session too, because the receive loop closes the registry on exit.
	manager *workers.Manager

	// registry owns the per-peer sessions.
	registry *sessionRegistry

	// conn is the front-end UDP socket, set by Start.
	conn *net.UDPConn

	// localPort is the bound local port, set by Start.
	localPort int
}

// New creates a Relay from the given config. It fails on configuration
// errors (bad destination, bad proxy URL) without allocating resources.
func New(logger model.Logger, cfg *config.Config, errorSink func(error)) (*Relay, error) {
	dialer, err := transport.NewDialer(logger, cfg)
	if err != nil {
		return nil, err
	}
	return &Relay{
		logger:    logger,
		dialer:    dialer,
		errorSink: errorSink,
		manager:   workers.NewManager(logger),
		registry:  newSessionRegistry(logger),
	}, nil
}

// Start binds the local UDP socket on 127.0.0.1 and starts the receive
// loop. A listenPort of zero binds an ephemeral port.
func (r *Relay) Start(listenPort int) error {
	listenAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(listenPort))
	udpAddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrListen, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrListen, err)
	}
	r.conn = conn
	r.localPort = conn.LocalAddr().(*net.UDPAddr).Port
	r.logger.Infof("relay: listening on %s", conn.LocalAddr())
	r.manager.StartWorker("relay: receive loop", r.receiveLoop)
	return nil
}

// LocalPort returns the bound local UDP port.
func (r *Relay) LocalPort() int {
	return r.localPort
}

// Stop shuts the instance down and blocks until the receive loop, every
// session worker, and the socket are gone.
func (r *Relay) Stop() {
	r.manager.StartShutdown()
	r.manager.WaitWorkersShutdown()
}

// receiveLoop reads datagrams from the front-end socket and routes each to
// the session owning its source address, creating sessions on demand.
func (r *Relay) receiveLoop() {
	defer func() {
		// teardown order matters: sessions still write to the socket
		r.registry.closeAll()
		r.conn.Close()
		r.manager.StartShutdown()
	}()
	buffer := make([]byte, maxDatagramSize)
	for {
		select {
		case <-r.manager.ShouldShutdown():
			return
		default:
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(receiveTimeout))
		count, peerAddr, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			r.logger.Warnf("relay: read failed: %s", err.Error())
			return
		}
		// the session outlives this iteration and we reuse the buffer
		pkt := make([]byte, count)
		copy(pkt, buffer[:count])
		sess := r.registry.getOrCreate(peerAddr.String(), func() *session {
			return newSession(r.logger, peerAddr, r.conn, r.dialer.DialContext, r.errorSink)
		})
		sess.send(pkt)
	}
}
