package relay

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tlspipe/udptlspipe/internal/model"
	"github.com/tlspipe/udptlspipe/internal/transport"
	"github.com/tlspipe/udptlspipe/internal/workers"
)

// dialFunc dials one disguised transport connection.
type dialFunc func(ctx context.Context) (transport.Conn, error)

const (
	// sessionQueueSize bounds the datagrams buffered while the dial is in
	// progress or the writer is behind. When the queue is full the newest
	// datagram is dropped: UDP tolerates loss, blocking the front-end
	// listener would stall every peer.
	sessionQueueSize = 256

	// pingInterval is how often we send a keep-alive frame so that idle
	// sessions survive intermediate proxies and load balancers.
	pingInterval = 30 * time.Second
)

// session binds one local UDP peer address to one disguised transport
// connection. Lifecycle: connecting -> active -> closed. The reader worker
// drives the lifetime: when it exits the session stops being routable and
// the registry will create a replacement on the next datagram.
type session struct {
	// id is a short identifier used in logs.
	id string

	// logger is the logger to use.
	logger model.Logger

	// peerAddr is the local UDP peer this session belongs to.
	peerAddr *net.UDPAddr

	// sock is the shared front-end UDP socket where we write inbound
	// payloads back to the peer.
	sock *net.UDPConn

	// queue buffers outbound datagrams.
	queue chan []byte

	// manager controls this session's workers.
	manager *workers.Manager

	// dial dials the disguised transport.
	dial dialFunc

	// alive tells the registry whether this session is routable.
	alive atomic.Bool

	// errorSink, when not nil, receives terminal errors for the
	// process-wide diagnostics slot.
	errorSink func(error)
}

// newSession creates a session and starts dialing in the background.
// Datagrams submitted while the dial is in progress are queued.
func newSession(logger model.Logger, peerAddr *net.UDPAddr, sock *net.UDPConn,
	dial dialFunc, errorSink func(error)) *session {
	s := &session{
		id:        "session " + uuid.NewString()[:8],
		logger:    logger,
		peerAddr:  peerAddr,
		sock:      sock,
		queue:     make(chan []byte, sessionQueueSize),
		manager:   workers.NewManager(logger),
		dial:      dial,
		errorSink: errorSink,
	}
	s.alive.Store(true)
	s.manager.StartWorker(s.id+": supervisor", s.supervise)
	return s
}

// send hands one datagram to the session. It TAKES OWNERSHIP of pkt and it
// never blocks: when the queue is full the datagram is dropped.
func (s *session) send(pkt []byte) {
	select {
	case s.queue <- pkt:
	default:
		s.logger.Debugf("%s: queue full, dropping %d bytes", s.id, len(pkt))
	}
}

// isAlive tells whether the registry may keep routing to this session.
func (s *session) isAlive() bool {
	return s.alive.Load()
}

// close makes the session not routable, stops its workers and waits for
// all of them to exit.
func (s *session) close() {
	s.alive.Store(false)
	s.manager.StartShutdown()
	s.manager.WaitWorkersShutdown()
}

// supervise dials the transport and, on success, starts the session
// workers. On dial failure the session transitions directly to closed.
func (s *session) supervise() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// abort the dial early when shutdown fires while connecting
		select {
		case <-s.manager.ShouldShutdown():
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := s.dial(ctx)
	if err != nil {
		s.alive.Store(false)
		// a dial canceled by shutdown is not a failure
		if ctx.Err() != nil {
			s.logger.Debugf("%s: closed while dialing", s.id)
		} else {
			s.logger.Warnf("%s: dial for %s failed: %s", s.id, s.peerAddr, err.Error())
			s.reportError(err)
		}
		s.manager.StartShutdown()
		return
	}

	s.logger.Infof("%s: active for peer %s", s.id, s.peerAddr)
	s.manager.StartWorker(s.id+": writer", func() { s.writerWorker(conn) })
	s.manager.StartWorker(s.id+": pinger", func() { s.pingerWorker(conn) })
	s.manager.StartWorker(s.id+": reader", func() { s.readerWorker(conn) })
	s.manager.StartWorker(s.id+": closer", func() {
		// the reader blocks on the conn: closing it is what unblocks
		// the reader once shutdown fires
		<-s.manager.ShouldShutdown()
		conn.Close()
	})
}

// writerWorker drains the outbound queue and writes each datagram as one
// transport message, in submission order.
func (s *session) writerWorker(conn transport.Conn) {
	defer s.manager.StartShutdown()
	for {
		select {
		case <-s.manager.ShouldShutdown():
			return
		case pkt := <-s.queue:
			if err := conn.WriteMessage(pkt); err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					// deadline expired on this message only, keep going
					s.logger.Warnf("%s: write timeout, dropping %d bytes", s.id, len(pkt))
					continue
				}
				s.logger.Warnf("%s: write failed: %s", s.id, err.Error())
				return
			}
		}
	}
}

// pingerWorker periodically sends a keep-alive control frame.
func (s *session) pingerWorker(conn transport.Conn) {
	defer s.manager.StartShutdown()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.manager.ShouldShutdown():
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					s.logger.Warnf("%s: ping timeout", s.id)
					continue
				}
				s.logger.Warnf("%s: ping failed: %s", s.id, err.Error())
				return
			}
		}
	}
}

// readerWorker reads inbound transport messages and writes each payload
// back to the owning peer on the shared UDP socket. It drives the session
// lifetime: when it returns the session is closed.
func (s *session) readerWorker(conn transport.Conn) {
	defer func() {
		s.alive.Store(false)
		s.manager.StartShutdown()
	}()
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.manager.ShouldShutdown():
				s.logger.Debugf("%s: closed", s.id)
			default:
				s.logger.Warnf("%s: read failed: %s", s.id, err.Error())
				s.reportError(err)
			}
			return
		}
		if _, err := s.sock.WriteToUDP(payload, s.peerAddr); err != nil {
			s.logger.Warnf("%s: write to %s failed: %s", s.id, s.peerAddr, err.Error())
			return
		}
	}
}

func (s *session) reportError(err error) {
	if s.errorSink != nil {
		s.errorSink(err)
	}
}
