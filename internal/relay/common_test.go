package relay

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tlspipe/udptlspipe/internal/model"
	"github.com/tlspipe/udptlspipe/internal/transport"
	"github.com/tlspipe/udptlspipe/pkg/config"
)

// echoEndpoint is an in-process stand-in for the remote pipe server:
// every binary message is echoed back on the same connection.
type echoEndpoint struct {
	server *httptest.Server
	addr   string
	conns  int32
}

func startEchoEndpoint(t *testing.T) *echoEndpoint {
	t.Helper()
	ep := &echoEndpoint{}
	upgrader := websocket.Upgrader{}
	ep.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		atomic.AddInt32(&ep.conns, 1)
		defer ws.Close()
		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ep.server.Close)
	ep.addr = ep.server.Listener.Addr().String()
	return ep
}

func (ep *echoEndpoint) connCount() int {
	return int(atomic.LoadInt32(&ep.conns))
}

// makeTestingRelay builds a started relay pointed at the given endpoint.
func makeTestingRelay(t *testing.T, endpointAddr string) *Relay {
	t.Helper()
	cfg := config.NewConfig(
		config.WithLogger(model.NewTestLogger()),
		config.WithPipeOptions(&config.PipeOptions{
			Enabled:     true,
			Destination: endpointAddr,
			// the test endpoint uses a self-signed certificate
			Secure: false,
		}),
	)
	r, err := New(model.NewTestLogger(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Stop)
	return r
}

// eventually polls cond until it holds or the test deadline expires.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// mockConn is an in-memory [transport.Conn] for session tests.
type mockConn struct {
	// in feeds payloads to ReadMessage; closing it reads as EOF.
	in chan []byte

	mu      sync.Mutex
	written [][]byte

	pings     int32
	closed    chan struct{}
	closeOnce sync.Once
}

var _ transport.Conn = &mockConn{}

func newMockConn() *mockConn {
	return &mockConn{
		in:     make(chan []byte),
		closed: make(chan struct{}),
	}
}

func (c *mockConn) ReadMessage() ([]byte, error) {
	select {
	case pkt, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return pkt, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *mockConn) WriteMessage(pkt []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, append([]byte(nil), pkt...))
	return nil
}

func (c *mockConn) Ping() error {
	atomic.AddInt32(&c.pings, 1)
	return nil
}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *mockConn) writtenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *mockConn) writtenAll() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// makeTestingSockets returns a shared front-end socket and a peer socket
// bound on loopback.
func makeTestingSockets(t *testing.T) (shared, peer *net.UDPConn) {
	t.Helper()
	var err error
	shared, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { shared.Close() })
	peer, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { peer.Close() })
	return shared, peer
}
