package transport

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// echoEndpoint is an in-process stand-in for the remote pipe server: a TLS
// HTTP server upgrading to websocket and echoing every binary message.
type echoEndpoint struct {
	server *httptest.Server

	// addr is the host:port the endpoint listens on.
	addr string

	// conns counts accepted websocket connections.
	conns int32

	// password, when non-empty, must match the authentication parameter
	// on the initial request.
	password string
}

func startEchoEndpoint(t *testing.T, password string) *echoEndpoint {
	t.Helper()
	ep := &echoEndpoint{password: password}
	upgrader := websocket.Upgrader{}
	ep.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ep.password != "" && r.URL.Query().Get("password") != ep.password {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
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
