// Package transport dials the disguised transport: a TLS connection whose
// ClientHello parrots a real-world client, carrying a message-framed
// (WebSocket) stream where each binary message is one UDP datagram.
package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	tls "github.com/refraction-networking/utls"
	xproxy "golang.org/x/net/proxy"

	"github.com/tlspipe/udptlspipe/internal/fingerprint"
	"github.com/tlspipe/udptlspipe/internal/model"
	"github.com/tlspipe/udptlspipe/pkg/config"
)

var (
	// ErrDialError is a generic error while dialing.
	ErrDialError = errors.New("dial error")

	// ErrBadTLSHandshake is returned when the disguised TLS handshake failed.
	ErrBadTLSHandshake = errors.New("handshake failure")

	// ErrBadProxy is returned when the proxy URL cannot be used.
	ErrBadProxy = errors.New("bad proxy conf")
)

const (
	// handshakeTimeout bounds the whole connect, including the TLS and
	// websocket handshakes.
	handshakeTimeout = 10 * time.Second

	// writeTimeout bounds each message write on the resulting conn.
	writeTimeout = 5 * time.Second
)

// Dialer dials disguised transport connections to one remote endpoint.
// The zero value is invalid; please, use the [NewDialer] constructor.
type Dialer struct {
	// logger is the logger to use.
	logger model.Logger

	// endpoint is the remote host:port.
	endpoint string

	// serverName is the SNI sent in the disguised handshake.
	serverName string

	// secure tells whether to verify the server certificate.
	secure bool

	// password is the optional authentication parameter.
	password string

	// proxyURL is the optional forward proxy, already parsed.
	proxyURL *url.URL

	// profile is the fingerprint profile to apply.
	profile fingerprint.Profile
}

// NewDialer creates a [Dialer] from the given config. It fails if the
// destination is not a host:port pair or the proxy URL is not usable.
func NewDialer(logger model.Logger, cfg *config.Config) (*Dialer, error) {
	remote, err := cfg.Remote()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDialError, err)
	}
	opts := cfg.PipeOptions()
	serverName := opts.TLSServerName
	if serverName == "" {
		serverName = remote.Host
	}
	var proxyURL *url.URL
	if opts.ProxyURL != "" {
		proxyURL, err = url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadProxy, err)
		}
		switch proxyURL.Scheme {
		case "socks5", "socks5h", "http":
		default:
			return nil, fmt.Errorf("%w: unsupported scheme %q", ErrBadProxy, proxyURL.Scheme)
		}
	}
	return &Dialer{
		logger:     logger,
		endpoint:   remote.Endpoint,
		serverName: serverName,
		secure:     opts.Secure,
		password:   opts.Password,
		proxyURL:   proxyURL,
		profile:    fingerprint.ParseProfile(opts.FingerprintProfile),
	}, nil
}

// DialContext establishes one disguised transport connection. The returned
// conn is ready to carry datagrams.
func (d *Dialer) DialContext(ctx context.Context) (Conn, error) {
	wsURL := url.URL{Scheme: "wss", Host: d.endpoint, Path: "/"}
	if d.password != "" {
		query := url.Values{}
		query.Set("password", d.password)
		wsURL.RawQuery = query.Encode()
	}
	wsDialer := &websocket.Dialer{
		HandshakeTimeout:  handshakeTimeout,
		NetDialTLSContext: d.dialTLSContext,
	}
	d.logger.Debugf("transport: dialing %s (fingerprint: %s)", d.endpoint, d.profile)
	ws, resp, err := wsDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		d.logger.Warnf("transport: dial failed: %s", err.Error())
		return nil, fmt.Errorf("%w: %s", ErrDialError, err)
	}
	return newWebsocketConn(ws, writeTimeout), nil
}

// dialTLSContext dials the raw connection, optionally through the forward
// proxy, and performs the disguised TLS handshake on top of it.
func (d *Dialer) dialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	rawConn, err := d.dialNet(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		ServerName:         d.serverName,
		InsecureSkipVerify: !d.secure,
		MinVersion:         tls.VersionTLS12,
	} //#nosec G402
	tlsClient := tls.UClient(rawConn, tlsConf, d.profile.ClientHelloID())
	if err := tlsClient.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("%w: %s", ErrBadTLSHandshake, err)
	}
	return tlsClient, nil
}

// dialNet dials the underlying TCP connection, traversing the forward
// proxy when one is configured.
func (d *Dialer) dialNet(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.proxyURL == nil {
		netDialer := &net.Dialer{}
		return netDialer.DialContext(ctx, network, addr)
	}
	switch d.proxyURL.Scheme {
	case "socks5", "socks5h":
		proxyDialer, err := xproxy.FromURL(d.proxyURL, xproxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBadProxy, err)
		}
		if contextDialer, ok := proxyDialer.(xproxy.ContextDialer); ok {
			return contextDialer.DialContext(ctx, network, addr)
		}
		return proxyDialer.Dial(network, addr)
	default:
		return d.dialViaConnect(ctx, network, addr)
	}
}

// dialViaConnect performs an HTTP CONNECT exchange with the proxy and
// returns the tunneled connection. golang.org/x/net/proxy only knows
// socks5, so we speak CONNECT ourselves.
func (d *Dialer) dialViaConnect(ctx context.Context, network, addr string) (net.Conn, error) {
	proxyAddr := d.proxyURL.Host
	if d.proxyURL.Port() == "" {
		proxyAddr = net.JoinHostPort(d.proxyURL.Hostname(), "80")
	}
	netDialer := &net.Dialer{}
	conn, err := netDialer.DialContext(ctx, network, proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadProxy, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: http.Header{},
	}
	if user := d.proxyURL.User; user != nil {
		password, _ := user.Password()
		credentials := base64.StdEncoding.EncodeToString([]byte(user.Username() + ":" + password))
		req.Header.Set("Proxy-Authorization", "Basic "+credentials)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrBadProxy, err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrBadProxy, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("%w: proxy refused connect: %s", ErrBadProxy, resp.Status)
	}
	return conn, nil
}
