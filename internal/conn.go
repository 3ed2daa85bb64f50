package internal

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

// TransportKind is the resolved transport for a URL scheme.
type TransportKind uint8

const (
	TransportPlain TransportKind = iota // ws
	TransportTLS                        // wss
)

func (k TransportKind) String() string {
	if k == TransportTLS {
		return "tls"
	}
	return "plain"
}

// Conn is the session's view of one server endpoint: the parsed URL, the
// negotiated request headers, trust and timeout settings, and (while open)
// the socket. A Conn is owned by exactly one Session.
type Conn struct {
	URL  *url.URL
	Kind TransportKind

	Headers http.Header
	TLS     *tls.Config

	ConnectTimeout time.Duration
	RecvTimeout    time.Duration
	SendTimeout    time.Duration

	// Proxy is an optional SOCKS5 proxy address (host:port).
	Proxy string

	// Subprotocol echoed back by the server, if we requested one.
	Subprotocol string

	mu   sync.Mutex // guards sock/br; Read and Close race on teardown
	sock net.Conn
	br   *bufio.Reader
}

// ParseURL validates a ws/wss URL: scheme must be ws or wss, host must be
// present, and the port is taken from the URL or derived from the scheme.
func ParseURL(rawurl string) (*url.URL, TransportKind, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, 0, &URLError{URL: rawurl, Reason: err.Error()}
	}

	var kind TransportKind
	switch u.Scheme {
	case "ws":
		kind = TransportPlain
	case "wss":
		kind = TransportTLS
	default:
		return nil, 0, &URLError{URL: rawurl, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return nil, 0, &URLError{URL: rawurl, Reason: "missing host"}
	}
	if u.Port() == "" {
		// Derive from scheme so dialing always has an explicit port.
		port := "80"
		if kind == TransportTLS {
			port = "443"
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u, kind, nil
}

// NewConn builds an unopened Conn for rawurl with opts applied.
func NewConn(rawurl string, opts *Options) (*Conn, error) {
	opts = opts.withDefaults()

	u, kind, err := ParseURL(rawurl)
	if err != nil {
		return nil, err
	}

	headers := make(http.Header)
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}
	if opts.Subprotocol != "" {
		headers.Set("Sec-WebSocket-Protocol", opts.Subprotocol)
	}

	c := &Conn{
		URL:            u,
		Kind:           kind,
		Headers:        headers,
		ConnectTimeout: opts.ConnectTimeout,
		RecvTimeout:    opts.RecvTimeout,
		SendTimeout:    opts.SendTimeout,
		Proxy:          opts.Proxy,
	}

	if kind == TransportTLS {
		tlsConf := &tls.Config{
			ServerName:         u.Hostname(),
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
		if opts.CAFile != "" {
			pem, err := os.ReadFile(opts.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("ca file %s: no certificates found", opts.CAFile)
			}
			tlsConf.RootCAs = pool
		}
		c.TLS = tlsConf
	}

	return c, nil
}

// Clone returns a fresh unopened Conn with the same settings, for the next
// connection attempt.
func (c *Conn) Clone() *Conn {
	cp := &Conn{
		URL:            c.URL,
		Kind:           c.Kind,
		ConnectTimeout: c.ConnectTimeout,
		RecvTimeout:    c.RecvTimeout,
		SendTimeout:    c.SendTimeout,
		Proxy:          c.Proxy,
	}
	if c.TLS != nil {
		cp.TLS = c.TLS.Clone()
	}
	if c.Headers != nil {
		cp.Headers = c.Headers.Clone()
	}
	return cp
}

// Open dials the transport (optionally through a SOCKS5 proxy) and performs
// the TLS handshake for wss URLs. It does not speak any WebSocket yet.
func (c *Conn) Open(ctx context.Context) error {
	if c.sock != nil {
		return errors.New("conn already open")
	}

	dialer := &net.Dialer{Timeout: c.ConnectTimeout}
	dctx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
	defer cancel()

	var sock net.Conn
	var err error
	if c.Proxy != "" {
		var pd proxy.Dialer
		pd, err = proxy.SOCKS5("tcp", c.Proxy, nil, dialer)
		if err != nil {
			return &ConnError{Original: err}
		}
		if cd, ok := pd.(proxy.ContextDialer); ok {
			sock, err = cd.DialContext(dctx, "tcp", c.URL.Host)
		} else {
			sock, err = pd.Dial("tcp", c.URL.Host)
		}
	} else {
		sock, err = dialer.DialContext(dctx, "tcp", c.URL.Host)
	}
	if err != nil {
		return &ConnError{Original: err}
	}

	if c.Kind == TransportTLS {
		tlsConn := tls.Client(sock, c.TLS)
		if err := tlsConn.HandshakeContext(dctx); err != nil {
			_ = sock.Close()
			return &ConnError{Original: err}
		}
		sock = tlsConn
	}

	c.sock = sock
	c.br = bufio.NewReaderSize(sock, 32*1024)
	return nil
}

// Upgrade runs the client side of the opening handshake. On success it
// returns any frame bytes the server sent right behind its response.
func (c *Conn) Upgrade() ([]byte, error) {
	if c.sock == nil {
		return nil, errors.New("conn not open")
	}

	key, err := newSecKey()
	if err != nil {
		return nil, err
	}

	if err := c.Write(buildUpgradeRequest(c.URL, c.Headers, key)); err != nil {
		return nil, err
	}

	if c.RecvTimeout > 0 {
		_ = c.sock.SetReadDeadline(time.Now().Add(c.RecvTimeout))
	}
	resp, err := readUpgradeResponse(c.br, key)
	_ = c.sock.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, err
	}
	c.Subprotocol = resp.Header.Get("Sec-WebSocket-Protocol")

	// The reader may have buffered past the blank line; those bytes are the
	// start of the frame stream.
	var leftover []byte
	if n := c.br.Buffered(); n > 0 {
		leftover = make([]byte, n)
		_, _ = c.br.Read(leftover)
	}
	return leftover, nil
}

// Read blocks for inbound bytes. Steady-state reads are undeadlined: the
// session sits in active mode and close handling has its own timer.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return 0, net.ErrClosed
	}
	return sock.Read(p)
}

// Write sends raw bytes with the configured send deadline.
func (c *Conn) Write(b []byte) error {
	c.mu.Lock()
	sock := c.sock
	c.mu.Unlock()
	if sock == nil {
		return net.ErrClosed
	}
	if c.SendTimeout > 0 {
		_ = sock.SetWriteDeadline(time.Now().Add(c.SendTimeout))
		defer func() { _ = sock.SetWriteDeadline(time.Time{}) }()
	}
	_, err := sock.Write(b)
	return err
}

// Close tears the socket down. Safe to call repeatedly.
func (c *Conn) Close() error {
	c.mu.Lock()
	sock := c.sock
	c.sock = nil
	c.br = nil
	c.mu.Unlock()
	if sock == nil {
		return nil
	}
	return sock.Close()
}

// Opened reports whether the socket is currently up.
func (c *Conn) Opened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sock != nil
}
