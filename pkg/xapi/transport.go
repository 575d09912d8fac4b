package xapi

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const defaultConnectTimeout = 5 * time.Second

// Transport carries framed messages to and from the broker.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
	IsConnected() bool
}

// TransportFactory builds a transport for the command (stream=false) or
// streaming (stream=true) endpoint of server. onDisconnect is fired once when
// an established connection goes away.
type TransportFactory func(server Server, stream bool, onDisconnect func()) Transport

type TLSOption func(*TLSTransport)

func WithTLSConfig(cfg *tls.Config) TLSOption {
	return func(t *TLSTransport) {
		t.tlsConfig = cfg
	}
}

func WithConnectTimeout(timeout time.Duration) TLSOption {
	return func(t *TLSTransport) {
		t.timeout = timeout
	}
}

// TLSTransport speaks the broker's line framing over TLS. A message ends with
// an empty line that follows a line whose last character is '}'.
type TLSTransport struct {
	address      string
	timeout      time.Duration
	tlsConfig    *tls.Config
	onDisconnect func()

	connMu sync.Mutex
	conn   net.Conn

	readMu sync.Mutex
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	connected atomic.Bool
}

func NewTLSTransport(address string, onDisconnect func(), options ...TLSOption) *TLSTransport {
	t := &TLSTransport{
		address:      address,
		timeout:      defaultConnectTimeout,
		onDisconnect: onDisconnect,
	}
	for _, option := range options {
		option(t)
	}
	return t
}

// TLSFactory returns a TransportFactory producing TLS transports.
func TLSFactory(options ...TLSOption) TransportFactory {
	return func(server Server, stream bool, onDisconnect func()) Transport {
		address := server.MainAddress()
		if stream {
			address = server.StreamAddress()
		}
		return NewTLSTransport(address, onDisconnect, options...)
	}
}

func (t *TLSTransport) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	host, _, err := net.SplitHostPort(t.address)
	if err != nil {
		return communicationError("connect", err)
	}

	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", t.address)
	if err != nil {
		return communicationError("connect", err)
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.tlsConfig != nil {
		cfg = t.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return communicationError("tls handshake", err)
	}

	t.attach(conn)
	return nil
}

func (t *TLSTransport) attach(conn net.Conn) {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.writer = bufio.NewWriter(conn)
	t.connected.Store(true)
}

func (t *TLSTransport) Send(ctx context.Context, msg []byte) error {
	conn := t.current()
	if conn == nil || !t.connected.Load() {
		return communicationError("send", ErrNotConnected)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if _, err := t.writer.Write(msg); err != nil {
		return t.fail(ctx, "send", err)
	}
	if err := t.writer.Flush(); err != nil {
		return t.fail(ctx, "send", err)
	}
	return nil
}

func (t *TLSTransport) Receive(ctx context.Context) ([]byte, error) {
	conn := t.current()
	if conn == nil || !t.connected.Load() {
		return nil, communicationError("receive", ErrNotConnected)
	}

	t.readMu.Lock()
	defer t.readMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	msg, err := readFrame(t.reader)
	if err != nil {
		return nil, t.fail(ctx, "receive", err)
	}
	return msg, nil
}

// Close is idempotent. The disconnect callback fires only for the first close
// of an established connection.
func (t *TLSTransport) Close() error {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	wasConnected := t.connected.Swap(false)

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if wasConnected && t.onDisconnect != nil {
		t.onDisconnect()
	}
	return err
}

func (t *TLSTransport) IsConnected() bool {
	return t.connected.Load()
}

func (t *TLSTransport) current() net.Conn {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn
}

func (t *TLSTransport) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	_ = t.Close()
	return communicationError(op, err)
}

// readFrame reads lines until an empty line directly follows a line ending
// with '}'. Blank lines elsewhere are kept as part of the message.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	closedBrace := false

	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		content := bytes.TrimRight(line, "\r\n")
		if len(content) == 0 {
			if closedBrace {
				return bytes.TrimSpace(buf.Bytes()), nil
			}
			if buf.Len() > 0 {
				buf.Write(line)
			}
			continue
		}

		buf.Write(line)
		closedBrace = content[len(content)-1] == '}'
	}
}
