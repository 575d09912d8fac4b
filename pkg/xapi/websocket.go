package xapi

import (
	"context"
	"crypto/tls"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketTransport carries one JSON message per text frame.
type WebsocketTransport struct {
	url          string
	timeout      time.Duration
	tlsConfig    *tls.Config
	onDisconnect func()

	connMu sync.Mutex
	conn   *websocket.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex

	connected atomic.Bool
}

func NewWebsocketTransport(url string, timeout time.Duration, tlsConfig *tls.Config, onDisconnect func()) *WebsocketTransport {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &WebsocketTransport{
		url:          url,
		timeout:      timeout,
		tlsConfig:    tlsConfig,
		onDisconnect: onDisconnect,
	}
}

// WebsocketFactory returns a TransportFactory producing websocket transports.
func WebsocketFactory(timeout time.Duration, tlsConfig *tls.Config) TransportFactory {
	return func(server Server, stream bool, onDisconnect func()) Transport {
		url := server.WebsocketURL
		if stream {
			url = server.StreamURL
		}
		return NewWebsocketTransport(url, timeout, tlsConfig, onDisconnect)
	}
}

func (t *WebsocketTransport) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: t.timeout,
		TLSClientConfig:  t.tlsConfig,
	}

	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return communicationError("connect", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.connected.Store(true)
	return nil
}

func (t *WebsocketTransport) Send(ctx context.Context, msg []byte) error {
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

	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return t.fail(ctx, "send", err)
	}
	return nil
}

func (t *WebsocketTransport) Receive(ctx context.Context) ([]byte, error) {
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

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, t.fail(ctx, "receive", err)
	}
	return msg, nil
}

func (t *WebsocketTransport) Close() error {
	t.connMu.Lock()
	conn := t.conn
	t.conn = nil
	t.connMu.Unlock()

	wasConnected := t.connected.Swap(false)

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}
	if wasConnected && t.onDisconnect != nil {
		t.onDisconnect()
	}
	return err
}

func (t *WebsocketTransport) IsConnected() bool {
	return t.connected.Load()
}

func (t *WebsocketTransport) current() *websocket.Conn {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn
}

func (t *WebsocketTransport) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	_ = t.Close()
	return communicationError(op, err)
}
