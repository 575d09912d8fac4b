package xapi

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// fakeTransport is an in-memory Transport. Replies produced by reply are
// queued for the next Receive.
type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	sentAt []time.Time

	inbound      chan []byte
	closed       chan struct{}
	closeOnce    sync.Once
	connected    atomic.Bool
	received     atomic.Int64
	closeCount   atomic.Int64
	connectErr   error
	onDisconnect func()
	reply        func(cmd map[string]any) string
}

func newFakeTransport(onDisconnect func()) *fakeTransport {
	return &fakeTransport{
		inbound:      make(chan []byte, 256),
		closed:       make(chan struct{}),
		onDisconnect: onDisconnect,
	}
}

func (f *fakeTransport) Connect(context.Context) error {
	if f.connectErr != nil {
		return communicationError("connect", f.connectErr)
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeTransport) Send(_ context.Context, msg []byte) error {
	if !f.connected.Load() {
		return communicationError("send", ErrNotConnected)
	}

	f.mu.Lock()
	f.sent = append(f.sent, append([]byte(nil), msg...))
	f.sentAt = append(f.sentAt, time.Now())
	f.mu.Unlock()

	if f.reply != nil {
		var cmd map[string]any
		if err := sonic.Unmarshal(msg, &cmd); err != nil {
			return err
		}
		if r := f.reply(cmd); r != "" {
			f.push(r)
		}
	}
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	if !f.connected.Load() {
		return nil, communicationError("receive", ErrNotConnected)
	}
	select {
	case msg, ok := <-f.inbound:
		if !ok {
			_ = f.Close()
			return nil, communicationError("receive", io.ErrUnexpectedEOF)
		}
		f.received.Add(1)
		return msg, nil
	case <-ctx.Done():
		return nil, communicationError("receive", ctx.Err())
	case <-f.closed:
		return nil, communicationError("receive", ErrNotConnected)
	}
}

func (f *fakeTransport) Close() error {
	f.closeCount.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	if f.connected.Swap(false) && f.onDisconnect != nil {
		f.onDisconnect()
	}
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	return f.connected.Load()
}

func (f *fakeTransport) push(msg string) {
	f.inbound <- []byte(msg)
}

// hangUp makes the next Receive fail as if the peer went away.
func (f *fakeTransport) hangUp() {
	close(f.inbound)
}

func (f *fakeTransport) commands() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmds := make([]map[string]any, 0, len(f.sent))
	for _, msg := range f.sent {
		var cmd map[string]any
		_ = sonic.Unmarshal(msg, &cmd)
		cmds = append(cmds, cmd)
	}
	return cmds
}

func (f *fakeTransport) sendTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.sentAt...)
}

func okReply(map[string]any) string {
	return `{"status":true,"returnData":{}}`
}
