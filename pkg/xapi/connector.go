package xapi

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// The broker drops sessions that send commands more often than this.
	minCommandInterval = 200 * time.Millisecond
	maxRedirects       = 3
)

var sensitiveFields = regexp.MustCompile(`("(?:password|apiKey|appKey)"\s*:\s*)"[^"]*"`)

func mask(msg []byte) string {
	return string(sensitiveFields.ReplaceAll(msg, []byte(`${1}"***"`)))
}

type ConnectorOption func(*Connector)

func WithCommandInterval(interval time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

func WithDisconnectHandler(handler func()) ConnectorOption {
	return func(c *Connector) {
		c.onDisconnect = handler
	}
}

// Connector is the synchronous command channel. Commands are serialized, one
// request and one response at a time, and spaced at least minCommandInterval apart.
type Connector struct {
	logger       *zap.Logger
	factory      TransportFactory
	servers      []Server
	limiter      *rate.Limiter
	onDisconnect func()

	mu        sync.Mutex
	server    Server
	transport Transport
	closing   atomic.Bool
}

func NewConnector(logger *zap.Logger, servers []Server, factory TransportFactory, options ...ConnectorOption) *Connector {
	c := &Connector{
		logger:  logger.Named("connector"),
		factory: factory,
		servers: servers,
		limiter: rate.NewLimiter(rate.Every(minCommandInterval), 1),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Connect tries the configured servers in order until one accepts the connection.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.servers) == 0 {
		return communicationError("connect", errors.New("no servers configured"))
	}

	var errs []error
	for _, server := range c.servers {
		if err := c.connect(ctx, server); err != nil {
			c.logger.Warn("unable to connect, rotating server",
				zap.String("server", server.Name),
				zap.String("address", server.MainAddress()),
				zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return nil
	}
	return communicationError("connect", errors.Join(errs...))
}

func (c *Connector) connect(ctx context.Context, server Server) error {
	transport := c.factory(server, false, c.handleDisconnect)
	if err := transport.Connect(ctx); err != nil {
		return err
	}
	c.server = server
	c.transport = transport
	c.logger.Info("connected", zap.String("server", server.Name), zap.String("address", server.MainAddress()))
	return nil
}

// Server returns the server the channel is connected to, redirects included.
func (c *Connector) Server() Server {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

func (c *Connector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil && c.transport.IsConnected()
}

// Close tears the channel down without firing the disconnect handler.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeTransport()
}

func (c *Connector) closeTransport() error {
	if c.transport == nil {
		return nil
	}
	c.closing.Store(true)
	defer c.closing.Store(false)

	err := c.transport.Close()
	c.transport = nil
	return err
}

func (c *Connector) handleDisconnect() {
	if c.closing.Load() {
		return
	}
	c.logger.Warn("command channel disconnected")
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

// Execute sends cmd and waits for its response, following redirects.
func (c *Connector) Execute(ctx context.Context, cmd Command) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for attempt := 0; ; attempt++ {
		resp, err := c.roundTrip(ctx, cmd)

		var redirect *RedirectError
		if !errors.As(err, &redirect) {
			return resp, err
		}
		if attempt >= maxRedirects {
			return nil, communicationError(cmd.Name, ErrTooManyRedirects)
		}

		target := redirected(c.server, redirect)
		c.logger.Info("redirected", zap.String("command", cmd.Name), zap.String("address", target.MainAddress()))

		if err := c.closeTransport(); err != nil {
			c.logger.Debug("close before redirect failed", zap.Error(err))
		}
		if err := c.connect(ctx, target); err != nil {
			return nil, communicationError(cmd.Name, fmt.Errorf("unable to follow redirect: %w", err))
		}
	}
}

func (c *Connector) roundTrip(ctx context.Context, cmd Command) (*Response, error) {
	if c.transport == nil || !c.transport.IsConnected() {
		return nil, communicationError(cmd.Name, ErrNotConnected)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, communicationError(cmd.Name, err)
	}

	msg, tag, err := encodeCommand(cmd)
	if err != nil {
		return nil, communicationError(cmd.Name, err)
	}

	c.logger.Debug("request", zap.String("tag", tag), zap.String("payload", mask(msg)))

	if err := c.transport.Send(ctx, msg); err != nil {
		return nil, communicationError(cmd.Name, err)
	}

	reply, err := c.transport.Receive(ctx)
	if err != nil {
		return nil, communicationError(cmd.Name, err)
	}

	c.logger.Debug("response", zap.String("tag", tag), zap.String("payload", mask(reply)))

	return decodeResponse(reply)
}

// KeepAlive pings the command channel until ctx is done.
func (c *Connector) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Execute(ctx, Command{Name: "ping"}); err != nil && ctx.Err() == nil {
				c.logger.Warn("ping failed", zap.Error(err))
			}
		}
	}
}
