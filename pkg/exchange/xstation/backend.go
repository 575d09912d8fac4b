package xstation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/exchange"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
	"github.com/peter-kozarec/xtrade/pkg/xapi"
)

const defaultPingInterval = 5 * time.Minute

var _ exchange.Backend = (*Backend)(nil)

var channels = map[exchange.Channel]xapi.StreamChannel{
	exchange.BalanceChannel:     xapi.BalanceChannel,
	exchange.CandlesChannel:     xapi.CandlesChannel,
	exchange.KeepAliveChannel:   xapi.KeepAliveChannel,
	exchange.NewsChannel:        xapi.NewsChannel,
	exchange.ProfitsChannel:     xapi.ProfitsChannel,
	exchange.TickPricesChannel:  xapi.TickPricesChannel,
	exchange.TradesChannel:      xapi.TradesChannel,
	exchange.TradeStatusChannel: xapi.TradeStatusChannel,
}

type Option func(*Backend)

func WithServers(servers ...xapi.Server) Option {
	return func(b *Backend) {
		b.servers = servers
	}
}

func WithTransportFactory(factory xapi.TransportFactory) Option {
	return func(b *Backend) {
		b.factory = factory
	}
}

// WithPingInterval sets the keep alive period of both connections, zero
// disables keep alive.
func WithPingInterval(interval time.Duration) Option {
	return func(b *Backend) {
		b.pingInterval = interval
	}
}

func WithConnectorOptions(options ...xapi.ConnectorOption) Option {
	return func(b *Backend) {
		b.connectorOptions = append(b.connectorOptions, options...)
	}
}

func WithStreamerOptions(options ...xapi.StreamerOption) Option {
	return func(b *Backend) {
		b.streamerOptions = append(b.streamerOptions, options...)
	}
}

// Backend is the live exchange.Backend. It owns one command connection and
// one stream connection to the broker.
type Backend struct {
	logger           *zap.Logger
	creds            xapi.Credentials
	servers          []xapi.Server
	factory          xapi.TransportFactory
	pingInterval     time.Duration
	connectorOptions []xapi.ConnectorOption
	streamerOptions  []xapi.StreamerOption

	handlersMu sync.RWMutex
	handlers   exchange.Handlers

	mu        sync.Mutex
	connector *xapi.Connector
	client    *xapi.Client
	streamer  *xapi.Streamer
	stopPing  context.CancelFunc
	down      atomic.Bool
}

func New(logger *zap.Logger, creds xapi.Credentials, options ...Option) *Backend {
	b := &Backend{
		logger:       logger.Named("xstation"),
		creds:        creds,
		servers:      xapi.DemoServers(),
		factory:      xapi.TLSFactory(),
		pingInterval: defaultPingInterval,
	}
	b.down.Store(true)

	for _, option := range options {
		option(b)
	}

	return b
}

func (b *Backend) SetHandlers(handlers exchange.Handlers) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = handlers
}

func (b *Backend) current() exchange.Handlers {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	return b.handlers
}

// Connect opens the command connection, logs in and starts the stream on the
// server the login ended up at.
func (b *Backend) Connect(ctx context.Context) error {
	if err := b.connect(ctx); err != nil {
		return exchange.Wrap("connect", err)
	}

	if h := b.current(); h.OnConnect != nil {
		h.OnConnect(ctx)
	}
	return nil
}

func (b *Backend) connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connector != nil {
		return nil
	}

	options := append([]xapi.ConnectorOption{xapi.WithDisconnectHandler(func() {
		go b.lost("command connection lost")
	})}, b.connectorOptions...)

	connector := xapi.NewConnector(b.logger, b.servers, b.factory, options...)
	if err := connector.Connect(ctx); err != nil {
		return err
	}

	client := xapi.NewClient(connector)
	sessionId, err := client.Login(ctx, b.creds)
	if err != nil {
		return errors.Join(err, connector.Close())
	}

	server := connector.Server()
	streamer := xapi.NewStreamer(b.logger, b.factory(server, true, nil), b.streamHandlers(), b.streamerOptions...)
	if err := streamer.Start(ctx, sessionId); err != nil {
		return errors.Join(err, client.Logout(ctx), connector.Close())
	}

	b.connector = connector
	b.client = client
	b.streamer = streamer
	b.down.Store(false)

	if b.pingInterval > 0 {
		var pingCtx context.Context
		pingCtx, b.stopPing = context.WithCancel(context.WithoutCancel(ctx))
		go connector.KeepAlive(pingCtx, b.pingInterval)
		go streamer.KeepAlive(pingCtx, b.pingInterval)
	}

	b.logger.Info("session started", zap.String("server", server.Name), zap.String("stream", server.StreamAddress()))
	return nil
}

// Disconnect unsubscribes every channel, stops the stream and only then logs
// out and closes the command connection. Failures of each step are joined,
// a failing command side never keeps the stream side open.
func (b *Backend) Disconnect(ctx context.Context) error {
	b.down.Store(true)

	b.mu.Lock()
	connector, client, streamer, stopPing := b.connector, b.client, b.streamer, b.stopPing
	b.connector, b.client, b.streamer, b.stopPing = nil, nil, nil, nil
	b.mu.Unlock()

	if connector == nil {
		return nil
	}
	if stopPing != nil {
		stopPing()
	}

	var errs []error
	if err := streamer.UnsubscribeAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}
	if err := streamer.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if connector.IsConnected() {
		if err := client.Logout(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logout: %w", err))
		}
	}
	if err := connector.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	b.logger.Info("session closed")
	return exchange.Wrap("disconnect", errors.Join(errs...))
}

func (b *Backend) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connector != nil && b.connector.IsConnected() && b.streamer.IsRunning()
}

// lost reports a dropped connection once per session. It runs on its own
// goroutine, handlers are free to call back into the backend.
func (b *Backend) lost(reason string) {
	if b.down.Swap(true) {
		return
	}
	b.logger.Warn("session lost", zap.String("reason", reason))

	if h := b.current(); h.OnDisconnect != nil {
		h.OnDisconnect(context.Background(), common.Disconnect{Reason: reason, Date: time.Now().UTC()})
	}
}

func (b *Backend) streamHandlers() xapi.StreamHandlers {
	return xapi.StreamHandlers{
		OnTick:        func(ctx context.Context, v common.Tick) { forward(ctx, b.current().OnTick, v) },
		OnCandle:      func(ctx context.Context, v common.Candle) { forward(ctx, b.current().OnCandle, v) },
		OnTrade:       func(ctx context.Context, v common.TradeUpdate) { forward(ctx, b.current().OnTrade, v) },
		OnTradeStatus: func(ctx context.Context, v common.TradeStatus) { forward(ctx, b.current().OnTradeStatus, v) },
		OnProfit:      func(ctx context.Context, v common.ProfitUpdate) { forward(ctx, b.current().OnProfit, v) },
		OnBalance:     func(ctx context.Context, v common.AccountBalance) { forward(ctx, b.current().OnBalance, v) },
		OnNews:        func(ctx context.Context, v common.News) { forward(ctx, b.current().OnNews, v) },
		OnKeepAlive:   func(ctx context.Context, v time.Time) { forward(ctx, b.current().OnKeepAlive, v) },
		OnUnknown: func(_ context.Context, cmd string) {
			b.logger.Debug("unhandled push", zap.String("command", cmd))
		},
		OnClosed: func(_ context.Context, err error) {
			go b.lost(fmt.Sprintf("stream connection lost: %v", err))
		},
	}
}

func forward[T any](ctx context.Context, handler func(context.Context, T), event T) {
	if handler != nil {
		handler(ctx, event)
	}
}

func (b *Backend) session() (*xapi.Client, *xapi.Streamer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return nil, nil, exchange.ErrNotConnected
	}
	return b.client, b.streamer, nil
}

func (b *Backend) GetAllSymbols(ctx context.Context) ([]common.SymbolInfo, error) {
	return query(b, "get all symbols", func(c *xapi.Client) ([]common.SymbolInfo, error) {
		return c.GetAllSymbols(ctx)
	})
}

func (b *Backend) GetSymbol(ctx context.Context, symbol string) (common.SymbolInfo, error) {
	return query(b, "get symbol", func(c *xapi.Client) (common.SymbolInfo, error) {
		return c.GetSymbol(ctx, symbol)
	})
}

func (b *Backend) GetTradingHours(ctx context.Context, symbols ...string) ([]common.TradingHours, error) {
	return query(b, "get trading hours", func(c *xapi.Client) ([]common.TradingHours, error) {
		return c.GetTradingHours(ctx, symbols...)
	})
}

func (b *Backend) GetTick(ctx context.Context, symbol string) (common.Tick, error) {
	return query(b, "get tick", func(c *xapi.Client) (common.Tick, error) {
		ticks, err := c.GetTickPrices(ctx, symbol)
		if err != nil {
			return common.Tick{}, err
		}
		if len(ticks) == 0 {
			return common.Tick{}, fmt.Errorf("%w: %s", exchange.ErrNoPrice, symbol)
		}
		return ticks[0], nil
	})
}

func (b *Backend) GetChart(ctx context.Context, symbol string, tf common.Timeframe, start time.Time) ([]common.Candle, error) {
	return query(b, "get chart", func(c *xapi.Client) ([]common.Candle, error) {
		return c.GetChartLast(ctx, symbol, tf, start)
	})
}

func (b *Backend) GetChartRange(ctx context.Context, symbol string, tf common.Timeframe, start, end time.Time) ([]common.Candle, error) {
	return query(b, "get chart range", func(c *xapi.Client) ([]common.Candle, error) {
		return c.GetChartRange(ctx, symbol, tf, start, end)
	})
}

func (b *Backend) GetBalance(ctx context.Context) (common.AccountBalance, error) {
	return query(b, "get balance", func(c *xapi.Client) (common.AccountBalance, error) {
		return c.GetMarginLevel(ctx)
	})
}

func (b *Backend) GetOpenTrades(ctx context.Context) ([]common.TradeUpdate, error) {
	return query(b, "get open trades", func(c *xapi.Client) ([]common.TradeUpdate, error) {
		return c.GetTrades(ctx, true)
	})
}

func (b *Backend) GetTradesHistory(ctx context.Context, start, end time.Time) ([]common.TradeUpdate, error) {
	return query(b, "get trades history", func(c *xapi.Client) ([]common.TradeUpdate, error) {
		return c.GetTradesHistory(ctx, start, end)
	})
}

func (b *Backend) OpenTrade(ctx context.Context, position common.Position, price fixed.Point) (int64, error) {
	return b.transact(ctx, "open trade", position, xapi.TransactionOpen, 0, price)
}

func (b *Backend) UpdateTrade(ctx context.Context, position common.Position) (int64, error) {
	return b.transact(ctx, "update trade", position, xapi.TransactionModify, exchange.TradeOrder(position), position.OpenPrice)
}

func (b *Backend) CloseTrade(ctx context.Context, position common.Position, price fixed.Point) (int64, error) {
	return b.transact(ctx, "close trade", position, xapi.TransactionClose, exchange.TradeOrder(position), price)
}

func (b *Backend) transact(ctx context.Context, op string, position common.Position, kind xapi.TransactionType, order int64, price fixed.Point) (int64, error) {
	cmd, err := xapi.Operation(position.Type)
	if err != nil {
		return 0, exchange.Wrap(op, err)
	}

	info := xapi.TradeTransInfo{
		Cmd:           cmd,
		CustomComment: position.CustomComment,
		Order:         order,
		Price:         price.Float(),
		Sl:            position.StopLoss.Float(),
		Tp:            position.TakeProfit.Float(),
		Symbol:        position.Symbol,
		Type:          kind,
		Volume:        position.Volume.Float(),
	}

	return query(b, op, func(c *xapi.Client) (int64, error) {
		return c.TradeTransaction(ctx, info)
	})
}

func (b *Backend) Subscribe(ctx context.Context, ch exchange.Channel, symbol string) error {
	return b.stream(ctx, "subscribe", ch, symbol, (*xapi.Streamer).Subscribe)
}

func (b *Backend) Unsubscribe(ctx context.Context, ch exchange.Channel, symbol string) error {
	return b.stream(ctx, "unsubscribe", ch, symbol, (*xapi.Streamer).Unsubscribe)
}

func (b *Backend) stream(ctx context.Context, op string, ch exchange.Channel, symbol string, fn func(*xapi.Streamer, context.Context, xapi.StreamChannel, string) error) error {
	sc, ok := channels[ch]
	if !ok {
		return exchange.Wrap(op, fmt.Errorf("%w: channel %d", exchange.ErrInvalidRequest, ch))
	}
	_, streamer, err := b.session()
	if err != nil {
		return exchange.Wrap(op, err)
	}
	return exchange.Wrap(op, fn(streamer, ctx, sc, symbol))
}

func query[T any](b *Backend, op string, fn func(*xapi.Client) (T, error)) (T, error) {
	client, _, err := b.session()
	if err != nil {
		var zero T
		return zero, exchange.Wrap(op, err)
	}
	v, err := fn(client)
	return v, exchange.Wrap(op, err)
}
