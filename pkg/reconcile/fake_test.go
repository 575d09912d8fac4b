package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/exchange"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

var errBroker = errors.New("broker unavailable")

// fakeBackend answers every call from its fields and lets tests deliver
// pushes through the installed handlers.
type fakeBackend struct {
	mu       sync.Mutex
	handlers exchange.Handlers

	ticks      map[string]common.Tick
	openTrades []common.TradeUpdate
	nextOrder  int64

	onOpen func(ctx context.Context, position common.Position)

	openErr  error
	closeErr error

	opened       []common.Position
	updated      []common.Position
	closed       []common.Position
	closedAt     []fixed.Point
	disconnected int
	subscribed   []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ticks: map[string]common.Tick{
			"EURUSD": {Symbol: "EURUSD", Bid: fixed.FromFloat64(1.1), Ask: fixed.FromFloat64(1.1002)},
		},
		nextOrder: 100,
	}
}

func (f *fakeBackend) Connect(ctx context.Context) error {
	if f.handlers.OnConnect != nil {
		f.handlers.OnConnect(ctx)
	}
	return nil
}

func (f *fakeBackend) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected++
	return nil
}

func (f *fakeBackend) IsConnected() bool { return true }

func (f *fakeBackend) GetAllSymbols(context.Context) ([]common.SymbolInfo, error) { return nil, nil }

func (f *fakeBackend) GetSymbol(context.Context, string) (common.SymbolInfo, error) {
	return common.SymbolInfo{}, nil
}

func (f *fakeBackend) GetTradingHours(context.Context, ...string) ([]common.TradingHours, error) {
	return nil, nil
}

func (f *fakeBackend) GetTick(_ context.Context, symbol string) (common.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tick, ok := f.ticks[symbol]
	if !ok {
		return common.Tick{}, exchange.Wrap("get tick", exchange.ErrNoPrice)
	}
	return tick, nil
}

func (f *fakeBackend) GetChart(context.Context, string, common.Timeframe, time.Time) ([]common.Candle, error) {
	return nil, nil
}

func (f *fakeBackend) GetChartRange(context.Context, string, common.Timeframe, time.Time, time.Time) ([]common.Candle, error) {
	return nil, nil
}

func (f *fakeBackend) GetBalance(context.Context) (common.AccountBalance, error) {
	return common.AccountBalance{Balance: fixed.FromInt(1000, 0)}, nil
}

func (f *fakeBackend) GetOpenTrades(context.Context) ([]common.TradeUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openTrades, nil
}

func (f *fakeBackend) GetTradesHistory(context.Context, time.Time, time.Time) ([]common.TradeUpdate, error) {
	return []common.TradeUpdate{
		{Order: 1, CustomComment: "s1|a"},
		{Order: 2, CustomComment: "other|b"},
		{Order: 3},
	}, nil
}

func (f *fakeBackend) OpenTrade(ctx context.Context, position common.Position, _ fixed.Point) (int64, error) {
	f.mu.Lock()
	if f.openErr != nil {
		f.mu.Unlock()
		return 0, exchange.Wrap("open trade", f.openErr)
	}
	f.nextOrder++
	order := f.nextOrder
	f.opened = append(f.opened, position)
	onOpen := f.onOpen
	f.mu.Unlock()

	if onOpen != nil {
		onOpen(ctx, position)
	}
	return order, nil
}

func (f *fakeBackend) UpdateTrade(_ context.Context, position common.Position) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, position)
	return 0, nil
}

func (f *fakeBackend) CloseTrade(_ context.Context, position common.Position, price fixed.Point) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, position)
	f.closedAt = append(f.closedAt, price)
	if f.closeErr != nil {
		return 0, exchange.Wrap("close trade", f.closeErr)
	}
	return 0, nil
}

func (f *fakeBackend) Subscribe(_ context.Context, ch exchange.Channel, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, ch.String()+":"+symbol)
	return nil
}

func (f *fakeBackend) Unsubscribe(context.Context, exchange.Channel, string) error { return nil }

func (f *fakeBackend) SetHandlers(handlers exchange.Handlers) {
	f.handlers = handlers
}
