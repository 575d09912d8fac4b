package exchange

import (
	"context"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// Channel is a streaming feed a backend can subscribe to.
type Channel uint8

const (
	BalanceChannel Channel = iota
	CandlesChannel
	KeepAliveChannel
	NewsChannel
	ProfitsChannel
	TickPricesChannel
	TradesChannel
	TradeStatusChannel
)

// Channels lists every streaming channel.
var Channels = []Channel{
	BalanceChannel, CandlesChannel, KeepAliveChannel, NewsChannel,
	ProfitsChannel, TickPricesChannel, TradesChannel, TradeStatusChannel,
}

func (c Channel) String() string {
	switch c {
	case BalanceChannel:
		return "balance"
	case CandlesChannel:
		return "candles"
	case KeepAliveChannel:
		return "keep_alive"
	case NewsChannel:
		return "news"
	case ProfitsChannel:
		return "profits"
	case TickPricesChannel:
		return "tick_prices"
	case TradesChannel:
		return "trades"
	case TradeStatusChannel:
		return "trade_status"
	default:
		return "unknown"
	}
}

// PerSymbol reports whether subscriptions to the channel name a symbol.
func (c Channel) PerSymbol() bool {
	return c == CandlesChannel || c == TickPricesChannel
}

// Handlers receive backend events. Nil handlers are skipped.
type Handlers struct {
	OnTick        func(context.Context, common.Tick)
	OnCandle      func(context.Context, common.Candle)
	OnTrade       func(context.Context, common.TradeUpdate)
	OnTradeStatus func(context.Context, common.TradeStatus)
	OnProfit      func(context.Context, common.ProfitUpdate)
	OnBalance     func(context.Context, common.AccountBalance)
	OnNews        func(context.Context, common.News)
	OnKeepAlive   func(context.Context, time.Time)
	OnConnect     func(context.Context)
	OnDisconnect  func(context.Context, common.Disconnect)
}

// Backend is the execution venue, either the broker or the simulator.
// Every returned error is a *BackendError.
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	GetAllSymbols(ctx context.Context) ([]common.SymbolInfo, error)
	GetSymbol(ctx context.Context, symbol string) (common.SymbolInfo, error)
	GetTradingHours(ctx context.Context, symbols ...string) ([]common.TradingHours, error)
	GetTick(ctx context.Context, symbol string) (common.Tick, error)
	GetChart(ctx context.Context, symbol string, tf common.Timeframe, start time.Time) ([]common.Candle, error)
	GetChartRange(ctx context.Context, symbol string, tf common.Timeframe, start, end time.Time) ([]common.Candle, error)
	GetBalance(ctx context.Context) (common.AccountBalance, error)
	GetOpenTrades(ctx context.Context) ([]common.TradeUpdate, error)
	GetTradesHistory(ctx context.Context, start, end time.Time) ([]common.TradeUpdate, error)

	// OpenTrade submits an open transaction for position at price and
	// returns the order number the broker assigned to the request.
	OpenTrade(ctx context.Context, position common.Position, price fixed.Point) (int64, error)
	// UpdateTrade replaces the stop loss and take profit of an open trade.
	UpdateTrade(ctx context.Context, position common.Position) (int64, error)
	// CloseTrade submits a close transaction for an open trade at price.
	CloseTrade(ctx context.Context, position common.Position, price fixed.Point) (int64, error)

	Subscribe(ctx context.Context, ch Channel, symbol string) error
	Unsubscribe(ctx context.Context, ch Channel, symbol string) error

	SetHandlers(handlers Handlers)
}

// TradeOrder is the broker order a modify or close transaction must reference.
func TradeOrder(position common.Position) int64 {
	if position.PositionId != 0 {
		return position.PositionId
	}
	return position.Order
}
