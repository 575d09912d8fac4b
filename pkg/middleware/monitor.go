package middleware

import (
	"context"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
)

type MonitorFlags uint16

//goland:noinspection GoUnusedConst
const (
	MonitorNone MonitorFlags = 1 << iota
	MonitorAll
	MonitorTicks
	MonitorCandles
	MonitorBalance
	MonitorPositionsOpened
	MonitorPositionsUpdated
	MonitorPositionsClosed
	MonitorPositionsRejected
	MonitorNews
	MonitorDisconnects
)

var monitorFlagNames = map[string]MonitorFlags{
	"all":                MonitorAll,
	"ticks":              MonitorTicks,
	"candles":            MonitorCandles,
	"balance":            MonitorBalance,
	"positions_opened":   MonitorPositionsOpened,
	"positions_updated":  MonitorPositionsUpdated,
	"positions_closed":   MonitorPositionsClosed,
	"positions_rejected": MonitorPositionsRejected,
	"news":               MonitorNews,
	"disconnects":        MonitorDisconnects,
}

// ParseMonitorFlags maps configuration names to flags, unknown names are returned.
func ParseMonitorFlags(names []string) (MonitorFlags, []string) {
	flags := MonitorNone
	var unknown []string
	for _, name := range names {
		flag, ok := monitorFlagNames[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		flags |= flag
	}
	return flags, unknown
}

// Monitor logs the selected events before passing them on.
type Monitor struct {
	logger *zap.Logger
	flags  MonitorFlags
}

func NewMonitor(logger *zap.Logger, flags MonitorFlags) *Monitor {
	return &Monitor{
		logger: logger.Named("monitor"),
		flags:  flags,
	}
}

func (m *Monitor) enabled(flag MonitorFlags) bool {
	return m.flags&flag != 0 || m.flags&MonitorAll != 0
}

func (m *Monitor) WithTick(handler bus.TickEventHandler) bus.TickEventHandler {
	return func(ctx context.Context, tick common.Tick) {
		if m.enabled(MonitorTicks) {
			m.logger.Info("tick",
				zap.String("symbol", tick.Symbol),
				zap.Stringer("bid", tick.Bid),
				zap.Stringer("ask", tick.Ask),
				zap.Time("ts", tick.Date))
		}
		handler(ctx, tick)
	}
}

func (m *Monitor) WithCandle(handler bus.CandleEventHandler) bus.CandleEventHandler {
	return func(ctx context.Context, candle common.Candle) {
		if m.enabled(MonitorCandles) {
			m.logger.Info("candle",
				zap.String("symbol", candle.Symbol),
				zap.Stringer("open", candle.Open),
				zap.Stringer("high", candle.High),
				zap.Stringer("low", candle.Low),
				zap.Stringer("close", candle.Close),
				zap.Time("ts", candle.Date))
		}
		handler(ctx, candle)
	}
}

func (m *Monitor) WithBalance(handler bus.BalanceEventHandler) bus.BalanceEventHandler {
	return func(ctx context.Context, balance common.AccountBalance) {
		if m.enabled(MonitorBalance) {
			m.logger.Info("balance",
				zap.Stringer("balance", balance.Balance),
				zap.Stringer("equity", balance.Equity),
				zap.Stringer("margin_free", balance.MarginFree))
		}
		handler(ctx, balance)
	}
}

func (m *Monitor) WithPositionOpen(handler bus.PositionOpenEventHandler) bus.PositionOpenEventHandler {
	return m.position(MonitorPositionsOpened, "position opened", handler)
}

func (m *Monitor) WithPositionUpdate(handler bus.PositionUpdateEventHandler) bus.PositionUpdateEventHandler {
	return m.position(MonitorPositionsUpdated, "position updated", handler)
}

func (m *Monitor) WithPositionClose(handler bus.PositionCloseEventHandler) bus.PositionCloseEventHandler {
	return m.position(MonitorPositionsClosed, "position closed", handler)
}

func (m *Monitor) WithPositionReject(handler bus.PositionRejectEventHandler) bus.PositionRejectEventHandler {
	return m.position(MonitorPositionsRejected, "position rejected", handler)
}

func (m *Monitor) position(flag MonitorFlags, msg string, handler func(context.Context, common.Position)) func(context.Context, common.Position) {
	return func(ctx context.Context, position common.Position) {
		if m.enabled(flag) {
			m.logger.Info(msg,
				zap.String("id", position.Id),
				zap.String("symbol", position.Symbol),
				zap.String("type", string(position.Type)),
				zap.String("status", string(position.Status)),
				zap.Int64("order", position.Order),
				zap.Stringer("volume", position.Volume),
				zap.Stringer("open_price", position.OpenPrice),
				zap.Stringer("close_price", position.ClosePrice),
				zap.Stringer("profit", position.Profit),
				zap.String("reason", string(position.ReasonClosed)))
		}
		handler(ctx, position)
	}
}

func (m *Monitor) WithNews(handler bus.NewsEventHandler) bus.NewsEventHandler {
	return func(ctx context.Context, news common.News) {
		if m.enabled(MonitorNews) {
			m.logger.Info("news", zap.String("title", news.Title), zap.Time("ts", news.Date))
		}
		handler(ctx, news)
	}
}

func (m *Monitor) WithDisconnect(handler bus.DisconnectEventHandler) bus.DisconnectEventHandler {
	return func(ctx context.Context, d common.Disconnect) {
		if m.enabled(MonitorDisconnects) {
			m.logger.Info("disconnect", zap.String("reason", d.Reason), zap.Time("ts", d.Date))
		}
		handler(ctx, d)
	}
}
