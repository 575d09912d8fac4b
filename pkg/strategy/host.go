package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/notify"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
	"github.com/peter-kozarec/xtrade/pkg/utility/math"
)

var hundred = fixed.FromInt(100, 0)

// Host feeds domain events to a strategy and keeps its running totals.
// A strategy that fails or panics is disabled for the rest of the session.
type Host struct {
	logger   *zap.Logger
	strategy Strategy
	trader   Trader
	notifier notify.Notifier

	mu       sync.Mutex
	disabled bool
	reason   string
	totals   totals
}

type totals struct {
	startBalance fixed.Point
	balance      fixed.Point
	peak         fixed.Point
	maxDrawdown  fixed.Point

	trades      int
	wins        int
	losses      int
	grossProfit fixed.Point
	grossLoss   fixed.Point
	returns     []fixed.Point

	start time.Time
	end   time.Time
}

func NewHost(logger *zap.Logger, strategy Strategy, trader Trader, notifier notify.Notifier, startBalance fixed.Point) *Host {
	return &Host{
		logger:   logger.Named("strategy").With(zap.String("name", strategy.Name())),
		strategy: strategy,
		trader:   trader,
		notifier: notifier,
		totals: totals{
			startBalance: startBalance,
			balance:      startBalance,
			peak:         startBalance,
		},
	}
}

// Attach installs the host handlers on the router, keeping any handler already set.
func (h *Host) Attach(router *bus.Router) {
	router.OnTick = bus.MergeHandlers[common.Tick](router.OnTick, h.OnTick)
	router.OnCandle = bus.MergeHandlers[common.Candle](router.OnCandle, h.OnCandle)
	router.OnPositionClose = bus.MergeHandlers[common.Position](router.OnPositionClose, h.OnPositionClose)
	router.OnPositionReject = bus.MergeHandlers[common.Position](router.OnPositionReject, h.OnPositionReject)
}

func (h *Host) OnTick(ctx context.Context, tick common.Tick) {
	h.observe(tick.Date)
	if h.Disabled() {
		return
	}

	for _, position := range h.trader.Positions() {
		if position.Symbol != tick.Symbol || position.Status != common.PositionStatusOpen {
			continue
		}
		h.manage(ctx, position, tick)
	}
}

func (h *Host) manage(ctx context.Context, position common.Position, tick common.Tick) {
	defer h.recover(ctx, "should close")

	if h.strategy.ShouldClose(ctx, position, tick) {
		if err := h.trader.ClosePosition(ctx, position.Id); err != nil {
			h.logger.Warn("unable to close position", zap.String("id", position.Id), zap.Error(err))
		}
		return
	}

	sl, tp, ok := h.strategy.ShouldUpdate(ctx, position, tick)
	if !ok || (sl.Eq(position.StopLoss) && tp.Eq(position.TakeProfit)) {
		return
	}
	if err := h.trader.UpdatePosition(ctx, position.Id, sl, tp); err != nil {
		h.logger.Warn("unable to update position", zap.String("id", position.Id), zap.Error(err))
	}
}

func (h *Host) OnCandle(ctx context.Context, candle common.Candle) {
	h.observe(candle.Date)
	if h.Disabled() {
		return
	}

	defer h.recover(ctx, "run")
	if err := h.strategy.Run(ctx, h.trader, candle); err != nil {
		h.disable(ctx, fmt.Sprintf("run failed: %v", err))
	}
}

func (h *Host) OnPositionClose(_ context.Context, position common.Position) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := &h.totals
	before := t.balance
	t.trades++
	if position.Profit.Gt(fixed.Zero) {
		t.wins++
		t.grossProfit = t.grossProfit.Add(position.Profit)
	} else {
		t.losses++
		t.grossLoss = t.grossLoss.Add(position.Profit.Neg())
	}

	t.balance = t.balance.Add(position.Profit)
	if before.Gt(fixed.Zero) {
		t.returns = append(t.returns, position.Profit.Div(before))
	}
	if t.balance.Gt(t.peak) {
		t.peak = t.balance
	}
	if t.peak.Gt(fixed.Zero) {
		drawdown := t.peak.Sub(t.balance).Div(t.peak)
		if drawdown.Gt(t.maxDrawdown) {
			t.maxDrawdown = drawdown
		}
	}
	if !position.DateClose.IsZero() {
		h.observeLocked(position.DateClose)
	}
}

func (h *Host) OnPositionReject(_ context.Context, position common.Position) {
	h.logger.Warn("position rejected", zap.String("id", position.Id), zap.String("symbol", position.Symbol))
}

func (h *Host) Disabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disabled
}

// Reason returns why the strategy was disabled.
func (h *Host) Reason() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

func (h *Host) Result() common.BacktestResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.totals
	r := common.BacktestResult{
		StartBalance:  t.startBalance,
		FinalBalance:  t.balance,
		TotalTrades:   t.trades,
		WinningTrades: t.wins,
		LosingTrades:  t.losses,
		GrossProfit:   t.grossProfit,
		GrossLoss:     t.grossLoss,
		NetProfit:     t.grossProfit.Sub(t.grossLoss),
		MaxDrawdown:   t.maxDrawdown.Mul(hundred).Rescale(2),
		SharpeRatio:   math.SharpeRatio(t.returns, fixed.Zero).Rescale(5),
		SortinoRatio:  math.SortinoRatio(t.returns, fixed.Zero).Rescale(5),
		Start:         t.start,
		End:           t.end,
	}
	if t.trades > 0 {
		r.WinRate = fixed.FromInt(t.wins, 0).DivInt(t.trades).Mul(hundred).Rescale(2)
	}
	if t.wins > 0 {
		r.AverageWin = t.grossProfit.DivInt(t.wins)
	}
	if t.losses > 0 {
		r.AverageLoss = t.grossLoss.DivInt(t.losses)
	}
	if t.grossLoss.Gt(fixed.Zero) {
		r.ProfitFactor = t.grossProfit.Div(t.grossLoss)
	}
	return r
}

func (h *Host) observe(ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observeLocked(ts)
}

func (h *Host) observeLocked(ts time.Time) {
	if h.totals.start.IsZero() || ts.Before(h.totals.start) {
		h.totals.start = ts
	}
	if ts.After(h.totals.end) {
		h.totals.end = ts
	}
}

func (h *Host) recover(ctx context.Context, op string) {
	if r := recover(); r != nil {
		h.disable(ctx, fmt.Sprintf("%s panicked: %v", op, r))
	}
}

func (h *Host) disable(ctx context.Context, reason string) {
	h.mu.Lock()
	if h.disabled {
		h.mu.Unlock()
		return
	}
	h.disabled = true
	h.reason = reason
	h.mu.Unlock()

	h.logger.Error("strategy disabled", zap.String("reason", reason))
	if err := h.notifier.Notify(ctx, "Strategy Disabled", h.strategy.Name()+": "+reason); err != nil {
		h.logger.Warn("unable to notify", zap.Error(err))
	}
}
