package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/exchange"
	"github.com/peter-kozarec/xtrade/pkg/utility"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

var ErrDuplicatePosition = errors.New("duplicate position id")

// Engine tracks the positions a strategy placed through a backend and
// reconciles them with the asynchronous trade, status and profit pushes.
type Engine struct {
	logger     *zap.Logger
	backend    exchange.Backend
	router     *bus.Router
	strategyId string

	mu        sync.Mutex
	positions []*common.Position
	balance   common.AccountBalance
	ticks     map[string]common.Tick

	closing atomic.Bool
}

// NewEngine installs the engine as the backend's event handler.
func NewEngine(logger *zap.Logger, backend exchange.Backend, router *bus.Router, strategyId string) *Engine {
	e := &Engine{
		logger:     logger.Named("reconcile"),
		backend:    backend,
		router:     router,
		strategyId: strategyId,
		ticks:      make(map[string]common.Tick),
	}
	backend.SetHandlers(exchange.Handlers{
		OnTick:        e.onTick,
		OnCandle:      e.onCandle,
		OnTrade:       e.onTrade,
		OnTradeStatus: e.onTradeStatus,
		OnProfit:      e.onProfit,
		OnBalance:     e.onBalance,
		OnNews:        e.onNews,
		OnKeepAlive:   e.onKeepAlive,
		OnConnect:     e.onConnect,
		OnDisconnect:  e.onDisconnect,
	})
	return e
}

// Connect opens the backend session, seeds the balance and subscribes to the
// account channels plus prices and candles of the given symbols.
func (e *Engine) Connect(ctx context.Context, symbols ...string) error {
	if err := e.backend.Connect(ctx); err != nil {
		return err
	}

	balance, err := e.backend.GetBalance(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.balance = balance
	e.mu.Unlock()

	for _, ch := range exchange.Channels {
		if !ch.PerSymbol() {
			if err := e.backend.Subscribe(ctx, ch, ""); err != nil {
				return err
			}
			continue
		}
		for _, symbol := range symbols {
			if err := e.backend.Subscribe(ctx, ch, symbol); err != nil {
				return err
			}
		}
	}
	return nil
}

// OpenPosition places a market order for request and caches it as pending.
// The request supplies symbol, type, volume, stop loss, take profit and
// optionally the local id.
func (e *Engine) OpenPosition(ctx context.Context, request common.Position) (common.Position, error) {
	if request.Id == "" {
		request.Id = utility.NewPositionID()
	}

	position := common.Position{
		Id:            request.Id,
		CustomComment: common.OwnerTag{StrategyId: e.strategyId, PositionId: request.Id}.String(),
		Symbol:        request.Symbol,
		Status:        common.PositionStatusPending,
		Type:          request.Type,
		StopLoss:      request.StopLoss,
		TakeProfit:    request.TakeProfit,
		Volume:        request.Volume,
	}

	tick, err := e.tick(ctx, position.Symbol)
	if err != nil {
		return common.Position{}, exchange.Wrap("open position", err)
	}

	e.mu.Lock()
	if e.findLocked(position.Id) != nil {
		e.mu.Unlock()
		return common.Position{}, exchange.Wrap("open position", fmt.Errorf("%w: %s", ErrDuplicatePosition, position.Id))
	}
	cached := position
	e.positions = append(e.positions, &cached)
	e.mu.Unlock()

	order, err := e.backend.OpenTrade(ctx, position, entryPrice(position.Type, tick))
	if err != nil {
		e.mu.Lock()
		e.positions = slices.DeleteFunc(e.positions, func(p *common.Position) bool { return p.Id == position.Id })
		e.mu.Unlock()
		return common.Position{}, exchange.Wrap("open position", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.findLocked(position.Id)
	if p == nil {
		position.Order = order
		return position, nil
	}
	// the open push may have been applied already
	if p.Order == 0 {
		p.Order = order
	}
	e.logger.Debug("position submitted", zap.String("id", p.Id), zap.Int64("order", order), zap.String("status", string(p.Status)))
	return *p, nil
}

// UpdatePosition replaces the stop loss and take profit of a cached position.
func (e *Engine) UpdatePosition(ctx context.Context, id string, stopLoss, takeProfit fixed.Point) error {
	e.mu.Lock()
	p := e.findLocked(id)
	if p == nil {
		e.mu.Unlock()
		e.logger.Warn("update of unknown position", zap.String("id", id))
		return nil
	}
	if p.Status == common.PositionStatusWaitClose || p.Status.Terminal() {
		status := p.Status
		e.mu.Unlock()
		e.logger.Warn("position can not be updated", zap.String("id", id), zap.String("status", string(status)))
		return nil
	}
	request := *p
	e.mu.Unlock()

	request.StopLoss = stopLoss
	request.TakeProfit = takeProfit
	_, err := e.backend.UpdateTrade(ctx, request)
	return exchange.Wrap("update position", err)
}

// ClosePosition closes an open position at the current price. Positions in
// any other state are left alone.
func (e *Engine) ClosePosition(ctx context.Context, id string) error {
	e.mu.Lock()
	p := e.findLocked(id)
	if p == nil || p.Status != common.PositionStatusOpen {
		e.mu.Unlock()
		e.logger.Debug("position is not open, close skipped", zap.String("id", id))
		return nil
	}
	p.Status = common.PositionStatusWaitClose
	request := *p
	e.mu.Unlock()

	err := e.closeTrade(ctx, request)
	if err != nil {
		e.mu.Lock()
		if p := e.findLocked(id); p != nil && p.Status == common.PositionStatusWaitClose {
			p.Status = common.PositionStatusOpen
		}
		e.mu.Unlock()
	}
	return exchange.Wrap("close position", err)
}

func (e *Engine) closeTrade(ctx context.Context, position common.Position) error {
	tick, err := e.tick(ctx, position.Symbol)
	if err != nil {
		return err
	}
	_, err = e.backend.CloseTrade(ctx, position, exitPrice(position.Type, tick))
	return err
}

// Disconnect closes every open trade carrying an ownership tag, tears the
// backend session down and forgets all cached positions.
func (e *Engine) Disconnect(ctx context.Context) error {
	if !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.closing.Store(false)

	e.closeOwnedTrades(ctx)
	err := e.backend.Disconnect(ctx)

	e.mu.Lock()
	e.positions = nil
	clear(e.ticks)
	e.mu.Unlock()

	return err
}

func (e *Engine) closeOwnedTrades(ctx context.Context) {
	trades, err := e.backend.GetOpenTrades(ctx)
	if err != nil {
		e.logger.Warn("unable to list open trades", zap.Error(err))
		return
	}

	ticks := make(map[string]common.Tick)
	for _, trade := range exchange.OwnedTrades(trades) {
		tick, ok := ticks[trade.Symbol]
		if !ok {
			if tick, err = e.backend.GetTick(ctx, trade.Symbol); err != nil {
				e.logger.Warn("unable to get tick", zap.String("symbol", trade.Symbol), zap.Error(err))
				continue
			}
			ticks[trade.Symbol] = tick
		}

		position := common.Position{
			Order:         trade.Order,
			Order2:        trade.Order2,
			PositionId:    trade.PositionId,
			CustomComment: trade.CustomComment,
			Symbol:        trade.Symbol,
			Type:          trade.Type,
			Volume:        trade.Volume,
		}
		if _, err := e.backend.CloseTrade(ctx, position, exitPrice(trade.Type, tick)); err != nil {
			e.logger.Warn("unable to close trade",
				zap.Int64("order", exchange.TradeOrder(position)),
				zap.String("comment", trade.CustomComment),
				zap.Error(err))
			continue
		}
		e.logger.Info("trade closed on disconnect", zap.Int64("order", exchange.TradeOrder(position)))
	}
}

// History returns the closed trades of this strategy between start and end.
func (e *Engine) History(ctx context.Context, start, end time.Time) ([]common.TradeUpdate, error) {
	trades, err := e.backend.GetTradesHistory(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return exchange.TradesOf(e.strategyId, trades), nil
}

// Positions returns copies of every cached position in submission order.
func (e *Engine) Positions() []common.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make([]common.Position, 0, len(e.positions))
	for _, p := range e.positions {
		positions = append(positions, *p)
	}
	return positions
}

func (e *Engine) Position(id string) (common.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p := e.findLocked(id); p != nil {
		return *p, true
	}
	return common.Position{}, false
}

func (e *Engine) Balance() common.AccountBalance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

func (e *Engine) onTick(_ context.Context, tick common.Tick) {
	e.mu.Lock()
	e.ticks[tick.Symbol] = tick
	e.mu.Unlock()
	e.post(bus.TickEvent, tick)
}

func (e *Engine) onCandle(_ context.Context, candle common.Candle) {
	e.post(bus.CandleEvent, candle)
}

func (e *Engine) onBalance(_ context.Context, balance common.AccountBalance) {
	e.mu.Lock()
	e.balance = balance
	e.mu.Unlock()
	e.post(bus.BalanceEvent, balance)
}

func (e *Engine) onNews(_ context.Context, news common.News) {
	e.post(bus.NewsEvent, news)
}

func (e *Engine) onKeepAlive(_ context.Context, ts time.Time) {
	e.logger.Debug("keep alive", zap.Time("ts", ts))
}

func (e *Engine) onConnect(context.Context) {
	e.logger.Info("session connected", zap.String("strategy", e.strategyId))
}

func (e *Engine) onDisconnect(ctx context.Context, d common.Disconnect) {
	e.logger.Warn("session disconnected", zap.String("reason", d.Reason))
	if err := e.Disconnect(ctx); err != nil {
		e.logger.Warn("teardown failed", zap.Error(err))
	}
	e.post(bus.DisconnectEvent, d)
}

func (e *Engine) onTrade(_ context.Context, update common.TradeUpdate) {
	e.mu.Lock()
	p := e.matchLocked(update.CustomComment, update.Order, update.Order2, update.PositionId)
	if p == nil {
		e.mu.Unlock()
		e.logger.Warn("unmanaged trade",
			zap.String("kind", string(update.Kind)),
			zap.Int64("order", update.Order),
			zap.Int64("order2", update.Order2),
			zap.Int64("position", update.PositionId),
			zap.String("comment", update.CustomComment))
		return
	}

	var id bus.EventId
	changed := false

	switch update.Kind {
	case common.TransactionOpen, common.TransactionModify:
		switch {
		case p.Status == common.PositionStatusPending && update.Kind == common.TransactionOpen && update.Order != update.Order2:
			adoptIds(p, update)
			p.Status = common.PositionStatusOpen
			p.OpenPrice = update.OpenPrice
			p.DateOpen = update.OpenTime
			p.Volume = update.Volume
			p.StopLoss = update.StopLoss
			p.TakeProfit = update.TakeProfit
			p.Profit = update.Profit
			id, changed = bus.PositionOpenEvent, true
		case p.Status == common.PositionStatusOpen:
			// stops are always refreshed, the update is announced only when a set stop moved
			if stopsChanged(*p, update) {
				id, changed = bus.PositionUpdateEvent, true
			}
			p.StopLoss = update.StopLoss
			p.TakeProfit = update.TakeProfit
		}
	case common.TransactionClose:
		if update.Closed && (p.Status == common.PositionStatusOpen || p.Status == common.PositionStatusWaitClose) {
			reason := common.ReasonFromComment(update.Comment)
			if reason == common.ReasonClosedNone && p.Status == common.PositionStatusWaitClose {
				// closed on our own request
				reason = common.ReasonClosedClosed
			}
			adoptIds(p, update)
			p.Status = common.PositionStatusClose
			p.ClosePrice = update.ClosePrice
			p.DateClose = update.CloseTime
			p.Profit = update.Profit
			p.ReasonClosed = reason
			id, changed = bus.PositionCloseEvent, true
		}
	}
	snapshot := *p
	e.mu.Unlock()

	if !changed {
		e.logger.Debug("trade push ignored",
			zap.String("id", snapshot.Id),
			zap.String("kind", string(update.Kind)),
			zap.String("status", string(snapshot.Status)))
		return
	}
	e.post(id, snapshot)
}

func (e *Engine) onTradeStatus(_ context.Context, status common.TradeStatus) {
	if status.Status != common.RequestStatusRejected {
		e.logger.Debug("trade status",
			zap.Int64("order", status.Order),
			zap.String("status", string(status.Status)),
			zap.String("message", status.Message))
		return
	}

	e.mu.Lock()
	p := e.matchLocked(status.CustomComment, status.Order)
	if p == nil || p.Status != common.PositionStatusPending {
		e.mu.Unlock()
		e.logger.Warn("rejected order without pending position",
			zap.Int64("order", status.Order),
			zap.String("comment", status.CustomComment),
			zap.String("message", status.Message))
		return
	}
	p.Status = common.PositionStatusRejected
	snapshot := *p
	e.mu.Unlock()

	e.logger.Warn("order rejected", zap.String("id", snapshot.Id), zap.String("message", status.Message))
	e.post(bus.PositionRejectEvent, snapshot)
}

func (e *Engine) onProfit(_ context.Context, update common.ProfitUpdate) {
	e.mu.Lock()
	p := e.matchLocked("", update.Order, update.Order2, update.PositionId)
	if p == nil {
		e.mu.Unlock()
		e.logger.Debug("profit of unmanaged trade", zap.Int64("order", update.Order))
		return
	}
	if p.Status.Terminal() {
		status := p.Status
		e.mu.Unlock()
		e.logger.Warn("profit for finished position", zap.Int64("order", update.Order), zap.String("status", string(status)))
		return
	}
	p.Profit = update.Profit
	snapshot := *p
	e.mu.Unlock()

	e.post(bus.PositionUpdateEvent, snapshot)
}

func (e *Engine) tick(ctx context.Context, symbol string) (common.Tick, error) {
	e.mu.Lock()
	tick, ok := e.ticks[symbol]
	e.mu.Unlock()
	if ok {
		return tick, nil
	}
	return e.backend.GetTick(ctx, symbol)
}

func (e *Engine) post(id bus.EventId, data any) {
	if err := e.router.Post(id, data); err != nil {
		e.logger.Warn("unable to post event", zap.Stringer("event", id), zap.Error(err))
	}
}

func (e *Engine) findLocked(id string) *common.Position {
	for _, p := range e.positions {
		if p.Id == id {
			return p
		}
	}
	return nil
}

// matchLocked returns the first cached position whose local id equals the id
// in comment or whose broker ids contain any of the non-zero ids.
func (e *Engine) matchLocked(comment string, ids ...int64) *common.Position {
	localId := ""
	if tag, err := common.ParseOwnerTag(comment); err == nil && tag.StrategyId == e.strategyId {
		localId = tag.PositionId
	}

	for _, p := range e.positions {
		if localId != "" && p.Id == localId {
			return p
		}
		for _, id := range ids {
			if id != 0 && (id == p.Order || id == p.Order2 || id == p.PositionId) {
				return p
			}
		}
	}
	return nil
}

func adoptIds(p *common.Position, update common.TradeUpdate) {
	if update.Order != 0 {
		p.Order = update.Order
	}
	if update.Order2 != 0 {
		p.Order2 = update.Order2
	}
	if update.PositionId != 0 {
		p.PositionId = update.PositionId
	}
}

func stopsChanged(p common.Position, update common.TradeUpdate) bool {
	return (!p.StopLoss.IsZero() && !p.StopLoss.Eq(update.StopLoss)) ||
		(!p.TakeProfit.IsZero() && !p.TakeProfit.Eq(update.TakeProfit))
}

func entryPrice(t common.PositionType, tick common.Tick) fixed.Point {
	if t.IsLong() {
		return tick.Ask
	}
	return tick.Bid
}

func exitPrice(t common.PositionType, tick common.Tick) fixed.Point {
	if t.IsLong() {
		return tick.Bid
	}
	return tick.Ask
}
