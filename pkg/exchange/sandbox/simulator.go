package sandbox

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/exchange"
	"github.com/peter-kozarec/xtrade/pkg/utility/circular"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

const (
	defaultHistorySize = 2000
	defaultFirstOrder  = 1000

	commentStopLoss   = "[S/L]"
	commentTakeProfit = "[T/P]"
	reasonExhausted   = "history exhausted"
)

var _ exchange.Backend = (*Simulator)(nil)

var fullDay = []common.TradingWindow{
	{Day: time.Sunday, To: 24 * time.Hour},
	{Day: time.Monday, To: 24 * time.Hour},
	{Day: time.Tuesday, To: 24 * time.Hour},
	{Day: time.Wednesday, To: 24 * time.Hour},
	{Day: time.Thursday, To: 24 * time.Hour},
	{Day: time.Friday, To: 24 * time.Hour},
	{Day: time.Saturday, To: 24 * time.Hour},
}

type trade struct {
	update     common.TradeUpdate
	info       common.SymbolInfo
	spreadCost fixed.Point
}

// Simulator is an exchange.Backend that fills every market order instantly
// at the last injected bid. Time only advances through InjectTick.
//
// Events are delivered synchronously on the caller's goroutine, after the
// simulator has released its lock, so handlers may call back into it.
type Simulator struct {
	logger *zap.Logger

	mu       sync.Mutex
	handlers exchange.Handlers

	commissionHandler CommissionHandler
	timeframe         common.Timeframe
	historySize       uint

	symbols       map[string]common.SymbolInfo
	subscriptions map[exchange.Channel]map[string]struct{}
	connected     bool

	now      time.Time
	balance  fixed.Point
	lastTick map[string]common.Tick
	history  map[string]*circular.Buffer[common.Candle]

	orderSeq int64
	open     []*trade
	closed   []common.TradeUpdate
}

func NewSimulator(logger *zap.Logger, startBalance fixed.Point, options ...Option) *Simulator {
	s := &Simulator{
		logger:        logger.Named("sandbox"),
		timeframe:     common.TimeframeH1,
		historySize:   defaultHistorySize,
		symbols:       make(map[string]common.SymbolInfo),
		subscriptions: make(map[exchange.Channel]map[string]struct{}),
		balance:       startBalance,
		lastTick:      make(map[string]common.Tick),
		history:       make(map[string]*circular.Buffer[common.Candle]),
		orderSeq:      defaultFirstOrder - 1,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

func (s *Simulator) SetHandlers(handlers exchange.Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = handlers
}

func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = true
	onConnect := s.handlers.OnConnect
	s.mu.Unlock()

	if onConnect != nil {
		onConnect(ctx)
	}
	return nil
}

func (s *Simulator) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	clear(s.subscriptions)
	return nil
}

func (s *Simulator) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Exhausted signals that the replayed history has ended. Handlers observe it
// exactly as they would observe a lost broker session.
func (s *Simulator) Exhausted(ctx context.Context) {
	s.mu.Lock()
	onDisconnect := s.handlers.OnDisconnect
	now := s.now
	s.mu.Unlock()

	if onDisconnect != nil {
		onDisconnect(ctx, common.Disconnect{Reason: reasonExhausted, Date: now})
	}
}

// InjectTick advances simulated time to the tick, then closes positions whose
// stop loss or take profit was reached and revalues the rest.
func (s *Simulator) InjectTick(ctx context.Context, tick common.Tick) {
	var events []func(context.Context)

	s.mu.Lock()
	key := normalize(tick.Symbol)
	if _, ok := s.symbols[key]; !ok {
		s.mu.Unlock()
		s.logger.Warn("symbol info is not present, dropping tick", zap.String("symbol", tick.Symbol))
		return
	}

	if tick.Date.After(s.now) {
		s.now = tick.Date
	}
	s.lastTick[key] = tick

	if s.subscribed(exchange.TickPricesChannel, key) {
		events = appendEvent(events, s.handlers.OnTick, tick)
	}

	for _, t := range slices.Clone(s.open) {
		if normalize(t.update.Symbol) != key {
			continue
		}
		if price, comment, hit := s.exitLevel(t, tick); hit {
			events = append(events, s.closeLocked(t, price, comment)...)
			continue
		}
		t.update.Profit = s.profit(t, tick.Bid)
		if s.subscribed(exchange.ProfitsChannel, "") {
			events = appendEvent(events, s.handlers.OnProfit, common.ProfitUpdate{
				Order:      t.update.Order,
				Order2:     t.update.Order2,
				PositionId: t.update.PositionId,
				Profit:     t.update.Profit,
			})
		}
	}
	s.mu.Unlock()

	emit(ctx, events)
}

// InjectCandle records a completed candle for chart queries and publishes it.
func (s *Simulator) InjectCandle(ctx context.Context, candle common.Candle) {
	var events []func(context.Context)

	s.mu.Lock()
	key := normalize(candle.Symbol)
	buf, ok := s.history[key]
	if !ok {
		buf = circular.NewBuffer[common.Candle](s.historySize)
		s.history[key] = buf
	}
	buf.Push(candle)

	if s.subscribed(exchange.CandlesChannel, key) {
		events = appendEvent(events, s.handlers.OnCandle, candle)
	}
	s.mu.Unlock()

	emit(ctx, events)
}

func (s *Simulator) GetAllSymbols(context.Context) ([]common.SymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbols := make([]common.SymbolInfo, 0, len(s.symbols))
	for _, info := range s.symbols {
		symbols = append(symbols, s.withPrices(info))
	}
	slices.SortFunc(symbols, func(a, b common.SymbolInfo) int { return strings.Compare(a.Symbol, b.Symbol) })
	return symbols, nil
}

func (s *Simulator) GetSymbol(_ context.Context, symbol string) (common.SymbolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.symbols[normalize(symbol)]
	if !ok {
		return common.SymbolInfo{}, exchange.Wrap("get symbol", fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol))
	}
	return s.withPrices(info), nil
}

func (s *Simulator) GetTradingHours(_ context.Context, symbols ...string) ([]common.TradingHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hours := make([]common.TradingHours, 0, len(symbols))
	for _, symbol := range symbols {
		if _, ok := s.symbols[normalize(symbol)]; !ok {
			return nil, exchange.Wrap("get trading hours", fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, symbol))
		}
		hours = append(hours, common.TradingHours{Symbol: symbol, Quotes: fullDay, Trading: fullDay})
	}
	return hours, nil
}

func (s *Simulator) GetTick(_ context.Context, symbol string) (common.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tick, ok := s.lastTick[normalize(symbol)]
	if !ok {
		return common.Tick{}, exchange.Wrap("get tick", fmt.Errorf("%w: %s", exchange.ErrNoPrice, symbol))
	}
	return tick, nil
}

func (s *Simulator) GetChart(_ context.Context, symbol string, tf common.Timeframe, start time.Time) ([]common.Candle, error) {
	s.mu.Lock()
	end := s.now
	s.mu.Unlock()
	return s.chart("get chart", symbol, tf, start, end)
}

func (s *Simulator) GetChartRange(_ context.Context, symbol string, tf common.Timeframe, start, end time.Time) ([]common.Candle, error) {
	return s.chart("get chart range", symbol, tf, start, end)
}

func (s *Simulator) chart(op, symbol string, tf common.Timeframe, start, end time.Time) ([]common.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tf != s.timeframe {
		return nil, exchange.Wrap(op, fmt.Errorf("%w: only %s history is replayed", exchange.ErrInvalidRequest, s.timeframe))
	}
	buf, ok := s.history[normalize(symbol)]
	if !ok {
		return nil, nil
	}

	var candles []common.Candle
	for _, c := range buf.Data() {
		if !c.Date.Before(start) && !c.Date.After(end) {
			candles = append(candles, c)
		}
	}
	return candles, nil
}

func (s *Simulator) GetBalance(context.Context) (common.AccountBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountBalance(), nil
}

func (s *Simulator) GetOpenTrades(context.Context) ([]common.TradeUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trades := make([]common.TradeUpdate, 0, len(s.open))
	for _, t := range s.open {
		trades = append(trades, t.update)
	}
	return trades, nil
}

func (s *Simulator) GetTradesHistory(_ context.Context, start, end time.Time) ([]common.TradeUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []common.TradeUpdate
	for _, t := range s.closed {
		if !t.CloseTime.Before(start) && !t.CloseTime.After(end) {
			trades = append(trades, t)
		}
	}
	return trades, nil
}

func (s *Simulator) OpenTrade(ctx context.Context, position common.Position, _ fixed.Point) (int64, error) {
	var events []func(context.Context)

	s.mu.Lock()
	order, err := s.openLocked(position, &events)
	s.mu.Unlock()

	emit(ctx, events)
	return order, exchange.Wrap("open trade", err)
}

func (s *Simulator) openLocked(position common.Position, events *[]func(context.Context)) (int64, error) {
	if !s.connected {
		return 0, exchange.ErrNotConnected
	}
	key := normalize(position.Symbol)
	info, ok := s.symbols[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", exchange.ErrUnknownSymbol, position.Symbol)
	}
	tick, ok := s.lastTick[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", exchange.ErrNoPrice, position.Symbol)
	}
	if err := validateOpen(position, tick.Bid); err != nil {
		return 0, err
	}

	request := s.nextOrder()
	ticket := s.nextOrder()

	t := &trade{
		info: info,
		update: common.TradeUpdate{
			Kind:          common.TransactionOpen,
			Type:          position.Type,
			Order:         ticket,
			Order2:        request,
			PositionId:    ticket,
			Symbol:        info.Symbol,
			Volume:        position.Volume,
			OpenPrice:     tick.Bid,
			StopLoss:      position.StopLoss,
			TakeProfit:    position.TakeProfit,
			CustomComment: position.CustomComment,
			OpenTime:      s.now,
		},
	}
	t.spreadCost = tick.Spread().Div(exchange.PipSize(info)).Mul(exchange.PipValue(info, position.Volume))
	t.update.Profit = t.spreadCost.Neg()
	s.open = append(s.open, t)

	s.logger.Debug("trade opened",
		zap.Int64("order", ticket),
		zap.String("symbol", info.Symbol),
		zap.Stringer("price", tick.Bid))

	*events = append(*events, s.statusEvent(request, position.CustomComment, tick.Bid)...)
	if s.subscribed(exchange.TradesChannel, "") {
		*events = appendEvent(*events, s.handlers.OnTrade, t.update)
	}
	return request, nil
}

func (s *Simulator) UpdateTrade(ctx context.Context, position common.Position) (int64, error) {
	var events []func(context.Context)

	s.mu.Lock()
	order, err := s.updateLocked(position, &events)
	s.mu.Unlock()

	emit(ctx, events)
	return order, exchange.Wrap("update trade", err)
}

func (s *Simulator) updateLocked(position common.Position, events *[]func(context.Context)) (int64, error) {
	if !s.connected {
		return 0, exchange.ErrNotConnected
	}
	t, err := s.find(position)
	if err != nil {
		return 0, err
	}

	price := t.update.OpenPrice
	if tick, ok := s.lastTick[normalize(t.update.Symbol)]; ok {
		price = tick.Bid
	}
	candidate := position
	candidate.Type = t.update.Type
	candidate.Volume = t.update.Volume
	if err := validateOpen(candidate, price); err != nil {
		return 0, err
	}

	t.update.Kind = common.TransactionModify
	t.update.StopLoss = position.StopLoss
	t.update.TakeProfit = position.TakeProfit

	request := s.nextOrder()
	*events = append(*events, s.statusEvent(request, t.update.CustomComment, t.update.OpenPrice)...)
	if s.subscribed(exchange.TradesChannel, "") {
		*events = appendEvent(*events, s.handlers.OnTrade, t.update)
	}
	return request, nil
}

func (s *Simulator) CloseTrade(ctx context.Context, position common.Position, _ fixed.Point) (int64, error) {
	var events []func(context.Context)

	s.mu.Lock()
	order, err := s.closeRequestLocked(position, &events)
	s.mu.Unlock()

	emit(ctx, events)
	return order, exchange.Wrap("close trade", err)
}

func (s *Simulator) closeRequestLocked(position common.Position, events *[]func(context.Context)) (int64, error) {
	if !s.connected {
		return 0, exchange.ErrNotConnected
	}
	t, err := s.find(position)
	if err != nil {
		return 0, err
	}
	tick, ok := s.lastTick[normalize(t.update.Symbol)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", exchange.ErrNoPrice, t.update.Symbol)
	}

	request := s.nextOrder()
	*events = append(*events, s.statusEvent(request, t.update.CustomComment, tick.Bid)...)
	*events = append(*events, s.closeLocked(t, tick.Bid, "")...)
	return request, nil
}

func (s *Simulator) Subscribe(_ context.Context, ch exchange.Channel, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return exchange.Wrap("subscribe", exchange.ErrNotConnected)
	}
	if ch.PerSymbol() && symbol == "" {
		return exchange.Wrap("subscribe", fmt.Errorf("%w: %s requires a symbol", exchange.ErrInvalidRequest, ch))
	}
	if !ch.PerSymbol() {
		symbol = ""
	}

	subs, ok := s.subscriptions[ch]
	if !ok {
		subs = make(map[string]struct{})
		s.subscriptions[ch] = subs
	}
	subs[normalize(symbol)] = struct{}{}
	return nil
}

func (s *Simulator) Unsubscribe(_ context.Context, ch exchange.Channel, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ch.PerSymbol() {
		symbol = ""
	}
	delete(s.subscriptions[ch], normalize(symbol))
	return nil
}

func (s *Simulator) subscribed(ch exchange.Channel, key string) bool {
	if !ch.PerSymbol() {
		key = ""
	}
	_, ok := s.subscriptions[ch][key]
	return ok
}

func (s *Simulator) find(position common.Position) (*trade, error) {
	order := exchange.TradeOrder(position)
	for _, t := range s.open {
		if order != 0 && (t.update.Order == order || t.update.PositionId == order) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: order %d", exchange.ErrUnknownTrade, order)
}

// exitLevel reports the stop loss or take profit level the tick reached. The
// stop loss wins when both are reached by the same tick.
func (s *Simulator) exitLevel(t *trade, tick common.Tick) (fixed.Point, string, bool) {
	sl, tp := t.update.StopLoss, t.update.TakeProfit
	if t.update.Type.IsLong() {
		if !sl.IsZero() && tick.Bid.Lte(sl) {
			return sl, commentStopLoss, true
		}
		if !tp.IsZero() && tick.Bid.Gte(tp) {
			return tp, commentTakeProfit, true
		}
		return fixed.Zero, "", false
	}

	if !sl.IsZero() && tick.Bid.Gte(sl) {
		return sl, commentStopLoss, true
	}
	if !tp.IsZero() && tick.Bid.Lte(tp) {
		return tp, commentTakeProfit, true
	}
	return fixed.Zero, "", false
}

func (s *Simulator) profit(t *trade, price fixed.Point) fixed.Point {
	pips := exchange.Pips(t.info, t.update.Type, t.update.OpenPrice, price)
	return pips.Mul(exchange.PipValue(t.info, t.update.Volume)).Sub(t.spreadCost)
}

func (s *Simulator) closeLocked(t *trade, price fixed.Point, comment string) []func(context.Context) {
	var events []func(context.Context)

	t.update.Kind = common.TransactionClose
	t.update.ClosePrice = price
	t.update.CloseTime = s.now
	t.update.Comment = comment
	t.update.Closed = true
	t.update.Profit = s.profit(t, price)
	if s.commissionHandler != nil {
		t.update.Profit = t.update.Profit.Sub(s.commissionHandler(t.info, t.update))
	}

	s.balance = s.balance.Add(t.update.Profit)
	s.open = slices.DeleteFunc(s.open, func(o *trade) bool { return o == t })
	s.closed = append(s.closed, t.update)

	s.logger.Debug("trade closed",
		zap.Int64("order", t.update.Order),
		zap.Stringer("price", price),
		zap.Stringer("profit", t.update.Profit),
		zap.String("comment", comment))

	if s.subscribed(exchange.TradesChannel, "") {
		events = appendEvent(events, s.handlers.OnTrade, t.update)
	}
	if s.subscribed(exchange.BalanceChannel, "") {
		events = appendEvent(events, s.handlers.OnBalance, s.accountBalance())
	}
	return events
}

func (s *Simulator) statusEvent(order int64, comment string, price fixed.Point) []func(context.Context) {
	if !s.subscribed(exchange.TradeStatusChannel, "") {
		return nil
	}
	return appendEvent(nil, s.handlers.OnTradeStatus, common.TradeStatus{
		Order:         order,
		CustomComment: comment,
		Price:         price,
		Status:        common.RequestStatusAccepted,
	})
}

func (s *Simulator) accountBalance() common.AccountBalance {
	equity := s.balance
	for _, t := range s.open {
		equity = equity.Add(t.update.Profit)
	}
	return common.AccountBalance{
		Balance:    s.balance,
		Equity:     equity,
		MarginFree: equity,
	}
}

func (s *Simulator) withPrices(info common.SymbolInfo) common.SymbolInfo {
	if tick, ok := s.lastTick[normalize(info.Symbol)]; ok {
		info.Ask = tick.Ask
		info.Bid = tick.Bid
	}
	return info
}

func (s *Simulator) nextOrder() int64 {
	s.orderSeq++
	return s.orderSeq
}

func validateOpen(position common.Position, price fixed.Point) error {
	switch position.Type {
	case common.PositionTypeBuy, common.PositionTypeSell:
	default:
		return fmt.Errorf("%w: %s orders are not simulated", exchange.ErrInvalidRequest, position.Type)
	}
	if position.Volume.Sign() <= 0 {
		return fmt.Errorf("%w: volume must be positive", exchange.ErrInvalidRequest)
	}

	sl, tp := position.StopLoss, position.TakeProfit
	if position.Type.IsLong() {
		if !sl.IsZero() && sl.Gte(price) {
			return fmt.Errorf("%w: stop loss must be less than price", exchange.ErrInvalidRequest)
		}
		if !tp.IsZero() && tp.Lte(price) {
			return fmt.Errorf("%w: take profit must be greater than price", exchange.ErrInvalidRequest)
		}
		return nil
	}
	if !sl.IsZero() && sl.Lte(price) {
		return fmt.Errorf("%w: stop loss must be greater than price", exchange.ErrInvalidRequest)
	}
	if !tp.IsZero() && tp.Gte(price) {
		return fmt.Errorf("%w: take profit must be less than price", exchange.ErrInvalidRequest)
	}
	return nil
}

func appendEvent[T any](events []func(context.Context), handler func(context.Context, T), event T) []func(context.Context) {
	if handler == nil {
		return events
	}
	return append(events, func(ctx context.Context) { handler(ctx, event) })
}

func emit(ctx context.Context, events []func(context.Context)) {
	for _, event := range events {
		event(ctx)
	}
}

func normalize(symbol string) string {
	return strings.ToUpper(symbol)
}
