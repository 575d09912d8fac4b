package xapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

const defaultStreamQueueSize = 1024

// StreamChannel names the subscribe and unsubscribe commands of one push feed.
type StreamChannel struct {
	Subscribe   string
	Unsubscribe string
	PerSymbol   bool
}

var (
	BalanceChannel     = StreamChannel{Subscribe: "getBalance", Unsubscribe: "stopBalance"}
	CandlesChannel     = StreamChannel{Subscribe: "getCandles", Unsubscribe: "stopCandles", PerSymbol: true}
	KeepAliveChannel   = StreamChannel{Subscribe: "getKeepAlive", Unsubscribe: "stopKeepAlive"}
	NewsChannel        = StreamChannel{Subscribe: "getNews", Unsubscribe: "stopNews"}
	ProfitsChannel     = StreamChannel{Subscribe: "getProfits", Unsubscribe: "stopProfits"}
	TickPricesChannel  = StreamChannel{Subscribe: "getTickPrices", Unsubscribe: "stopTickPrices", PerSymbol: true}
	TradesChannel      = StreamChannel{Subscribe: "getTrades", Unsubscribe: "stopTrades"}
	TradeStatusChannel = StreamChannel{Subscribe: "getTradeStatus", Unsubscribe: "stopTradeStatus"}
)

type Subscription struct {
	Channel StreamChannel
	Symbol  string
}

func (s Subscription) key() string {
	return s.Channel.Subscribe + "/" + s.Symbol
}

type StreamHandlers struct {
	OnTick        func(context.Context, common.Tick)
	OnCandle      func(context.Context, common.Candle)
	OnTrade       func(context.Context, common.TradeUpdate)
	OnTradeStatus func(context.Context, common.TradeStatus)
	OnProfit      func(context.Context, common.ProfitUpdate)
	OnBalance     func(context.Context, common.AccountBalance)
	OnNews        func(context.Context, common.News)
	OnKeepAlive   func(context.Context, time.Time)
	// OnUnknown receives push frames with an unrecognized command.
	OnUnknown func(context.Context, string)
	// OnClosed fires when the transport drops, never after Stop.
	OnClosed func(context.Context, error)
}

type StreamerOption func(*Streamer)

func WithStreamQueueSize(size int) StreamerOption {
	return func(s *Streamer) {
		s.queue = make(chan func(context.Context), size)
	}
}

func WithStreamInterval(interval time.Duration) StreamerOption {
	return func(s *Streamer) {
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// Streamer is the push channel. A read loop decodes frames and queues them, a
// separate dispatcher calls the handlers in arrival order, so a slow handler
// never stalls reception.
type Streamer struct {
	logger    *zap.Logger
	transport Transport
	handlers  StreamHandlers
	limiter   *rate.Limiter
	queue     chan func(context.Context)

	sessionId string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopped   atomic.Bool
	dropped   atomic.Uint64

	subMu         sync.Mutex
	subscriptions map[string]Subscription
}

func NewStreamer(logger *zap.Logger, transport Transport, handlers StreamHandlers, options ...StreamerOption) *Streamer {
	s := &Streamer{
		logger:        logger.Named("streamer"),
		transport:     transport,
		handlers:      handlers,
		limiter:       rate.NewLimiter(rate.Every(minCommandInterval), 1),
		queue:         make(chan func(context.Context), defaultStreamQueueSize),
		subscriptions: make(map[string]Subscription),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Start connects the transport if needed and launches the read and dispatch loops.
func (s *Streamer) Start(ctx context.Context, sessionId string) error {
	if !s.transport.IsConnected() {
		if err := s.transport.Connect(ctx); err != nil {
			return fmt.Errorf("unable to connect stream: %w", err)
		}
	}

	s.sessionId = sessionId
	s.stopped.Store(false)

	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.dispatchLoop(ctx)
	return nil
}

// Stop ends both loops and closes the transport. OnClosed is not fired.
func (s *Streamer) Stop() error {
	if s.stopped.Swap(true) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

func (s *Streamer) IsRunning() bool {
	return !s.stopped.Load() && s.transport.IsConnected()
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Streamer) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Streamer) Subscribe(ctx context.Context, ch StreamChannel, symbol string) error {
	args := map[string]any{}
	if ch.PerSymbol {
		if symbol == "" {
			return fmt.Errorf("%s requires a symbol", ch.Subscribe)
		}
		args["symbol"] = symbol
	}
	if ch == TickPricesChannel {
		args["minArrivalTime"] = 0
		args["maxLevel"] = 0
	}

	if err := s.send(ctx, ch.Subscribe, args); err != nil {
		return err
	}

	sub := Subscription{Channel: ch, Symbol: symbol}
	s.subMu.Lock()
	s.subscriptions[sub.key()] = sub
	s.subMu.Unlock()
	return nil
}

func (s *Streamer) Unsubscribe(ctx context.Context, ch StreamChannel, symbol string) error {
	args := map[string]any{}
	if ch.PerSymbol {
		args["symbol"] = symbol
	}

	sub := Subscription{Channel: ch, Symbol: symbol}
	s.subMu.Lock()
	delete(s.subscriptions, sub.key())
	s.subMu.Unlock()

	return s.send(ctx, ch.Unsubscribe, args)
}

// Subscriptions returns the active subscriptions sorted by command and symbol.
func (s *Streamer) Subscriptions() []Subscription {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	subs := make([]Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].key() < subs[j].key()
	})
	return subs
}

// UnsubscribeAll cancels every active subscription, continuing past failures.
func (s *Streamer) UnsubscribeAll(ctx context.Context) error {
	var errs []error
	for _, sub := range s.Subscriptions() {
		if err := s.Unsubscribe(ctx, sub.Channel, sub.Symbol); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", sub.Channel.Unsubscribe, sub.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

// KeepAlive pings the stream connection until ctx is done.
func (s *Streamer) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(ctx, "ping", nil); err != nil && ctx.Err() == nil {
				s.logger.Warn("ping failed", zap.Error(err))
			}
		}
	}
}

func (s *Streamer) send(ctx context.Context, command string, args map[string]any) error {
	msg := make(map[string]any, len(args)+2)
	for k, v := range args {
		msg[k] = v
	}
	msg["command"] = command
	msg["streamSessionId"] = s.sessionId

	payload, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", command, err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return communicationError(command, err)
	}

	s.logger.Debug("stream request", zap.String("payload", mask(payload)))
	return s.transport.Send(ctx, payload)
}

func (s *Streamer) readLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		msg, err := s.transport.Receive(ctx)
		if err != nil {
			if s.stopped.Load() || ctx.Err() != nil {
				return
			}
			s.logger.Warn("stream disconnected", zap.Error(err))
			if s.handlers.OnClosed != nil {
				s.notifyClosed(ctx, err)
			}
			return
		}
		s.route(msg)
	}
}

// notifyClosed queues the loss behind already received events. It waits for
// room instead of dropping, so a loss is always reported unless Stop runs.
func (s *Streamer) notifyClosed(ctx context.Context, err error) {
	select {
	case s.queue <- func(ctx context.Context) { s.handlers.OnClosed(ctx, err) }:
	case <-ctx.Done():
	}
}

func (s *Streamer) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.queue:
			s.call(ctx, fn)
		}
	}
}

func (s *Streamer) call(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream handler panicked", zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

func (s *Streamer) enqueue(fn func(context.Context)) {
	select {
	case s.queue <- fn:
	default:
		s.dropped.Add(1)
		s.logger.Warn("stream queue full, dropping event")
	}
}

func (s *Streamer) route(msg []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("unable to decode stream event", zap.Any("panic", r), zap.ByteString("frame", msg))
		}
	}()

	var frame pushFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		s.logger.Warn("malformed stream frame", zap.Error(err), zap.ByteString("frame", msg))
		return
	}

	if err := s.decode(frame); err != nil {
		s.logger.Warn("unable to decode stream event", zap.String("command", frame.Command), zap.Error(err))
	}
}

func (s *Streamer) decode(frame pushFrame) error {
	h := s.handlers

	switch frame.Command {
	case "tickPrices":
		r, err := decodeData[tickRecord](frame.Data)
		if err != nil {
			return err
		}
		emit(s, h.OnTick, tickFromRecord(r))
	case "candle":
		r, err := decodeData[candleRecord](frame.Data)
		if err != nil {
			return err
		}
		emit(s, h.OnCandle, candleFromRecord(r))
	case "trade":
		r, err := decodeData[tradeRecord](frame.Data)
		if err != nil {
			return err
		}
		trade, err := tradeFromRecord(r)
		if err != nil {
			return err
		}
		emit(s, h.OnTrade, trade)
	case "tradeStatus":
		r, err := decodeData[tradeStatusRecord](frame.Data)
		if err != nil {
			return err
		}
		status, err := tradeStatusFromRecord(r)
		if err != nil {
			return err
		}
		emit(s, h.OnTradeStatus, status)
	case "profit":
		r, err := decodeData[profitRecord](frame.Data)
		if err != nil {
			return err
		}
		emit(s, h.OnProfit, profitFromRecord(r))
	case "balance":
		r, err := decodeData[balanceRecord](frame.Data)
		if err != nil {
			return err
		}
		emit(s, h.OnBalance, balanceFromRecord(r))
	case "news":
		r, err := decodeData[newsRecord](frame.Data)
		if err != nil {
			return err
		}
		emit(s, h.OnNews, newsFromRecord(r))
	case "keepAlive":
		r, err := decodeData[keepAliveRecord](frame.Data)
		if err != nil {
			return err
		}
		emit(s, h.OnKeepAlive, fromMillis(r.Timestamp))
	default:
		s.logger.Warn("unknown stream event", zap.String("command", frame.Command))
		emit(s, h.OnUnknown, frame.Command)
	}
	return nil
}

func emit[T any](s *Streamer, handler func(context.Context, T), event T) {
	if handler == nil {
		return
	}
	s.enqueue(func(ctx context.Context) { handler(ctx, event) })
}
