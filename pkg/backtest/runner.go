package backtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/exchange/sandbox"
	"github.com/peter-kozarec/xtrade/pkg/notify"
	"github.com/peter-kozarec/xtrade/pkg/reconcile"
	"github.com/peter-kozarec/xtrade/pkg/strategy"
	"github.com/peter-kozarec/xtrade/pkg/utility"
)

const (
	defaultPageSize       = 2000
	defaultRouterCapacity = 1 << 14
)

var errExhausted = errors.New("candle stream exhausted")

// RouterHook lets the caller wrap the router handlers of a run, e.g. with middleware.
type RouterHook func(router *bus.Router, runId utility.RunID)

type Option func(*Runner)

func WithPageSize(size int) Option {
	return func(r *Runner) {
		r.pageSize = size
	}
}

func WithRouterCapacity(capacity int) Option {
	return func(r *Runner) {
		r.routerCapacity = capacity
	}
}

func WithRouterHook(hook RouterHook) Option {
	return func(r *Runner) {
		r.hook = hook
	}
}

// Runner replays history through the sandbox simulator. Every run builds a
// fresh simulator, engine and strategy so runs never share state.
type Runner struct {
	logger      *zap.Logger
	source      datasource.CandleSource
	newStrategy func() strategy.Strategy
	notifier    notify.Notifier

	pageSize       int
	routerCapacity int
	hook           RouterHook

	mu            sync.Mutex
	running       bool
	lastExecution time.Time
	lastResult    *common.BacktestResult
}

func NewRunner(logger *zap.Logger, source datasource.CandleSource, newStrategy func() strategy.Strategy, notifier notify.Notifier, options ...Option) *Runner {
	r := &Runner{
		logger:         logger.Named("backtest"),
		source:         source,
		newStrategy:    newStrategy,
		notifier:       notifier,
		pageSize:       defaultPageSize,
		routerCapacity: defaultRouterCapacity,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastExecution is zero unless the last run finished successfully.
func (r *Runner) LastExecution() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastExecution
}

func (r *Runner) LastResult() (common.BacktestResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastResult == nil {
		return common.BacktestResult{}, false
	}
	return *r.lastResult, true
}

// Run executes one backtest. Failures are logged and reflected in the run
// state, ok is false when the run did not produce a result.
func (r *Runner) Run(ctx context.Context, params common.BacktestParameters, info common.SymbolInfo) (result common.BacktestResult, ok bool) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.logger.Warn("backtest already running")
		return common.BacktestResult{}, false
	}
	r.running = true
	r.lastExecution = time.Time{}
	r.lastResult = nil
	r.mu.Unlock()

	runId := utility.ResetRunID()
	logger := r.logger.With(zap.Stringer("run_id", runId), zap.String("symbol", params.Symbol))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("backtest panicked", zap.Any("panic", p))
			ok = false
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.running = false
		if ok {
			r.lastExecution = time.Now()
			r.lastResult = &result
		}
	}()

	startTime := time.Now()
	result, err := r.run(ctx, logger, runId, params, info)
	if err != nil {
		logger.Error("backtest failed", zap.Error(err))
		return common.BacktestResult{}, false
	}

	logger.Info("backtest finished",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("trades", result.TotalTrades),
		zap.Stringer("net_profit", result.NetProfit),
		zap.Stringer("max_drawdown", result.MaxDrawdown))
	return result, true
}

func (r *Runner) run(ctx context.Context, logger *zap.Logger, runId utility.RunID, params common.BacktestParameters, info common.SymbolInfo) (common.BacktestResult, error) {
	if info.Symbol == "" {
		info.Symbol = params.Symbol
	}

	sim := sandbox.NewSimulator(logger, params.StartBalance,
		sandbox.WithSymbols(info),
		sandbox.WithTimeframe(params.Timeframe))
	router := bus.NewRouter(logger, r.routerCapacity)

	s := r.newStrategy()
	engine := reconcile.NewEngine(logger, sim, router, s.Name())
	host := strategy.NewHost(logger, s, engine, r.notifier, params.StartBalance)
	host.Attach(router)
	if r.hook != nil {
		r.hook(router, runId)
	}

	if err := engine.Connect(ctx, params.Symbol); err != nil {
		return common.BacktestResult{}, fmt.Errorf("connect: %w", err)
	}

	f := &feeder{
		ctx:      ctx,
		source:   r.source,
		sim:      sim,
		params:   params,
		info:     info,
		spread:   sandbox.NewSpreadGenerator(params.Seed, params.MinSpread, params.MaxSpread),
		cursor:   params.From,
		pageSize: r.pageSize,
	}

	if err := <-router.ExecLoop(ctx, f.next); !errors.Is(err, errExhausted) {
		if dErr := engine.Disconnect(context.WithoutCancel(ctx)); dErr != nil {
			logger.Warn("unable to disconnect", zap.Error(dErr))
		}
		return common.BacktestResult{}, err
	}

	stats := router.GetStatistics()
	stats.Print(logger)
	if stats.PostFails > 0 {
		return common.BacktestResult{}, fmt.Errorf("%d events were dropped", stats.PostFails)
	}

	return host.Result(), nil
}

// feeder replays one candle per call, loading pages from the source on demand.
type feeder struct {
	ctx    context.Context
	source datasource.CandleSource
	sim    *sandbox.Simulator
	params common.BacktestParameters
	info   common.SymbolInfo
	spread *sandbox.SpreadGenerator

	page     []common.Candle
	cursor   time.Time
	pageSize int
	fed      int
}

func (f *feeder) next() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("feeder panicked: %v", p)
		}
	}()

	if len(f.page) == 0 {
		page, err := f.source.ReadCandles(f.ctx, f.params.Symbol, f.params.Timeframe, f.cursor, f.params.To, f.pageSize)
		if err != nil {
			return fmt.Errorf("read candles from %s: %w", f.cursor.Format(time.RFC3339), err)
		}
		if len(page) == 0 {
			f.sim.Exhausted(f.ctx)
			return errExhausted
		}
		f.page = page
	}

	candle := f.page[0]
	f.page = f.page[1:]
	if candle.Symbol == "" {
		candle.Symbol = f.params.Symbol
	}
	f.cursor = f.params.Timeframe.End(candle.Date)
	f.fed++

	for _, tick := range sandbox.DecomposeCandlestick(candle, f.params.Timeframe, f.spread.Next(), f.info) {
		f.sim.InjectTick(f.ctx, tick)
	}
	f.sim.InjectCandle(f.ctx, candle)
	return nil
}
