package backtest

import (
	"context"
	"errors"
	gomath "math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/notify"
	"github.com/peter-kozarec/xtrade/pkg/strategy"
	"github.com/peter-kozarec/xtrade/pkg/utility"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

var t0 = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

type sliceSource struct {
	candles []common.Candle
	reads   int
	err     error
}

func (s *sliceSource) ReadCandles(_ context.Context, _ string, _ common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	return datasource.Window(s.candles, from, to, limit), nil
}

// wave oscillates around 1.1 so that both stops and targets get hit.
func wave(n int) []common.Candle {
	candles := make([]common.Candle, n)
	for i := range candles {
		mid := 1.1 + 0.004*gomath.Sin(float64(i)/3)
		open := fixed.FromFloat64(mid).Round(5)
		closePrice := fixed.FromFloat64(mid + 0.0005*gomath.Cos(float64(i))).Round(5)
		candles[i] = common.Candle{
			Open:  open,
			High:  fixed.Max(open, closePrice).Add(fixed.FromInt(8, 4)),
			Low:   fixed.Min(open, closePrice).Sub(fixed.FromInt(8, 4)),
			Close: closePrice,
			Date:  t0.Add(time.Duration(i) * time.Hour),
		}
	}
	return candles
}

// everyThird buys on every third candle with symmetric stops.
type everyThird struct {
	seen int
}

func (e *everyThird) Name() string                  { return "every-third" }
func (e *everyThird) Parameters() map[string]string { return nil }

func (e *everyThird) Run(ctx context.Context, trader strategy.Trader, candle common.Candle) error {
	e.seen++
	if e.seen%3 != 0 {
		return nil
	}
	for _, p := range trader.Positions() {
		if !p.Status.Terminal() {
			return nil
		}
	}
	_, err := trader.OpenPosition(ctx, common.Position{
		Symbol:     candle.Symbol,
		Type:       common.PositionTypeBuy,
		Volume:     fixed.FromFloat64(0.1),
		StopLoss:   candle.Close.Sub(fixed.FromInt(15, 4)),
		TakeProfit: candle.Close.Add(fixed.FromInt(15, 4)),
	})
	return err
}

func (e *everyThird) ShouldUpdate(context.Context, common.Position, common.Tick) (fixed.Point, fixed.Point, bool) {
	return fixed.Zero, fixed.Zero, false
}

func (e *everyThird) ShouldClose(context.Context, common.Position, common.Tick) bool { return false }

var eurusd = common.SymbolInfo{
	Symbol:       "EURUSD",
	Category:     common.CategoryForex,
	Precision:    5,
	TickSize:     fixed.FromInt(1, 5),
	ContractSize: fixed.FromInt(100000, 0),
}

func params(seed int64) common.BacktestParameters {
	return common.BacktestParameters{
		Symbol:       "EURUSD",
		Timeframe:    common.TimeframeH1,
		StartBalance: fixed.FromInt(10000, 0),
		MinSpread:    fixed.FromInt(5, 0),
		MaxSpread:    fixed.FromInt(20, 0),
		Seed:         seed,
		From:         t0,
		To:           t0.Add(200 * time.Hour),
	}
}

func newRunner(t *testing.T, source datasource.CandleSource, options ...Option) *Runner {
	newStrategy := func() strategy.Strategy { return &everyThird{} }
	return NewRunner(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)), source, newStrategy, notify.NewLogger(zap.NewNop()), options...)
}

func TestRunner_Deterministic(t *testing.T) {
	source := &sliceSource{candles: wave(240)}
	runner := newRunner(t, source, WithPageSize(50))

	first, ok := runner.Run(context.Background(), params(7), eurusd)
	require.True(t, ok)
	second, ok := runner.Run(context.Background(), params(7), eurusd)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Positive(t, first.TotalTrades)
	assert.Equal(t, first.TotalTrades, first.WinningTrades+first.LosingTrades)
	assert.Equal(t, t0, first.Start)
	assert.True(t, first.End.Before(t0.Add(200*time.Hour)))
	assert.True(t, first.FinalBalance.Eq(first.StartBalance.Add(first.NetProfit)))

	assert.False(t, runner.Running())
	assert.False(t, runner.LastExecution().IsZero())
	last, ok := runner.LastResult()
	require.True(t, ok)
	assert.Equal(t, second, last)
}

func TestRunner_Paging(t *testing.T) {
	source := &sliceSource{candles: wave(10)}
	runner := newRunner(t, source, WithPageSize(4))

	_, ok := runner.Run(context.Background(), params(1), eurusd)
	require.True(t, ok)
	// 4 + 4 + 2 candles, then the empty read that ends the stream.
	assert.Equal(t, 4, source.reads)
}

func TestRunner_ExhaustionClosesOpenPositions(t *testing.T) {
	var closed []common.Position
	hook := func(router *bus.Router, _ utility.RunID) {
		next := router.OnPositionClose
		router.OnPositionClose = func(ctx context.Context, position common.Position) {
			closed = append(closed, position)
			next(ctx, position)
		}
	}

	flat := make([]common.Candle, 3)
	for i := range flat {
		p := fixed.FromFloat64(1.1)
		flat[i] = common.Candle{Open: p, High: p, Low: p, Close: p, Date: t0.Add(time.Duration(i) * time.Hour)}
	}
	runner := newRunner(t, &sliceSource{candles: flat}, WithRouterHook(hook))

	result, ok := runner.Run(context.Background(), params(1), eurusd)
	require.True(t, ok)
	require.Len(t, closed, 1)
	assert.Equal(t, common.PositionStatusClose, closed[0].Status)
	assert.Equal(t, 1, result.TotalTrades)
	assert.Equal(t, 1, result.LosingTrades)
}

func TestRunner_FailureLeavesNoExecution(t *testing.T) {
	source := &sliceSource{candles: wave(10)}
	runner := newRunner(t, source)

	_, ok := runner.Run(context.Background(), params(1), eurusd)
	require.True(t, ok)

	source.err = errors.New("disk failure")
	_, ok = runner.Run(context.Background(), params(1), eurusd)

	assert.False(t, ok)
	assert.False(t, runner.Running())
	assert.True(t, runner.LastExecution().IsZero())
	_, ok = runner.LastResult()
	assert.False(t, ok)
}

type panickingSource struct{}

func (panickingSource) ReadCandles(context.Context, string, common.Timeframe, time.Time, time.Time, int) ([]common.Candle, error) {
	panic("corrupted index")
}

func TestRunner_PanicIsAbsorbed(t *testing.T) {
	runner := newRunner(t, panickingSource{})

	assert.NotPanics(t, func() {
		_, ok := runner.Run(context.Background(), params(1), eurusd)
		assert.False(t, ok)
	})
	assert.False(t, runner.Running())
	assert.True(t, runner.LastExecution().IsZero())
}

func TestRunner_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newRunner(t, &sliceSource{candles: wave(10)})
	_, ok := runner.Run(ctx, params(1), eurusd)
	assert.False(t, ok)
}
