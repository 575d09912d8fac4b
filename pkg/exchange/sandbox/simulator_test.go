package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/exchange"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

var (
	t0 = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

	eurUsd = common.SymbolInfo{
		Symbol:       "EURUSD",
		Category:     common.CategoryForex,
		Precision:    5,
		TickSize:     fixed.FromInt(1, 5),
		ContractSize: fixed.FromInt(100000, 0),
	}
	usdJpy = common.SymbolInfo{
		Symbol:       "USDJPY",
		Category:     common.CategoryForex,
		Precision:    3,
		TickSize:     fixed.FromInt(1, 3),
		ContractSize: fixed.FromInt(100000, 0),
	}
	us500 = common.SymbolInfo{
		Symbol:       "US500",
		Category:     "IND",
		Precision:    1,
		TickSize:     fixed.FromInt(1, 1),
		ContractSize: fixed.One,
	}
)

type recorder struct {
	ticks       []common.Tick
	candles     []common.Candle
	trades      []common.TradeUpdate
	statuses    []common.TradeStatus
	profits     []common.ProfitUpdate
	balances    []common.AccountBalance
	disconnects []common.Disconnect
}

func (r *recorder) handlers() exchange.Handlers {
	return exchange.Handlers{
		OnTick:        func(_ context.Context, v common.Tick) { r.ticks = append(r.ticks, v) },
		OnCandle:      func(_ context.Context, v common.Candle) { r.candles = append(r.candles, v) },
		OnTrade:       func(_ context.Context, v common.TradeUpdate) { r.trades = append(r.trades, v) },
		OnTradeStatus: func(_ context.Context, v common.TradeStatus) { r.statuses = append(r.statuses, v) },
		OnProfit:      func(_ context.Context, v common.ProfitUpdate) { r.profits = append(r.profits, v) },
		OnBalance:     func(_ context.Context, v common.AccountBalance) { r.balances = append(r.balances, v) },
		OnDisconnect:  func(_ context.Context, v common.Disconnect) { r.disconnects = append(r.disconnects, v) },
	}
}

func (r *recorder) lastTrade(t *testing.T) common.TradeUpdate {
	t.Helper()
	require.NotEmpty(t, r.trades)
	return r.trades[len(r.trades)-1]
}

func createTestSimulator(t *testing.T) (*Simulator, *recorder) {
	t.Helper()

	rec := &recorder{}
	sim := NewSimulator(zaptest.NewLogger(t), fixed.FromInt(1000, 0), WithSymbols(eurUsd, usdJpy, us500))
	sim.SetHandlers(rec.handlers())

	ctx := context.Background()
	require.NoError(t, sim.Connect(ctx))
	for _, ch := range exchange.Channels {
		symbols := []string{""}
		if ch.PerSymbol() {
			symbols = []string{eurUsd.Symbol, usdJpy.Symbol, us500.Symbol}
		}
		for _, symbol := range symbols {
			require.NoError(t, sim.Subscribe(ctx, ch, symbol))
		}
	}
	return sim, rec
}

func tick(symbol string, bid, ask float64, at time.Time) common.Tick {
	return common.Tick{Symbol: symbol, Bid: fixed.FromFloat64(bid), Ask: fixed.FromFloat64(ask), Date: at}
}

func position(symbol string, pt common.PositionType, volume, sl, tp float64) common.Position {
	p := common.Position{
		Symbol:        symbol,
		Type:          pt,
		Volume:        fixed.FromFloat64(volume),
		CustomComment: "s1|p1",
	}
	if sl != 0 {
		p.StopLoss = fixed.FromFloat64(sl)
	}
	if tp != 0 {
		p.TakeProfit = fixed.FromFloat64(tp)
	}
	return p
}

func TestSandboxSimulator_OpenTradeFillsInstantly(t *testing.T) {
	sim, rec := createTestSimulator(t)
	ctx := context.Background()

	sim.InjectTick(ctx, tick("EURUSD", 1.1, 1.1002, t0))
	order, err := sim.OpenTrade(ctx, position("EURUSD", common.PositionTypeBuy, 0.1, 0, 0), fixed.Zero)
	require.NoError(t, err)

	open := rec.lastTrade(t)
	assert.Equal(t, common.TransactionOpen, open.Kind)
	assert.Equal(t, order, open.Order2)
	assert.NotEqual(t, open.Order, open.Order2)
	assert.Equal(t, open.Order, open.PositionId)
	assert.True(t, open.OpenPrice.Eq(fixed.FromFloat64(1.1)))
	assert.Equal(t, "s1|p1", open.CustomComment)
	assert.Equal(t, t0, open.OpenTime)

	require.Len(t, rec.statuses, 1)
	assert.Equal(t, common.RequestStatusAccepted, rec.statuses[0].Status)
	assert.Equal(t, order, rec.statuses[0].Order)

	trades, err := sim.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 1)
}

func TestSandboxSimulator_StopLossAndTakeProfit(t *testing.T) {
	tests := []struct {
		name       string
		pt         common.PositionType
		sl, tp     float64
		bids       []float64
		closePrice float64
		reason     common.ReasonClosed
		profit     float64
	}{
		{"buy stop loss", common.PositionTypeBuy, 95, 110, []float64{105, 94}, 95, common.ReasonClosedSl, -5},
		{"buy take profit", common.PositionTypeBuy, 95, 110, []float64{105, 111}, 110, common.ReasonClosedTp, 10},
		{"sell stop loss", common.PositionTypeSell, 105, 90, []float64{103, 106}, 105, common.ReasonClosedSl, -5},
		{"sell take profit", common.PositionTypeSell, 105, 90, []float64{95, 89}, 90, common.ReasonClosedTp, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, rec := createTestSimulator(t)
			ctx := context.Background()

			sim.InjectTick(ctx, tick("US500", 100, 100, t0))
			_, err := sim.OpenTrade(ctx, position("US500", tt.pt, 1, tt.sl, tt.tp), fixed.Zero)
			require.NoError(t, err)

			for i, bid := range tt.bids {
				sim.InjectTick(ctx, tick("US500", bid, bid, t0.Add(time.Duration(i+1)*time.Minute)))
			}

			closed := rec.lastTrade(t)
			assert.Equal(t, common.TransactionClose, closed.Kind)
			assert.True(t, closed.Closed)
			assert.True(t, closed.ClosePrice.Eq(fixed.FromFloat64(tt.closePrice)), closed.ClosePrice.String())
			assert.Equal(t, tt.reason, common.ReasonFromComment(closed.Comment))
			assert.True(t, closed.Profit.Eq(fixed.FromFloat64(tt.profit)), closed.Profit.String())

			require.NotEmpty(t, rec.balances)
			want := fixed.FromInt(1000, 0).Add(fixed.FromFloat64(tt.profit))
			assert.True(t, rec.balances[len(rec.balances)-1].Balance.Eq(want))

			trades, err := sim.GetOpenTrades(ctx)
			require.NoError(t, err)
			assert.Empty(t, trades)
		})
	}
}

func TestSandboxSimulator_Profit(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		bid, ask float64
		volume   float64
		closeBid float64
		profit   float64
	}{
		// spread of 2 pips costs 2 pip values
		{"forex", "EURUSD", 1.1, 1.1002, 0.1, 1.101, 8},
		{"jpy pair", "USDJPY", 150, 150.02, 1, 150.1, 8000},
		{"non forex uses raw delta", "US500", 5000, 5000.5, 2, 5010, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, rec := createTestSimulator(t)
			ctx := context.Background()

			sim.InjectTick(ctx, tick(tt.symbol, tt.bid, tt.ask, t0))
			_, err := sim.OpenTrade(ctx, position(tt.symbol, common.PositionTypeBuy, tt.volume, 0, 0), fixed.Zero)
			require.NoError(t, err)
			open := rec.lastTrade(t)

			sim.InjectTick(ctx, tick(tt.symbol, tt.closeBid, tt.closeBid, t0.Add(time.Minute)))
			require.NotEmpty(t, rec.profits)
			assert.True(t, rec.profits[len(rec.profits)-1].Profit.Eq(fixed.FromFloat64(tt.profit)),
				rec.profits[len(rec.profits)-1].Profit.String())

			_, err = sim.CloseTrade(ctx, common.Position{PositionId: open.PositionId}, fixed.Zero)
			require.NoError(t, err)

			closed := rec.lastTrade(t)
			assert.True(t, closed.Closed)
			assert.Equal(t, common.ReasonClosedNone, common.ReasonFromComment(closed.Comment))
			assert.True(t, closed.Profit.Eq(fixed.FromFloat64(tt.profit)), closed.Profit.String())
		})
	}
}

func TestSandboxSimulator_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(context.Context, *Simulator)
		position common.Position
		want     error
	}{
		{
			name:     "unknown symbol",
			position: position("XAUUSD", common.PositionTypeBuy, 1, 0, 0),
			want:     exchange.ErrUnknownSymbol,
		},
		{
			name:     "no price yet",
			position: position("EURUSD", common.PositionTypeBuy, 1, 0, 0),
			want:     exchange.ErrNoPrice,
		},
		{
			name:     "zero volume",
			setup:    func(ctx context.Context, s *Simulator) { s.InjectTick(ctx, tick("US500", 100, 100, t0)) },
			position: position("US500", common.PositionTypeBuy, 0, 0, 0),
			want:     exchange.ErrInvalidRequest,
		},
		{
			name:     "buy stop loss above price",
			setup:    func(ctx context.Context, s *Simulator) { s.InjectTick(ctx, tick("US500", 100, 100, t0)) },
			position: position("US500", common.PositionTypeBuy, 1, 101, 0),
			want:     exchange.ErrInvalidRequest,
		},
		{
			name:     "sell take profit above price",
			setup:    func(ctx context.Context, s *Simulator) { s.InjectTick(ctx, tick("US500", 100, 100, t0)) },
			position: position("US500", common.PositionTypeSell, 1, 0, 101),
			want:     exchange.ErrInvalidRequest,
		},
		{
			name:     "pending order type",
			setup:    func(ctx context.Context, s *Simulator) { s.InjectTick(ctx, tick("US500", 100, 100, t0)) },
			position: position("US500", common.PositionTypeBuyLimit, 1, 0, 0),
			want:     exchange.ErrInvalidRequest,
		},
		{
			name:     "not connected",
			setup:    func(ctx context.Context, s *Simulator) { _ = s.Disconnect(ctx) },
			position: position("US500", common.PositionTypeBuy, 1, 0, 0),
			want:     exchange.ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, rec := createTestSimulator(t)
			ctx := context.Background()
			if tt.setup != nil {
				tt.setup(ctx, sim)
			}

			_, err := sim.OpenTrade(ctx, tt.position, fixed.Zero)

			var be *exchange.BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, "open trade", be.Op)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, rec.trades)
		})
	}
}

func TestSandboxSimulator_UpdateTrade(t *testing.T) {
	sim, rec := createTestSimulator(t)
	ctx := context.Background()

	sim.InjectTick(ctx, tick("US500", 100, 100, t0))
	_, err := sim.OpenTrade(ctx, position("US500", common.PositionTypeBuy, 1, 95, 110), fixed.Zero)
	require.NoError(t, err)
	open := rec.lastTrade(t)

	update := common.Position{PositionId: open.PositionId, StopLoss: fixed.FromInt(98, 0), TakeProfit: fixed.FromInt(120, 0)}
	_, err = sim.UpdateTrade(ctx, update)
	require.NoError(t, err)

	modified := rec.lastTrade(t)
	assert.Equal(t, common.TransactionModify, modified.Kind)
	assert.True(t, modified.StopLoss.Eq(fixed.FromInt(98, 0)))
	assert.True(t, modified.TakeProfit.Eq(fixed.FromInt(120, 0)))

	// the old stop loss no longer applies
	sim.InjectTick(ctx, tick("US500", 97, 97, t0.Add(time.Minute)))
	closed := rec.lastTrade(t)
	assert.True(t, closed.ClosePrice.Eq(fixed.FromInt(98, 0)))

	_, err = sim.UpdateTrade(ctx, update)
	assert.ErrorIs(t, err, exchange.ErrUnknownTrade)
}

func TestSandboxSimulator_HandlersMayCallBack(t *testing.T) {
	sim, rec := createTestSimulator(t)
	ctx := context.Background()

	handlers := rec.handlers()
	handlers.OnTick = func(ctx context.Context, tk common.Tick) {
		trades, err := sim.GetOpenTrades(ctx)
		require.NoError(t, err)
		for _, tr := range trades {
			_, err := sim.CloseTrade(ctx, common.Position{PositionId: tr.PositionId}, tk.Bid)
			require.NoError(t, err)
		}
	}
	sim.SetHandlers(handlers)

	sim.InjectTick(ctx, tick("US500", 100, 100, t0))
	_, err := sim.OpenTrade(ctx, position("US500", common.PositionTypeSell, 1, 0, 0), fixed.Zero)
	require.NoError(t, err)

	sim.InjectTick(ctx, tick("US500", 99, 99, t0.Add(time.Minute)))

	assert.True(t, rec.lastTrade(t).Closed)
	history, err := sim.GetTradesHistory(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSandboxSimulator_Subscriptions(t *testing.T) {
	rec := &recorder{}
	sim := NewSimulator(zaptest.NewLogger(t), fixed.FromInt(1000, 0), WithSymbols(us500))
	sim.SetHandlers(rec.handlers())
	ctx := context.Background()

	assert.ErrorIs(t, sim.Subscribe(ctx, exchange.TradesChannel, ""), exchange.ErrNotConnected)
	require.NoError(t, sim.Connect(ctx))
	assert.ErrorIs(t, sim.Subscribe(ctx, exchange.TickPricesChannel, ""), exchange.ErrInvalidRequest)

	sim.InjectTick(ctx, tick("US500", 100, 100, t0))
	assert.Empty(t, rec.ticks)

	require.NoError(t, sim.Subscribe(ctx, exchange.TickPricesChannel, "us500"))
	sim.InjectTick(ctx, tick("US500", 101, 101, t0.Add(time.Minute)))
	assert.Len(t, rec.ticks, 1)

	require.NoError(t, sim.Unsubscribe(ctx, exchange.TickPricesChannel, "US500"))
	sim.InjectTick(ctx, tick("US500", 102, 102, t0.Add(2*time.Minute)))
	assert.Len(t, rec.ticks, 1)
}

func TestSandboxSimulator_Chart(t *testing.T) {
	sim, rec := createTestSimulator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		at := t0.Add(time.Duration(i) * time.Hour)
		sim.InjectTick(ctx, tick("US500", 100, 100, at.Add(59*time.Minute)))
		sim.InjectCandle(ctx, common.Candle{Symbol: "US500", Open: fixed.FromInt(100, 0), Date: at})
	}
	assert.Len(t, rec.candles, 3)

	candles, err := sim.GetChart(ctx, "US500", common.TimeframeH1, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, candles, 2)

	candles, err = sim.GetChartRange(ctx, "US500", common.TimeframeH1, t0, t0)
	require.NoError(t, err)
	assert.Len(t, candles, 1)

	_, err = sim.GetChart(ctx, "US500", common.TimeframeD1, t0)
	assert.ErrorIs(t, err, exchange.ErrInvalidRequest)
}

func TestSandboxSimulator_Exhausted(t *testing.T) {
	sim, rec := createTestSimulator(t)
	ctx := context.Background()

	sim.InjectTick(ctx, tick("US500", 100, 100, t0))
	sim.Exhausted(ctx)

	require.Len(t, rec.disconnects, 1)
	assert.Equal(t, t0, rec.disconnects[0].Date)
	assert.NotEmpty(t, rec.disconnects[0].Reason)
}

func TestSandboxSimulator_Queries(t *testing.T) {
	sim, _ := createTestSimulator(t)
	ctx := context.Background()

	symbols, err := sim.GetAllSymbols(ctx)
	require.NoError(t, err)
	require.Len(t, symbols, 3)
	assert.Equal(t, "EURUSD", symbols[0].Symbol)

	_, err = sim.GetSymbol(ctx, "XAUUSD")
	assert.ErrorIs(t, err, exchange.ErrUnknownSymbol)

	_, err = sim.GetTick(ctx, "EURUSD")
	assert.ErrorIs(t, err, exchange.ErrNoPrice)

	hours, err := sim.GetTradingHours(ctx, "EURUSD")
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.True(t, hours[0].IsTradable(t0))

	balance, err := sim.GetBalance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Eq(fixed.FromInt(1000, 0)))
}
